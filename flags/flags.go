package flags

import (
	"fmt"
	"math/big"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/common"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/config"
	"github.com/x2network/op-coordinator/prover"
)

const EnvVarPrefix = "OP_COORDINATOR"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	// Required Flags
	L1EthRpcFlag = &cli.StringFlag{
		Name:     "l1-eth-rpc",
		Usage:    "HTTP provider URL for L1",
		EnvVars:  prefixEnvVars("L1_ETH_RPC"),
		Required: true,
	}
	FactoryAddressFlag = &cli.StringFlag{
		Name:     "game-factory-address",
		Usage:    "Address of the dispute game factory",
		EnvVars:  prefixEnvVars("GAME_FACTORY_ADDRESS"),
		Required: true,
	}
	AnchorRegistryAddressFlag = &cli.StringFlag{
		Name:     "anchor-state-registry-address",
		Usage:    "Address of the anchor state registry",
		EnvVars:  prefixEnvVars("ANCHOR_STATE_REGISTRY_ADDRESS"),
		Required: true,
	}
	GameTypesFlag = &cli.Uint64SliceFlag{
		Name:     "game-types",
		Usage:    "Game types to track for resolution",
		EnvVars:  prefixEnvVars("GAME_TYPES"),
		Required: true,
	}

	// Optional Flags
	L2EthRpcFlag = &cli.StringFlag{
		Name:    "l2-eth-rpc",
		Usage:   "HTTP provider URL for the L2 execution client, passed to prover backends",
		EnvVars: prefixEnvVars("L2_ETH_RPC"),
	}
	PromoteGameTypeFlag = &cli.Uint64Flag{
		Name:    "promote-game-type",
		Usage:   "Game type to promote to respected once the first tracked game settles",
		EnvVars: prefixEnvVars("PROMOTE_GAME_TYPE"),
	}
	BeneficiaryFlag = &cli.StringFlag{
		Name:    "beneficiary",
		Usage:   "Address receiving claimed credit (defaults to the tx sender)",
		EnvVars: prefixEnvVars("BENEFICIARY"),
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:    "poll-interval",
		Usage:   "Polling interval for the dispute game factory",
		EnvVars: prefixEnvVars("POLL_INTERVAL"),
		Value:   config.DefaultPollInterval,
	}
	ProposalTimeoutFlag = &cli.DurationFlag{
		Name:    "proposal-timeout",
		Usage:   "How long to wait for a new proposal before timing out",
		EnvVars: prefixEnvVars("PROPOSAL_TIMEOUT"),
		Value:   config.DefaultProposalTimeout,
	}
	FinalityDelayFlag = &cli.DurationFlag{
		Name:    "finality-delay",
		Usage:   "Extra wait after resolution before claiming credit",
		EnvVars: prefixEnvVars("FINALITY_DELAY"),
		Value:   config.DefaultFinalityDelay,
	}
	MaxResolutionAttemptsFlag = &cli.IntFlag{
		Name:    "max-resolution-attempts",
		Usage:   "Retry budget for resolutions rejected by the game contract",
		EnvVars: prefixEnvVars("MAX_RESOLUTION_ATTEMPTS"),
		Value:   config.DefaultMaxResolutionAttempts,
	}
	ResolutionBackoffFlag = &cli.DurationFlag{
		Name:    "resolution-backoff",
		Usage:   "Initial backoff before re-queueing a rejected resolution",
		EnvVars: prefixEnvVars("RESOLUTION_BACKOFF"),
		Value:   config.DefaultResolutionBackoff,
	}
	ProverKindFlag = &cli.StringFlag{
		Name:    "prover-kind",
		Usage:   "Proof backend to supervise (fault or validity)",
		EnvVars: prefixEnvVars("PROVER_KIND"),
		Value:   prover.KindFault.String(),
	}
	ProverBinFlag = &cli.StringFlag{
		Name:    "prover-bin",
		Usage:   "Path to the prover host executable (prover supervision disabled when unset)",
		EnvVars: prefixEnvVars("PROVER_BIN"),
	}
	ProverHealthEndpointFlag = &cli.StringFlag{
		Name:    "prover-health-endpoint",
		Usage:   "HTTP health URL of the prover host",
		EnvVars: prefixEnvVars("PROVER_HEALTH_ENDPOINT"),
	}
	ProverStartingBlockFlag = &cli.Uint64Flag{
		Name:    "prover-starting-block",
		Usage:   "First L2 block the prover host proposes from",
		EnvVars: prefixEnvVars("PROVER_STARTING_BLOCK"),
	}
	ProverOutputBlockSpanFlag = &cli.Uint64Flag{
		Name:    "prover-output-block-span",
		Usage:   "L2 blocks between consecutive proposed outputs",
		EnvVars: prefixEnvVars("PROVER_OUTPUT_BLOCK_SPAN"),
	}
	ProverProposalOutputCountFlag = &cli.Uint64Flag{
		Name:    "prover-proposal-output-count",
		Usage:   "Outputs per proposal",
		EnvVars: prefixEnvVars("PROVER_PROPOSAL_OUTPUT_COUNT"),
	}
	ProverCollateralAmountFlag = &cli.StringFlag{
		Name:    "prover-collateral-amount",
		Usage:   "Collateral per proposal in wei",
		EnvVars: prefixEnvVars("PROVER_COLLATERAL_AMOUNT"),
	}
	ProverChallengeTimeoutFlag = &cli.DurationFlag{
		Name:    "prover-challenge-timeout",
		Usage:   "Challenge timeout configured on the prover host",
		EnvVars: prefixEnvVars("PROVER_CHALLENGE_TIMEOUT"),
	}
	ProverFastForwardStartFlag = &cli.Uint64Flag{
		Name:    "prover-fast-forward-start",
		Usage:   "First block of the validity prover's fast forward range",
		EnvVars: prefixEnvVars("PROVER_FAST_FORWARD_START"),
	}
	ProverFastForwardTargetFlag = &cli.Uint64Flag{
		Name:    "prover-fast-forward-target",
		Usage:   "End (exclusive) of the validity prover's fast forward range",
		EnvVars: prefixEnvVars("PROVER_FAST_FORWARD_TARGET"),
	}
	ProverMaxProvingDelayFlag = &cli.DurationFlag{
		Name:    "prover-max-proving-delay",
		Usage:   "Longest tolerated stall in validity proving progress",
		EnvVars: prefixEnvVars("PROVER_MAX_PROVING_DELAY"),
		Value:   10 * time.Minute,
	}
)

var requiredFlags = []cli.Flag{
	L1EthRpcFlag,
	FactoryAddressFlag,
	AnchorRegistryAddressFlag,
	GameTypesFlag,
}

var optionalFlags = []cli.Flag{
	L2EthRpcFlag,
	PromoteGameTypeFlag,
	BeneficiaryFlag,
	PollIntervalFlag,
	ProposalTimeoutFlag,
	FinalityDelayFlag,
	MaxResolutionAttemptsFlag,
	ResolutionBackoffFlag,
	ProverKindFlag,
	ProverBinFlag,
	ProverHealthEndpointFlag,
	ProverStartingBlockFlag,
	ProverOutputBlockSpanFlag,
	ProverProposalOutputCountFlag,
	ProverCollateralAmountFlag,
	ProverChallengeTimeoutFlag,
	ProverFastForwardStartFlag,
	ProverFastForwardTargetFlag,
	ProverMaxProvingDelayFlag,
}

func init() {
	optionalFlags = append(optionalFlags, txmgr.CLIFlagsWithDefaults(EnvVarPrefix, txmgr.DefaultChallengerFlagValues)...)
	optionalFlags = append(optionalFlags, oprpc.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oppprof.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

func FactoryAddress(ctx *cli.Context) (common.Address, error) {
	return opservice.ParseAddress(ctx.String(FactoryAddressFlag.Name))
}

func AnchorRegistryAddress(ctx *cli.Context) (common.Address, error) {
	return opservice.ParseAddress(ctx.String(AnchorRegistryAddressFlag.Name))
}

func gameTypes(ctx *cli.Context) []uint32 {
	raw := ctx.Uint64Slice(GameTypesFlag.Name)
	types := make([]uint32, 0, len(raw))
	for _, gt := range raw {
		types = append(types, uint32(gt))
	}
	return types
}

func proverConfig(ctx *cli.Context) (prover.Config, error) {
	cfg := prover.Config{
		Kind:                    prover.Kind(ctx.String(ProverKindFlag.Name)),
		Bin:                     ctx.String(ProverBinFlag.Name),
		L1EthRpc:                ctx.String(L1EthRpcFlag.Name),
		L2EthRpc:                ctx.String(L2EthRpcFlag.Name),
		HealthEndpoint:          ctx.String(ProverHealthEndpointFlag.Name),
		StartingBlockNumber:     ctx.Uint64(ProverStartingBlockFlag.Name),
		OutputBlockSpan:         ctx.Uint64(ProverOutputBlockSpanFlag.Name),
		ProposalOutputCount:     ctx.Uint64(ProverProposalOutputCountFlag.Name),
		ChallengeTimeout:        ctx.Duration(ProverChallengeTimeoutFlag.Name),
		FastForwardStart:        ctx.Uint64(ProverFastForwardStartFlag.Name),
		FastForwardTarget:       ctx.Uint64(ProverFastForwardTargetFlag.Name),
		MaxValidityProvingDelay: ctx.Duration(ProverMaxProvingDelayFlag.Name),
	}
	if collateral := ctx.String(ProverCollateralAmountFlag.Name); collateral != "" {
		amount, ok := new(big.Int).SetString(collateral, 10)
		if !ok {
			return prover.Config{}, fmt.Errorf("invalid collateral amount: %v", collateral)
		}
		cfg.CollateralAmount = amount
	}
	return cfg, nil
}

// NewConfigFromCLI parses the Config from the provided flags or environment variables.
func NewConfigFromCLI(ctx *cli.Context) (*config.Config, error) {
	if err := CheckRequired(ctx); err != nil {
		return nil, err
	}
	factoryAddress, err := FactoryAddress(ctx)
	if err != nil {
		return nil, err
	}
	anchorAddress, err := AnchorRegistryAddress(ctx)
	if err != nil {
		return nil, err
	}
	var beneficiary common.Address
	if addr := ctx.String(BeneficiaryFlag.Name); addr != "" {
		beneficiary, err = opservice.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
	}
	var promote *uint32
	if ctx.IsSet(PromoteGameTypeFlag.Name) {
		gt := uint32(ctx.Uint64(PromoteGameTypeFlag.Name))
		promote = &gt
	}
	proverCfg, err := proverConfig(ctx)
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig(factoryAddress, anchorAddress, ctx.String(L1EthRpcFlag.Name), gameTypes(ctx)...)
	cfg.L2EthRpc = ctx.String(L2EthRpcFlag.Name)
	cfg.PromoteGameType = promote
	cfg.Beneficiary = beneficiary
	cfg.PollInterval = ctx.Duration(PollIntervalFlag.Name)
	cfg.ProposalTimeout = ctx.Duration(ProposalTimeoutFlag.Name)
	cfg.FinalityDelay = ctx.Duration(FinalityDelayFlag.Name)
	cfg.MaxResolutionAttempts = ctx.Int(MaxResolutionAttemptsFlag.Name)
	cfg.ResolutionBackoff = ctx.Duration(ResolutionBackoffFlag.Name)
	cfg.Prover = proverCfg
	cfg.TxMgrConfig = txmgr.ReadCLIConfig(ctx)
	cfg.RPCConfig = oprpc.ReadCLIConfig(ctx)
	cfg.MetricsConfig = opmetrics.ReadCLIConfig(ctx)
	cfg.PprofConfig = oppprof.ReadCLIConfig(ctx)
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/prover"
)

var (
	ErrMissingL1EthRPC              = errors.New("missing l1 eth rpc url")
	ErrMissingGameFactoryAddress    = errors.New("missing game factory address")
	ErrMissingAnchorRegistryAddress = errors.New("missing anchor state registry address")
	ErrMissingGameTypes             = errors.New("no game types to track")
	ErrInvalidPollInterval          = errors.New("poll interval must be positive")
	ErrInvalidProposalTimeout       = errors.New("proposal timeout must be positive")
	ErrInvalidMaxResolutionAttempts = errors.New("max resolution attempts must be positive")
	ErrNegativeFinalityDelay        = errors.New("finality delay must not be negative")
)

const (
	DefaultPollInterval          = time.Second
	DefaultProposalTimeout       = 600 * time.Second
	DefaultFinalityDelay         = 5 * time.Minute
	DefaultMaxResolutionAttempts = 5
	DefaultResolutionBackoff     = 30 * time.Second
)

// Config is a well typed config that is parsed from the CLI params.
// It is used to initialize the coordinator service.
type Config struct {
	L1EthRpc                   string         // L1 RPC Url
	L2EthRpc                   string         // L2 execution RPC Url, handed to prover backends
	GameFactoryAddress         common.Address // Address of the dispute game factory
	AnchorStateRegistryAddress common.Address // Address of the anchor state registry

	GameTypes []uint32 // Game types to track for resolution
	// PromoteGameType, when set, is promoted to the respected game
	// type after the first tracked game completes its full lifecycle.
	PromoteGameType *uint32

	Beneficiary common.Address // Recipient of claimed credit, defaults to tx sender

	PollInterval          time.Duration // Factory polling interval
	ProposalTimeout       time.Duration // How long waitForProposal waits before timing out
	FinalityDelay         time.Duration // Extra wait between resolve and claimCredit
	MaxResolutionAttempts int           // Retry budget for rejected resolutions
	ResolutionBackoff     time.Duration // Initial backoff after a rejected resolution

	Prover prover.Config // Proof backend to supervise; unused when Bin is empty

	TxMgrConfig   txmgr.CLIConfig
	RPCConfig     oprpc.CLIConfig
	MetricsConfig opmetrics.CLIConfig
	PprofConfig   oppprof.CLIConfig
}

func NewConfig(gameFactoryAddress common.Address, anchorRegistryAddress common.Address, l1EthRpc string, gameTypes ...uint32) Config {
	return Config{
		L1EthRpc:                   l1EthRpc,
		GameFactoryAddress:         gameFactoryAddress,
		AnchorStateRegistryAddress: anchorRegistryAddress,
		GameTypes:                  gameTypes,
		PollInterval:               DefaultPollInterval,
		ProposalTimeout:            DefaultProposalTimeout,
		FinalityDelay:              DefaultFinalityDelay,
		MaxResolutionAttempts:      DefaultMaxResolutionAttempts,
		ResolutionBackoff:          DefaultResolutionBackoff,
		TxMgrConfig:                txmgr.NewCLIConfig(l1EthRpc, txmgr.DefaultChallengerFlagValues),
		RPCConfig:                  oprpc.DefaultCLIConfig(),
		MetricsConfig:              opmetrics.DefaultCLIConfig(),
		PprofConfig:                oppprof.DefaultCLIConfig(),
	}
}

func (c Config) Check() error {
	if c.L1EthRpc == "" {
		return ErrMissingL1EthRPC
	}
	if c.GameFactoryAddress == (common.Address{}) {
		return ErrMissingGameFactoryAddress
	}
	if c.AnchorStateRegistryAddress == (common.Address{}) {
		return ErrMissingAnchorRegistryAddress
	}
	if len(c.GameTypes) == 0 {
		return ErrMissingGameTypes
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.ProposalTimeout <= 0 {
		return ErrInvalidProposalTimeout
	}
	if c.MaxResolutionAttempts <= 0 {
		return ErrInvalidMaxResolutionAttempts
	}
	if c.FinalityDelay < 0 {
		return ErrNegativeFinalityDelay
	}
	if c.Prover.Bin != "" {
		if err := c.Prover.Check(); err != nil {
			return fmt.Errorf("invalid prover config: %w", err)
		}
	}
	if err := c.TxMgrConfig.Check(); err != nil {
		return fmt.Errorf("txmgr config: %w", err)
	}
	if err := c.RPCConfig.Check(); err != nil {
		return fmt.Errorf("rpc config: %w", err)
	}
	if err := c.MetricsConfig.Check(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.PprofConfig.Check(); err != nil {
		return fmt.Errorf("pprof config: %w", err)
	}
	return nil
}

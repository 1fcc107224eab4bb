package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	contractMetrics "github.com/ethereum-optimism/optimism/op-challenger/game/fault/contracts/metrics"
	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching/rpcblock"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum-optimism/optimism/packages/contracts-bedrock/snapshots"

	"github.com/x2network/op-coordinator/game/window"
)

const (
	methodStatus              = "status"
	methodCreatedAt           = "createdAt"
	methodResolvedAt          = "resolvedAt"
	methodMaxClockDuration    = "maxClockDuration"
	methodClockExtension      = "clockExtension"
	methodClaimCount          = "claimDataLen"
	methodMaxGameDepth        = "maxGameDepth"
	methodSplitDepth          = "splitDepth"
	methodCredit              = "credit"
	methodResolve             = "resolve"
	methodResolveClaim        = "resolveClaim"
	methodClaimCredit         = "claimCredit"
	methodGameType            = "gameType"
	methodL2ChainId           = "l2ChainId"
	methodAnchorStateRegistry = "anchorStateRegistry"
)

// maxChildChecks caps how many child claims resolveClaim walks in one
// transaction. Irrelevant to an unchallenged root claim but required by
// the contract signature.
var maxChildChecks = big.NewInt(512)

type DisputeGameContract struct {
	metrics     contractMetrics.ContractMetricer
	multiCaller *batching.MultiCaller
	contract    *batching.BoundContract
}

func NewDisputeGameContract(m contractMetrics.ContractMetricer, addr common.Address, caller *batching.MultiCaller) *DisputeGameContract {
	gameAbi := snapshots.LoadFaultDisputeGameABI()
	return &DisputeGameContract{
		metrics:     m,
		multiCaller: caller,
		contract:    batching.NewBoundContract(gameAbi, addr),
	}
}

func (g *DisputeGameContract) Addr() common.Address {
	return g.contract.Addr()
}

func (g *DisputeGameContract) GetStatus(ctx context.Context) (gameTypes.GameStatus, error) {
	defer g.metrics.StartContractRequest("GetStatus")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodStatus))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch game status: %w", err)
	}
	return gameTypes.GameStatusFromUint8(result.GetUint8(0))
}

func (g *DisputeGameContract) GetCreatedAt(ctx context.Context) (time.Time, error) {
	defer g.metrics.StartContractRequest("GetCreatedAt")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodCreatedAt))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch game creation time: %w", err)
	}
	return time.Unix(int64(result.GetUint64(0)), 0), nil
}

func (g *DisputeGameContract) GetResolvedAt(ctx context.Context) (time.Time, error) {
	defer g.metrics.StartContractRequest("GetResolvedAt")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodResolvedAt))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch game resolution time: %w", err)
	}
	return time.Unix(int64(result.GetUint64(0)), 0), nil
}

// GetChallengeWindow loads the game's clock configuration in a single batch.
func (g *DisputeGameContract) GetChallengeWindow(ctx context.Context) (window.Spec, error) {
	defer g.metrics.StartContractRequest("GetChallengeWindow")()
	results, err := g.multiCaller.Call(ctx, rpcblock.Latest,
		g.contract.Call(methodMaxClockDuration),
		g.contract.Call(methodClockExtension))
	if err != nil {
		return window.Spec{}, fmt.Errorf("failed to fetch challenge window: %w", err)
	}
	spec := window.Spec{
		MaxClockDuration: time.Duration(results[0].GetUint64(0)) * time.Second,
		ClockExtension:   time.Duration(results[1].GetUint64(0)) * time.Second,
	}
	if err := spec.Check(); err != nil {
		return window.Spec{}, err
	}
	return spec, nil
}

func (g *DisputeGameContract) GetClaimCount(ctx context.Context) (uint64, error) {
	defer g.metrics.StartContractRequest("GetClaimCount")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodClaimCount))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch claim count: %w", err)
	}
	return result.GetBigInt(0).Uint64(), nil
}

func (g *DisputeGameContract) GetMaxGameDepth(ctx context.Context) (uint64, error) {
	defer g.metrics.StartContractRequest("GetMaxGameDepth")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodMaxGameDepth))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch max game depth: %w", err)
	}
	return result.GetBigInt(0).Uint64(), nil
}

func (g *DisputeGameContract) GetSplitDepth(ctx context.Context) (uint64, error) {
	defer g.metrics.StartContractRequest("GetSplitDepth")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodSplitDepth))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch split depth: %w", err)
	}
	return result.GetBigInt(0).Uint64(), nil
}

func (g *DisputeGameContract) GetCredit(ctx context.Context, recipient common.Address) (*big.Int, error) {
	defer g.metrics.StartContractRequest("GetCredit")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodCredit, recipient))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credit: %w", err)
	}
	return result.GetBigInt(0), nil
}

func (g *DisputeGameContract) GetL2ChainID(ctx context.Context) (*big.Int, error) {
	defer g.metrics.StartContractRequest("GetL2ChainID")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodL2ChainId))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch l2 chain id: %w", err)
	}
	return result.GetBigInt(0), nil
}

func (g *DisputeGameContract) GetAnchorStateRegistry(ctx context.Context) (common.Address, error) {
	defer g.metrics.StartContractRequest("GetAnchorStateRegistry")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodAnchorStateRegistry))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to fetch anchor state registry address: %w", err)
	}
	return result.GetAddress(0), nil
}

// CallResolveClaim determines whether resolveClaim would succeed,
// without submitting a transaction.
func (g *DisputeGameContract) CallResolveClaim(ctx context.Context, claimIdx uint64) error {
	defer g.metrics.StartContractRequest("CallResolveClaim")()
	call := g.resolveClaimCall(claimIdx)
	_, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, call)
	if err != nil {
		return fmt.Errorf("failed to call resolve claim: %w", err)
	}
	return nil
}

// CallResolve determines whether resolve would succeed and returns the
// status the game would resolve to.
func (g *DisputeGameContract) CallResolve(ctx context.Context) (gameTypes.GameStatus, error) {
	defer g.metrics.StartContractRequest("CallResolve")()
	result, err := g.multiCaller.SingleCall(ctx, rpcblock.Latest, g.contract.Call(methodResolve))
	if err != nil {
		return gameTypes.GameStatusInProgress, fmt.Errorf("failed to call resolve: %w", err)
	}
	return gameTypes.GameStatusFromUint8(result.GetUint8(0))
}

func (g *DisputeGameContract) ResolveClaimTx(claimIdx uint64) (txmgr.TxCandidate, error) {
	return g.resolveClaimCall(claimIdx).ToTxCandidate()
}

func (g *DisputeGameContract) ResolveTx() (txmgr.TxCandidate, error) {
	return g.contract.Call(methodResolve).ToTxCandidate()
}

func (g *DisputeGameContract) ClaimCreditTx(recipient common.Address) (txmgr.TxCandidate, error) {
	return g.contract.Call(methodClaimCredit, recipient).ToTxCandidate()
}

func (g *DisputeGameContract) resolveClaimCall(claimIdx uint64) *batching.ContractCall {
	return g.contract.Call(methodResolveClaim, new(big.Int).SetUint64(claimIdx), maxChildChecks)
}

package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"

	contractMetrics "github.com/ethereum-optimism/optimism/op-challenger/game/fault/contracts/metrics"
	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching/rpcblock"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum-optimism/optimism/packages/contracts-bedrock/snapshots"
)

const (
	methodGameCount         = "gameCount"
	methodGameAtIndex       = "gameAtIndex"
	methodGameImpls         = "gameImpls"
	methodSetImplementation = "setImplementation"

	eventDisputeGameCreated = "DisputeGameCreated"
)

var ErrEventNotFound = errors.New("event not found")

type DisputeGameFactoryContract struct {
	metrics     contractMetrics.ContractMetricer
	multiCaller *batching.MultiCaller
	contract    *batching.BoundContract
}

func NewDisputeGameFactoryContract(m contractMetrics.ContractMetricer, addr common.Address, caller *batching.MultiCaller) *DisputeGameFactoryContract {
	factoryAbi := snapshots.LoadDisputeGameFactoryABI()
	return &DisputeGameFactoryContract{
		metrics:     m,
		multiCaller: caller,
		contract:    batching.NewBoundContract(factoryAbi, addr),
	}
}

func (f *DisputeGameFactoryContract) Addr() common.Address {
	return f.contract.Addr()
}

func (f *DisputeGameFactoryContract) GetGameCount(ctx context.Context) (uint64, error) {
	defer f.metrics.StartContractRequest("GetGameCount")()
	result, err := f.multiCaller.SingleCall(ctx, rpcblock.Latest, f.contract.Call(methodGameCount))
	if err != nil {
		return 0, fmt.Errorf("failed to load game count: %w", err)
	}
	return result.GetBigInt(0).Uint64(), nil
}

func (f *DisputeGameFactoryContract) GetGame(ctx context.Context, idx uint64) (gameTypes.GameMetadata, error) {
	defer f.metrics.StartContractRequest("GetGame")()
	result, err := f.multiCaller.SingleCall(ctx, rpcblock.Latest, f.contract.Call(methodGameAtIndex, new(big.Int).SetUint64(idx)))
	if err != nil {
		return gameTypes.GameMetadata{}, fmt.Errorf("failed to load game %v: %w", idx, err)
	}
	return f.decodeGame(idx, result), nil
}

// GetGamesFrom loads every game at or after the given index, in
// ascending index order.
func (f *DisputeGameFactoryContract) GetGamesFrom(ctx context.Context, start uint64) ([]gameTypes.GameMetadata, error) {
	defer f.metrics.StartContractRequest("GetGamesFrom")()
	count, err := f.GetGameCount(ctx)
	if err != nil {
		return nil, err
	}
	if start >= count {
		return nil, nil
	}
	calls := make([]batching.Call, 0, count-start)
	for i := start; i < count; i++ {
		calls = append(calls, f.contract.Call(methodGameAtIndex, new(big.Int).SetUint64(i)))
	}
	results, err := f.multiCaller.Call(ctx, rpcblock.Latest, calls...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch games: %w", err)
	}
	games := make([]gameTypes.GameMetadata, 0, len(results))
	for i, result := range results {
		games = append(games, f.decodeGame(start+uint64(i), result))
	}
	return games, nil
}

func (f *DisputeGameFactoryContract) GetGameImpl(ctx context.Context, gameType uint32) (common.Address, error) {
	defer f.metrics.StartContractRequest("GetGameImpl")()
	result, err := f.multiCaller.SingleCall(ctx, rpcblock.Latest, f.contract.Call(methodGameImpls, gameType))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to load game impl for type %v: %w", gameType, err)
	}
	return result.GetAddress(0), nil
}

func (f *DisputeGameFactoryContract) SetImplementationTx(gameType uint32, impl common.Address) (txmgr.TxCandidate, error) {
	call := f.contract.Call(methodSetImplementation, gameType, impl)
	return call.ToTxCandidate()
}

// DecodeDisputeGameCreatedLog extracts the proxy address, game type and
// root claim from a DisputeGameCreated event in the receipt.
func (f *DisputeGameFactoryContract) DecodeDisputeGameCreatedLog(rcpt *ethTypes.Receipt) (common.Address, uint32, common.Hash, error) {
	for _, eventLog := range rcpt.Logs {
		if eventLog.Address != f.contract.Addr() {
			continue
		}
		name, result, err := f.contract.DecodeEvent(eventLog)
		if err != nil || name != eventDisputeGameCreated {
			continue
		}
		return result.GetAddress(0), result.GetUint32(1), result.GetHash(2), nil
	}
	return common.Address{}, 0, common.Hash{}, fmt.Errorf("%w: DisputeGameCreated in receipt %v", ErrEventNotFound, rcpt.TxHash)
}

func (f *DisputeGameFactoryContract) decodeGame(idx uint64, result *batching.CallResult) gameTypes.GameMetadata {
	return gameTypes.GameMetadata{
		Index:     idx,
		GameType:  result.GetUint32(0),
		Timestamp: result.GetUint64(1),
		Proxy:     result.GetAddress(2),
	}
}

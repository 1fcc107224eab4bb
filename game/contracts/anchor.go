package contracts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	contractMetrics "github.com/ethereum-optimism/optimism/op-challenger/game/fault/contracts/metrics"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching/rpcblock"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/game/types"
)

const (
	methodGetAnchorRoot        = "getAnchorRoot"
	methodRespectedGameType    = "respectedGameType"
	methodSetRespectedGameType = "setRespectedGameType"
)

type AnchorStateRegistryContract struct {
	metrics     contractMetrics.ContractMetricer
	multiCaller *batching.MultiCaller
	contract    *batching.BoundContract
}

func NewAnchorStateRegistryContract(m contractMetrics.ContractMetricer, addr common.Address, caller *batching.MultiCaller) *AnchorStateRegistryContract {
	registryAbi := loadAnchorStateRegistryABI()
	return &AnchorStateRegistryContract{
		metrics:     m,
		multiCaller: caller,
		contract:    batching.NewBoundContract(registryAbi, addr),
	}
}

func (a *AnchorStateRegistryContract) Addr() common.Address {
	return a.contract.Addr()
}

func (a *AnchorStateRegistryContract) GetAnchorRoot(ctx context.Context) (types.AnchorState, error) {
	defer a.metrics.StartContractRequest("GetAnchorRoot")()
	result, err := a.multiCaller.SingleCall(ctx, rpcblock.Latest, a.contract.Call(methodGetAnchorRoot))
	if err != nil {
		return types.AnchorState{}, fmt.Errorf("failed to fetch anchor root: %w", err)
	}
	return types.AnchorState{
		Root:          result.GetHash(0),
		L2BlockHeight: result.GetBigInt(1).Uint64(),
	}, nil
}

func (a *AnchorStateRegistryContract) GetRespectedGameType(ctx context.Context) (uint32, error) {
	defer a.metrics.StartContractRequest("GetRespectedGameType")()
	result, err := a.multiCaller.SingleCall(ctx, rpcblock.Latest, a.contract.Call(methodRespectedGameType))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch respected game type: %w", err)
	}
	return result.GetUint32(0), nil
}

func (a *AnchorStateRegistryContract) SetRespectedGameTypeTx(gameType uint32) (txmgr.TxCandidate, error) {
	return a.contract.Call(methodSetRespectedGameType, gameType).ToTxCandidate()
}

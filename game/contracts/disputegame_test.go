package contracts

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	contractMetrics "github.com/ethereum-optimism/optimism/op-challenger/game/fault/contracts/metrics"
	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching/rpcblock"
	batchingTest "github.com/ethereum-optimism/optimism/op-service/sources/batching/test"
	"github.com/ethereum-optimism/optimism/packages/contracts-bedrock/snapshots"

	"github.com/x2network/op-coordinator/game/window"
)

var gameAddr = common.HexToAddress("0x1234512345123451234512345123451234512345")

func TestGetGameStatus(t *testing.T) {
	tests := []struct {
		name     string
		response uint8
		expected gameTypes.GameStatus
	}{
		{"InProgress", 0, gameTypes.GameStatusInProgress},
		{"ChallengerWon", 1, gameTypes.GameStatusChallengerWon},
		{"DefenderWon", 2, gameTypes.GameStatusDefenderWon},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stubRpc, game := setupDisputeGameTest(t)
			stubRpc.SetResponse(gameAddr, methodStatus, rpcblock.Latest, nil, []interface{}{test.response})

			status, err := game.GetStatus(context.Background())
			require.NoError(t, err)
			require.Equal(t, test.expected, status)
		})
	}
}

func TestGetCreatedAt(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	createdAt := time.Unix(1700000000, 0)
	stubRpc.SetResponse(gameAddr, methodCreatedAt, rpcblock.Latest, nil, []interface{}{uint64(createdAt.Unix())})

	actual, err := game.GetCreatedAt(context.Background())
	require.NoError(t, err)
	require.Equal(t, createdAt, actual)
}

func TestGetChallengeWindow(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	stubRpc.SetResponse(gameAddr, methodMaxClockDuration, rpcblock.Latest, nil, []interface{}{uint64(302400)})
	stubRpc.SetResponse(gameAddr, methodClockExtension, rpcblock.Latest, nil, []interface{}{uint64(10800)})

	spec, err := game.GetChallengeWindow(context.Background())
	require.NoError(t, err)
	require.Equal(t, window.Spec{
		MaxClockDuration: 302400 * time.Second,
		ClockExtension:   10800 * time.Second,
	}, spec)
}

func TestGetChallengeWindow_Invalid(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	stubRpc.SetResponse(gameAddr, methodMaxClockDuration, rpcblock.Latest, nil, []interface{}{uint64(0)})
	stubRpc.SetResponse(gameAddr, methodClockExtension, rpcblock.Latest, nil, []interface{}{uint64(0)})

	_, err := game.GetChallengeWindow(context.Background())
	require.ErrorIs(t, err, window.ErrInvalidSpec)
}

func TestGetClaimCount(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	stubRpc.SetResponse(gameAddr, methodClaimCount, rpcblock.Latest, nil, []interface{}{big.NewInt(1)})

	count, err := game.GetClaimCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestGetCredit(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	recipient := common.Address{0xaa}
	stubRpc.SetResponse(gameAddr, methodCredit, rpcblock.Latest, []interface{}{recipient}, []interface{}{big.NewInt(5000)})

	credit, err := game.GetCredit(context.Background(), recipient)
	require.NoError(t, err)
	require.Zero(t, credit.Cmp(big.NewInt(5000)))
}

func TestCallResolveClaim(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	stubRpc.SetResponse(gameAddr, methodResolveClaim, rpcblock.Latest, []interface{}{big.NewInt(0), maxChildChecks}, nil)

	require.NoError(t, game.CallResolveClaim(context.Background(), 0))
}

func TestCallResolve(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	stubRpc.SetResponse(gameAddr, methodResolve, rpcblock.Latest, nil, []interface{}{uint8(2)})

	status, err := game.CallResolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, gameTypes.GameStatusDefenderWon, status)
}

func TestResolveTxCandidates(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	stubRpc.SetResponse(gameAddr, methodResolveClaim, rpcblock.Latest, []interface{}{big.NewInt(0), maxChildChecks}, nil)
	stubRpc.SetResponse(gameAddr, methodResolve, rpcblock.Latest, nil, []interface{}{uint8(0)})

	tx, err := game.ResolveClaimTx(0)
	require.NoError(t, err)
	stubRpc.VerifyTxCandidate(tx)

	tx, err = game.ResolveTx()
	require.NoError(t, err)
	stubRpc.VerifyTxCandidate(tx)
}

func TestClaimCreditTx(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	recipient := common.Address{0xbb}
	stubRpc.SetResponse(gameAddr, methodClaimCredit, rpcblock.Latest, []interface{}{recipient}, nil)

	tx, err := game.ClaimCreditTx(recipient)
	require.NoError(t, err)
	stubRpc.VerifyTxCandidate(tx)
}

func TestGetAnchorStateRegistry(t *testing.T) {
	stubRpc, game := setupDisputeGameTest(t)
	registryAddr := common.Address{0xcc}
	stubRpc.SetResponse(gameAddr, methodAnchorStateRegistry, rpcblock.Latest, nil, []interface{}{registryAddr})

	actual, err := game.GetAnchorStateRegistry(context.Background())
	require.NoError(t, err)
	require.Equal(t, registryAddr, actual)
}

func setupDisputeGameTest(t *testing.T) (*batchingTest.AbiBasedRpc, *DisputeGameContract) {
	gameAbi := snapshots.LoadFaultDisputeGameABI()
	stubRpc := batchingTest.NewAbiBasedRpc(t, gameAddr, gameAbi)
	caller := batching.NewMultiCaller(stubRpc, batchSize)
	game := NewDisputeGameContract(contractMetrics.NoopContractMetrics, gameAddr, caller)
	return stubRpc, game
}

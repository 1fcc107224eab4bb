package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"

	"github.com/x2network/op-coordinator/game/types"
	"github.com/x2network/op-coordinator/prover"
)

func TestStatus(t *testing.T) {
	api, tracker := setupAPI(t)
	game := common.Address{0xaa}
	tracker.games[game] = types.GameInstance{Status: types.StatusResolved}

	instance, err := api.Status(context.Background(), game)
	require.NoError(t, err)
	require.Equal(t, types.StatusResolved, instance.Status)

	_, err = api.Status(context.Background(), common.Address{0xbb})
	require.ErrorIs(t, err, ErrUnknownGame)
}

func TestListActiveGames(t *testing.T) {
	api, tracker := setupAPI(t)
	tracker.games[common.Address{0xaa}] = types.GameInstance{Status: types.StatusCreated}

	games, err := api.ListActiveGames(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
}

func TestRegisterAndPromoteDelegate(t *testing.T) {
	api, _ := setupAPI(t)
	registry := api.registry.(*stubRegistry)

	require.NoError(t, api.RegisterGameType(context.Background(), 1, common.Address{0x11}))
	require.Equal(t, uint32(1), registry.registered)

	require.NoError(t, api.PromoteRespectedGameType(context.Background(), 1))
	require.Equal(t, uint32(1), registry.promoted)
}

func TestAnchorState(t *testing.T) {
	api, _ := setupAPI(t)

	state, err := api.AnchorState(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1234), state.L2BlockHeight)
}

func TestProvers(t *testing.T) {
	api, _ := setupAPI(t)

	handles, err := api.Provers(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 1)
	require.Equal(t, prover.KindFault, handles[0].Kind)
}

func TestWaitForProposal_UsesConfiguredTimeout(t *testing.T) {
	api, _ := setupAPI(t)
	proposals := api.proposals.(*stubProposals)

	game, err := api.WaitForProposal(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), game.GameType)
	require.Equal(t, uint32(1), proposals.gameType)
	require.Equal(t, testProposalTimeout, proposals.timeout)
}

func TestAPIs(t *testing.T) {
	api, _ := setupAPI(t)
	apis := APIs(api)
	require.Len(t, apis, 1)
	require.Equal(t, "coord", apis[0].Namespace)
	require.Same(t, api, apis[0].Service)
}

const testProposalTimeout = 45 * time.Second

func setupAPI(t *testing.T) (*CoordinatorAPI, *stubTracker) {
	tracker := &stubTracker{games: make(map[common.Address]types.GameInstance)}
	api := NewCoordinatorAPI(&stubRegistry{}, tracker, &stubAnchor{}, &stubProvers{}, &stubProposals{}, testProposalTimeout)
	return api, tracker
}

type stubRegistry struct {
	registered uint32
	promoted   uint32
}

func (s *stubRegistry) Register(_ context.Context, gameType uint32, _ common.Address) error {
	s.registered = gameType
	return nil
}

func (s *stubRegistry) Promote(_ context.Context, gameType uint32) error {
	s.promoted = gameType
	return nil
}

type stubTracker struct {
	games map[common.Address]types.GameInstance
}

func (s *stubTracker) Status(game common.Address) (types.GameInstance, bool) {
	instance, ok := s.games[game]
	return instance, ok
}

func (s *stubTracker) ListActiveGames() []types.GameInstance {
	games := make([]types.GameInstance, 0, len(s.games))
	for _, instance := range s.games {
		games = append(games, instance)
	}
	return games
}

type stubAnchor struct{}

func (s *stubAnchor) Current(context.Context) (types.AnchorState, error) {
	return types.AnchorState{Root: common.Hash{0x77}, L2BlockHeight: 1234}, nil
}

type stubProvers struct{}

func (s *stubProvers) Handles() []prover.Handle {
	return []prover.Handle{{Kind: prover.KindFault, Healthy: true}}
}

type stubProposals struct {
	gameType uint32
	timeout  time.Duration
}

func (s *stubProposals) WaitForProposal(_ context.Context, gameType uint32, timeout time.Duration) (gameTypes.GameMetadata, error) {
	s.gameType = gameType
	s.timeout = timeout
	return gameTypes.GameMetadata{GameType: gameType, Index: 3}, nil
}

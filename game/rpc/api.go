// Package rpc exposes the coordinator's control API in the coord_
// namespace.
package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"

	"github.com/x2network/op-coordinator/game/types"
	"github.com/x2network/op-coordinator/prover"
)

var ErrUnknownGame = errors.New("unknown game")

type GameTypeRegistry interface {
	Register(ctx context.Context, gameType uint32, impl common.Address) error
	Promote(ctx context.Context, gameType uint32) error
}

type GameTracker interface {
	Status(game common.Address) (types.GameInstance, bool)
	ListActiveGames() []types.GameInstance
}

type AnchorSource interface {
	Current(ctx context.Context) (types.AnchorState, error)
}

type ProverSource interface {
	Handles() []prover.Handle
}

type ProposalSource interface {
	WaitForProposal(ctx context.Context, gameType uint32, timeout time.Duration) (gameTypes.GameMetadata, error)
}

type CoordinatorAPI struct {
	registry        GameTypeRegistry
	tracker         GameTracker
	anchor          AnchorSource
	provers         ProverSource
	proposals       ProposalSource
	proposalTimeout time.Duration
}

func NewCoordinatorAPI(registry GameTypeRegistry, tracker GameTracker, anchor AnchorSource, provers ProverSource,
	proposals ProposalSource, proposalTimeout time.Duration) *CoordinatorAPI {
	return &CoordinatorAPI{
		registry:        registry,
		tracker:         tracker,
		anchor:          anchor,
		provers:         provers,
		proposals:       proposals,
		proposalTimeout: proposalTimeout,
	}
}

func (a *CoordinatorAPI) RegisterGameType(ctx context.Context, gameType uint32, impl common.Address) error {
	return a.registry.Register(ctx, gameType, impl)
}

func (a *CoordinatorAPI) PromoteRespectedGameType(ctx context.Context, gameType uint32) error {
	return a.registry.Promote(ctx, gameType)
}

func (a *CoordinatorAPI) Status(_ context.Context, game common.Address) (types.GameInstance, error) {
	instance, ok := a.tracker.Status(game)
	if !ok {
		return types.GameInstance{}, ErrUnknownGame
	}
	return instance, nil
}

func (a *CoordinatorAPI) ListActiveGames(_ context.Context) ([]types.GameInstance, error) {
	return a.tracker.ListActiveGames(), nil
}

func (a *CoordinatorAPI) AnchorState(ctx context.Context) (types.AnchorState, error) {
	return a.anchor.Current(ctx)
}

func (a *CoordinatorAPI) Provers(_ context.Context) ([]prover.Handle, error) {
	return a.provers.Handles(), nil
}

// WaitForProposal blocks until a game of the requested type is created
// after the call, bounded by the service's configured proposal timeout.
func (a *CoordinatorAPI) WaitForProposal(ctx context.Context, gameType uint32) (gameTypes.GameMetadata, error) {
	return a.proposals.WaitForProposal(ctx, gameType, a.proposalTimeout)
}

func APIs(api *CoordinatorAPI) []gethrpc.API {
	return []gethrpc.API{{
		Namespace: "coord",
		Service:   api,
	}}
}

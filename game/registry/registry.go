// Package registry manages game type implementation bindings on the
// dispute game factory and the respected game type on the anchor state
// registry.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"
)

var (
	ErrAlreadyRegistered      = errors.New("game type already registered to a different implementation")
	ErrNotRegistered          = errors.New("game type has no registered implementation")
	ErrRegistrationNotVisible = errors.New("registration confirmed but not visible on chain")
)

type FactorySource interface {
	GetGameImpl(ctx context.Context, gameType uint32) (common.Address, error)
	SetImplementationTx(gameType uint32, impl common.Address) (txmgr.TxCandidate, error)
}

type AnchorSource interface {
	GetRespectedGameType(ctx context.Context) (uint32, error)
	SetRespectedGameTypeTx(gameType uint32) (txmgr.TxCandidate, error)
}

type TxSender interface {
	SendAndWait(ctx context.Context, purpose string, candidate txmgr.TxCandidate) (*ethTypes.Receipt, error)
}

type RegistryMetrics interface {
	RecordGameTypeRegistered(gameType uint32)
	RecordRespectedGameType(gameType uint32)
}

type Registry struct {
	logger  log.Logger
	metrics RegistryMetrics
	factory FactorySource
	anchor  AnchorSource
	sender  TxSender
}

func NewRegistry(logger log.Logger, m RegistryMetrics, factory FactorySource, anchor AnchorSource, sender TxSender) *Registry {
	return &Registry{
		logger:  logger,
		metrics: m,
		factory: factory,
		anchor:  anchor,
		sender:  sender,
	}
}

// Register binds an implementation to a game type. Re-registering the
// same address is a no-op. The binding is read back after the write
// confirms since the mempool may reorder or drop the transaction.
func (r *Registry) Register(ctx context.Context, gameType uint32, impl common.Address) error {
	current, err := r.factory.GetGameImpl(ctx, gameType)
	if err != nil {
		return fmt.Errorf("failed to check existing implementation: %w", err)
	}
	if current == impl {
		r.logger.Info("Game type already registered", "gameType", gameType, "impl", impl)
		return nil
	}
	if current != (common.Address{}) {
		return fmt.Errorf("%w: game type %v bound to %v", ErrAlreadyRegistered, gameType, current)
	}
	candidate, err := r.factory.SetImplementationTx(gameType, impl)
	if err != nil {
		return fmt.Errorf("failed to create setImplementation tx: %w", err)
	}
	if _, err := r.sender.SendAndWait(ctx, "register game type", candidate); err != nil {
		return err
	}
	ok, err := r.Verify(ctx, gameType, impl)
	if err != nil {
		return fmt.Errorf("failed to verify registration: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: game type %v expected impl %v", ErrRegistrationNotVisible, gameType, impl)
	}
	r.metrics.RecordGameTypeRegistered(gameType)
	r.logger.Info("Registered game type", "gameType", gameType, "impl", impl)
	return nil
}

// SetRespected makes the anchor state registry recognize the game type
// for new disputes. The type must have an implementation bound first.
func (r *Registry) SetRespected(ctx context.Context, gameType uint32) error {
	impl, err := r.factory.GetGameImpl(ctx, gameType)
	if err != nil {
		return fmt.Errorf("failed to check implementation: %w", err)
	}
	if impl == (common.Address{}) {
		return fmt.Errorf("%w: game type %v", ErrNotRegistered, gameType)
	}
	candidate, err := r.anchor.SetRespectedGameTypeTx(gameType)
	if err != nil {
		return fmt.Errorf("failed to create setRespectedGameType tx: %w", err)
	}
	if _, err := r.sender.SendAndWait(ctx, "set respected game type", candidate); err != nil {
		return err
	}
	r.metrics.RecordRespectedGameType(gameType)
	r.logger.Info("Set respected game type", "gameType", gameType, "impl", impl)
	return nil
}

// Verify reads the on-chain binding back and compares it to the
// expected implementation.
func (r *Registry) Verify(ctx context.Context, gameType uint32, expected common.Address) (bool, error) {
	actual, err := r.factory.GetGameImpl(ctx, gameType)
	if err != nil {
		return false, fmt.Errorf("failed to read implementation: %w", err)
	}
	return actual == expected, nil
}

// Promote switches the respected game type, typically from a
// permissioned deployment to a permissionless one after the first full
// lifecycle completes. Promoting the already respected type is a no-op.
func (r *Registry) Promote(ctx context.Context, gameType uint32) error {
	current, err := r.anchor.GetRespectedGameType(ctx)
	if err != nil {
		return fmt.Errorf("failed to read respected game type: %w", err)
	}
	if current == gameType {
		r.logger.Info("Game type already respected", "gameType", gameType)
		return nil
	}
	if err := r.SetRespected(ctx, gameType); err != nil {
		return err
	}
	r.logger.Info("Promoted respected game type", "from", current, "to", gameType)
	return nil
}

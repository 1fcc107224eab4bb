// Package watcher detects new dispute games created through the
// DisputeGameFactory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/clock"
)

const (
	DefaultPollInterval    = time.Second
	DefaultProposalTimeout = 600 * time.Second
	// Consecutive poll failures tolerated before the chain is treated
	// as unavailable.
	DefaultMaxPollFailures = 3
)

var (
	ErrWaitTimeout      = errors.New("timed out waiting for proposal")
	ErrChainUnavailable = errors.New("chain unavailable")
)

// GameSource provides the factory reads the watcher needs.
type GameSource interface {
	GetGameCount(ctx context.Context) (uint64, error)
	GetGame(ctx context.Context, idx uint64) (gameTypes.GameMetadata, error)
}

type Watcher struct {
	logger          log.Logger
	clock           clock.Clock
	source          GameSource
	pollInterval    time.Duration
	maxPollFailures int
}

func NewWatcher(logger log.Logger, cl clock.Clock, source GameSource) *Watcher {
	return &Watcher{
		logger:          logger,
		clock:           cl,
		source:          source,
		pollInterval:    DefaultPollInterval,
		maxPollFailures: DefaultMaxPollFailures,
	}
}

func (w *Watcher) SetPollInterval(interval time.Duration) {
	w.pollInterval = interval
}

// WaitForProposal blocks until a game of the requested type is created
// after the call is made. The factory's game count is snapshotted on
// entry so games that already exist are never returned, even if they
// match the type. Concurrent waiters each take their own snapshot.
func (w *Watcher) WaitForProposal(ctx context.Context, gameType uint32, timeout time.Duration) (gameTypes.GameMetadata, error) {
	if timeout <= 0 {
		timeout = DefaultProposalTimeout
	}
	start := w.clock.Now()
	snapshot, err := w.source.GetGameCount(ctx)
	if err != nil {
		return gameTypes.GameMetadata{}, fmt.Errorf("failed to snapshot game count: %w", err)
	}
	w.logger.Debug("Waiting for proposal", "gameType", gameType, "snapshot", snapshot, "timeout", timeout)

	next := snapshot
	failures := 0
	ticker := w.clock.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return gameTypes.GameMetadata{}, ctx.Err()
		case <-ticker.Ch():
			game, found, err := w.scan(ctx, gameType, &next)
			if err != nil {
				failures++
				w.logger.Warn("Failed to poll for new games", "failures", failures, "err", err)
				if failures >= w.maxPollFailures {
					return gameTypes.GameMetadata{}, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
				}
				continue
			}
			failures = 0
			if found {
				w.logger.Info("Detected new game",
					"gameType", game.GameType, "index", game.Index, "game", game.Proxy)
				return game, nil
			}
			if w.clock.Since(start) >= timeout {
				return gameTypes.GameMetadata{}, fmt.Errorf("%w: no game of type %v within %v", ErrWaitTimeout, gameType, timeout)
			}
		}
	}
}

// scan advances through indices [*next, count) looking for a game of the
// requested type. next is updated past every index examined so a game is
// only ever considered once.
func (w *Watcher) scan(ctx context.Context, gameType uint32, next *uint64) (gameTypes.GameMetadata, bool, error) {
	count, err := w.source.GetGameCount(ctx)
	if err != nil {
		return gameTypes.GameMetadata{}, false, err
	}
	for *next < count {
		game, err := w.source.GetGame(ctx, *next)
		if err != nil {
			return gameTypes.GameMetadata{}, false, err
		}
		*next++
		if game.GameType == gameType {
			return game, true, nil
		}
	}
	return gameTypes.GameMetadata{}, false, nil
}

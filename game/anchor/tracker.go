// Package anchor caches the anchor state registry's finalized root and
// enforces that the anchor only ever advances.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/x2network/op-coordinator/game/types"
)

var ErrAnchorRegression = errors.New("anchor state regressed")

type Source interface {
	GetAnchorRoot(ctx context.Context) (types.AnchorState, error)
}

type TrackerMetrics interface {
	RecordAnchorL2Block(height uint64)
}

type Tracker struct {
	logger  log.Logger
	metrics TrackerMetrics
	source  Source

	mu      sync.Mutex
	current types.AnchorState
	loaded  bool
}

func NewTracker(logger log.Logger, m TrackerMetrics, source Source) *Tracker {
	return &Tracker{
		logger:  logger,
		metrics: m,
		source:  source,
	}
}

// Current returns the cached anchor state, loading it on first use.
func (t *Tracker) Current(ctx context.Context) (types.AnchorState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		if err := t.refresh(ctx); err != nil {
			return types.AnchorState{}, err
		}
	}
	return t.current, nil
}

// Update refreshes the cached anchor from the chain. A lower block
// height than the cached state is rejected and never stored.
func (t *Tracker) Update(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refresh(ctx)
}

func (t *Tracker) refresh(ctx context.Context) error {
	state, err := t.source.GetAnchorRoot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load anchor root: %w", err)
	}
	if t.loaded && state.L2BlockHeight < t.current.L2BlockHeight {
		return fmt.Errorf("%w: height %v below cached %v", ErrAnchorRegression, state.L2BlockHeight, t.current.L2BlockHeight)
	}
	if !t.loaded || state != t.current {
		t.logger.Info("Anchor state updated", "root", state.Root, "l2BlockHeight", state.L2BlockHeight)
	}
	t.current = state
	t.loaded = true
	t.metrics.RecordAnchorL2Block(state.L2BlockHeight)
	return nil
}

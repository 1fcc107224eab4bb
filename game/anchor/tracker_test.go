package anchor

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/optimism/op-service/testlog"

	"github.com/x2network/op-coordinator/game/types"
)

func TestCurrent_LoadsOnFirstUse(t *testing.T) {
	tracker, source, metrics := setupTracker(t)
	source.state = types.AnchorState{Root: common.Hash{0xaa}, L2BlockHeight: 100}

	state, err := tracker.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, source.state, state)
	require.Equal(t, 1, source.calls)
	require.Equal(t, uint64(100), metrics.height)

	// Cached, no further chain reads.
	state, err = tracker.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, source.state, state)
	require.Equal(t, 1, source.calls)
}

func TestCurrent_SourceError(t *testing.T) {
	tracker, source, _ := setupTracker(t)
	source.err = errors.New("boom")

	_, err := tracker.Current(context.Background())
	require.ErrorIs(t, err, source.err)
}

func TestUpdate_Advances(t *testing.T) {
	tracker, source, metrics := setupTracker(t)
	source.state = types.AnchorState{Root: common.Hash{0xaa}, L2BlockHeight: 100}
	require.NoError(t, tracker.Update(context.Background()))

	source.state = types.AnchorState{Root: common.Hash{0xbb}, L2BlockHeight: 250}
	require.NoError(t, tracker.Update(context.Background()))

	state, err := tracker.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(250), state.L2BlockHeight)
	require.Equal(t, uint64(250), metrics.height)
}

func TestUpdate_SameHeightAccepted(t *testing.T) {
	tracker, source, _ := setupTracker(t)
	source.state = types.AnchorState{Root: common.Hash{0xaa}, L2BlockHeight: 100}
	require.NoError(t, tracker.Update(context.Background()))
	require.NoError(t, tracker.Update(context.Background()))
}

func TestUpdate_RejectsRegression(t *testing.T) {
	tracker, source, _ := setupTracker(t)
	source.state = types.AnchorState{Root: common.Hash{0xaa}, L2BlockHeight: 100}
	require.NoError(t, tracker.Update(context.Background()))

	source.state = types.AnchorState{Root: common.Hash{0xcc}, L2BlockHeight: 99}
	err := tracker.Update(context.Background())
	require.ErrorIs(t, err, ErrAnchorRegression)

	// Cached state must be untouched by the rejected update.
	state, err := tracker.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, common.Hash{0xaa}, state.Root)
	require.Equal(t, uint64(100), state.L2BlockHeight)
}

func setupTracker(t *testing.T) (*Tracker, *stubSource, *stubMetrics) {
	logger := testlog.Logger(t, log.LvlInfo)
	source := &stubSource{}
	metrics := &stubMetrics{}
	return NewTracker(logger, metrics, source), source, metrics
}

type stubSource struct {
	state types.AnchorState
	err   error
	calls int
}

func (s *stubSource) GetAnchorRoot(_ context.Context) (types.AnchorState, error) {
	s.calls++
	if s.err != nil {
		return types.AnchorState{}, s.err
	}
	return s.state, nil
}

type stubMetrics struct {
	height uint64
}

func (s *stubMetrics) RecordAnchorL2Block(height uint64) {
	s.height = height
}

package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/clock"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	// Consecutive failed heartbeats before a backend is restarted.
	failuresBeforeRestart = 3
)

type SupervisorMetrics interface {
	RecordProverHealth(kind string, healthy bool)
	RecordProverRestart(kind string)
}

type restartable interface {
	restart(ctx context.Context) error
}

type proverState struct {
	prover   Prover
	handle   Handle
	failures int
}

// Supervisor owns the active proof backends, heartbeats them and
// restarts crashed ones. Its health signal gates game resolution:
// resolving a game whose backing proof was never produced is a
// correctness hazard, not just an availability one.
type Supervisor struct {
	logger  log.Logger
	metrics SupervisorMetrics
	clock   clock.Clock

	heartbeatInterval time.Duration

	mu      sync.Mutex
	provers []*proverState

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(ctx context.Context, logger log.Logger, m SupervisorMetrics, cl clock.Clock, provers ...Prover) *Supervisor {
	sCtx, cancel := context.WithCancel(ctx)
	states := make([]*proverState, 0, len(provers))
	for _, p := range provers {
		states = append(states, &proverState{
			prover: p,
			handle: Handle{Kind: p.Kind()},
		})
	}
	return &Supervisor{
		logger:            logger,
		metrics:           m,
		clock:             cl,
		heartbeatInterval: DefaultHeartbeatInterval,
		provers:           states,
		ctx:               sCtx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}
}

func (s *Supervisor) SetHeartbeatInterval(interval time.Duration) {
	s.heartbeatInterval = interval
}

func (s *Supervisor) Start(ctx context.Context) error {
	for _, state := range s.provers {
		if err := state.prover.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %v prover: %w", state.prover.Kind(), err)
		}
		s.logger.Info("Started prover backend", "kind", state.prover.Kind())
	}
	s.checkHealth()
	go s.heartbeatLoop()
	return nil
}

func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	<-s.done
	var result error
	for _, state := range s.provers {
		if err := state.prover.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop %v prover: %w", state.prover.Kind(), err))
		}
	}
	return result
}

// Healthy reports whether every active backend passed its last
// heartbeat. Used by the resolution coordinator as a gate.
func (s *Supervisor) Healthy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.provers {
		if !state.handle.Healthy {
			return fmt.Errorf("%w: %v backend failed last heartbeat", ErrProverUnhealthy, state.handle.Kind)
		}
	}
	return nil
}

// Handles returns a snapshot of every supervised backend.
func (s *Supervisor) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]Handle, 0, len(s.provers))
	for _, state := range s.provers {
		handles = append(handles, state.handle)
	}
	return handles
}

func (s *Supervisor) heartbeatLoop() {
	defer close(s.done)
	ticker := s.clock.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Ch():
			s.checkHealth()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Supervisor) checkHealth() {
	for _, state := range s.provers {
		err := state.prover.Healthy(s.ctx)
		s.mu.Lock()
		state.handle.LastHeartbeat = s.clock.Now()
		state.handle.Healthy = err == nil
		if err == nil {
			state.failures = 0
		} else {
			state.failures++
		}
		failures := state.failures
		restarts := state.handle.Restarts
		s.mu.Unlock()
		s.metrics.RecordProverHealth(state.prover.Kind().String(), err == nil)
		if err == nil {
			continue
		}
		s.logger.Warn("Prover heartbeat failed", "kind", state.prover.Kind(), "failures", failures, "err", err)
		if failures < failuresBeforeRestart {
			continue
		}
		r, ok := state.prover.(restartable)
		if !ok {
			continue
		}
		s.logger.Error("Restarting prover backend", "kind", state.prover.Kind(), "restarts", restarts+1)
		if err := r.restart(s.ctx); err != nil {
			s.logger.Error("Failed to restart prover backend", "kind", state.prover.Kind(), "err", err)
			continue
		}
		s.metrics.RecordProverRestart(state.prover.Kind().String())
		s.mu.Lock()
		state.failures = 0
		state.handle.Restarts++
		s.mu.Unlock()
	}
}

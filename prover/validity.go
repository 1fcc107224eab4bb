package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/clock"
)

// ValidityProver runs the validity proof host. The host continuously
// proves [FastForwardStart, FastForwardTarget) ahead of the anchor, so
// health requires not just liveness but proving progress within
// MaxValidityProvingDelay.
type ValidityProver struct {
	logger  log.Logger
	cfg     Config
	clock   clock.Clock
	process *process
	client  *http.Client

	mu           sync.Mutex
	lastProven   uint64
	lastProgress time.Time
}

var _ Prover = (*ValidityProver)(nil)

func NewValidityProver(logger log.Logger, cl clock.Clock, cfg Config, starter CmdStarter) *ValidityProver {
	return &ValidityProver{
		logger:  logger,
		cfg:     cfg,
		clock:   cl,
		process: newProcess(logger, starter, cfg),
		client:  &http.Client{},
	}
}

func (p *ValidityProver) Kind() Kind {
	return KindValidity
}

func (p *ValidityProver) Start(ctx context.Context) error {
	if err := p.process.start(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastProgress = p.clock.Now()
	p.mu.Unlock()
	return nil
}

func (p *ValidityProver) Stop(ctx context.Context) error {
	return p.process.stop(ctx)
}

type validityHealth struct {
	LatestProvenBlock uint64 `json:"latestProvenBlock"`
}

func (p *ValidityProver) Healthy(ctx context.Context) error {
	if !p.process.running() {
		return fmt.Errorf("%w: host process not running", ErrProverUnhealthy)
	}
	if p.cfg.HealthEndpoint == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.HealthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid health endpoint: %v", ErrProverUnhealthy, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check failed: %v", ErrProverUnhealthy, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health endpoint returned %v", ErrProverUnhealthy, resp.StatusCode)
	}
	var health validityHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("%w: invalid health response: %v", ErrProverUnhealthy, err)
	}
	return p.recordProgress(health.LatestProvenBlock)
}

func (p *ValidityProver) recordProgress(latestProven uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	if latestProven > p.lastProven {
		p.lastProven = latestProven
		p.lastProgress = now
		return nil
	}
	// Proving the full target range is progress enough.
	if latestProven >= p.cfg.FastForwardTarget-1 {
		p.lastProgress = now
		return nil
	}
	if stalled := now.Sub(p.lastProgress); stalled > p.cfg.MaxValidityProvingDelay {
		return fmt.Errorf("%w: no proving progress for %v (latest proven block %v)", ErrProverUnhealthy, stalled, latestProven)
	}
	return nil
}

func (p *ValidityProver) restart(ctx context.Context) error {
	if err := p.process.restart(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastProgress = p.clock.Now()
	p.mu.Unlock()
	return nil
}

package prover

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
)

// FaultProver runs the fault proof host. The host is reactive: it
// watches monitored games itself and only generates a proof when a
// challenge lands, so supervision here is liveness plus the optional
// health endpoint.
type FaultProver struct {
	logger  log.Logger
	cfg     Config
	process *process
	client  *http.Client
}

var _ Prover = (*FaultProver)(nil)

func NewFaultProver(logger log.Logger, cfg Config, starter CmdStarter) *FaultProver {
	return &FaultProver{
		logger:  logger,
		cfg:     cfg,
		process: newProcess(logger, starter, cfg),
		client:  &http.Client{},
	}
}

func (p *FaultProver) Kind() Kind {
	return KindFault
}

func (p *FaultProver) Start(ctx context.Context) error {
	return p.process.start(ctx)
}

func (p *FaultProver) Stop(ctx context.Context) error {
	return p.process.stop(ctx)
}

func (p *FaultProver) Healthy(ctx context.Context) error {
	if !p.process.running() {
		return fmt.Errorf("%w: host process not running", ErrProverUnhealthy)
	}
	if p.cfg.HealthEndpoint == "" {
		return nil
	}
	return checkHealthEndpoint(ctx, p.client, p.cfg.HealthEndpoint)
}

func (p *FaultProver) restart(ctx context.Context) error {
	return p.process.restart(ctx)
}

func checkHealthEndpoint(ctx context.Context, client *http.Client, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid health endpoint: %v", ErrProverUnhealthy, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check failed: %v", ErrProverUnhealthy, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health endpoint returned %v", ErrProverUnhealthy, resp.StatusCode)
	}
	return nil
}

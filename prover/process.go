package prover

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const stopGracePeriod = 10 * time.Second

// CmdStarter launches the host process. Injected so tests never exec.
type CmdStarter func(ctx context.Context, logger log.Logger, bin string, env []string, args ...string) (ProcessHandle, error)

// ProcessHandle is the running host process.
type ProcessHandle interface {
	Interrupt() error
	Kill() error
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
}

type osProcess struct {
	cmd *exec.Cmd
}

func (p *osProcess) Interrupt() error {
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *osProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *osProcess) Wait() error {
	return p.cmd.Wait()
}

// StartCmd is the production CmdStarter.
func StartCmd(_ context.Context, logger log.Logger, bin string, env []string, args ...string) (ProcessHandle, error) {
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	logger.Info("Starting prover host", "bin", bin, "args", args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %v: %w", bin, err)
	}
	return &osProcess{cmd: cmd}, nil
}

// process tracks one launched host and its exit state.
type process struct {
	logger  log.Logger
	starter CmdStarter
	cfg     Config

	mu      sync.Mutex
	handle  ProcessHandle
	exited  chan struct{}
	exitErr error
}

func newProcess(logger log.Logger, starter CmdStarter, cfg Config) *process {
	return &process{
		logger:  logger,
		starter: starter,
		cfg:     cfg,
	}
}

func (p *process) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		return ErrAlreadyStarted
	}
	handle, err := p.starter(ctx, p.logger, p.cfg.Bin, p.cfg.env())
	if err != nil {
		return err
	}
	exited := make(chan struct{})
	p.handle = handle
	p.exited = exited
	p.exitErr = nil
	go func() {
		err := handle.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(exited)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Error("Prover host exited with non-zero exit code", "exit_code", exitErr.ExitCode())
		}
	}()
	return nil
}

func (p *process) stop(ctx context.Context) error {
	p.mu.Lock()
	handle := p.handle
	exited := p.exited
	p.handle = nil
	p.mu.Unlock()
	if handle == nil {
		return nil
	}
	if err := handle.Interrupt(); err != nil {
		return handle.Kill()
	}
	select {
	case <-exited:
		return nil
	case <-time.After(stopGracePeriod):
		return handle.Kill()
	case <-ctx.Done():
		return handle.Kill()
	}
}

func (p *process) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// restart tears down any crashed process and launches a fresh one.
func (p *process) restart(ctx context.Context) error {
	_ = p.stop(ctx)
	return p.start(ctx)
}

// env builds the host's environment surface.
func (c Config) env() []string {
	env := []string{
		"PROVER_L1_ETH_RPC=" + c.L1EthRpc,
		"PROVER_L2_ETH_RPC=" + c.L2EthRpc,
		"PROVER_STARTING_BLOCK_NUMBER=" + strconv.FormatUint(c.StartingBlockNumber, 10),
		"PROVER_OUTPUT_BLOCK_SPAN=" + strconv.FormatUint(c.OutputBlockSpan, 10),
		"PROVER_PROPOSAL_OUTPUT_COUNT=" + strconv.FormatUint(c.ProposalOutputCount, 10),
		"PROVER_CHALLENGE_TIMEOUT=" + strconv.FormatUint(uint64(c.ChallengeTimeout/time.Second), 10),
	}
	collateral := c.CollateralAmount
	if collateral == nil {
		collateral = new(big.Int)
	}
	env = append(env, "PROVER_COLLATERAL_AMOUNT="+collateral.String())
	if c.Kind == KindValidity {
		env = append(env,
			"PROVER_FAST_FORWARD_START="+strconv.FormatUint(c.FastForwardStart, 10),
			"PROVER_FAST_FORWARD_TARGET="+strconv.FormatUint(c.FastForwardTarget, 10),
		)
	}
	return env
}

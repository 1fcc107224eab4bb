// Package prover supervises the external proof backends backing game
// resolution. Exactly one backend is active per rollup instance unless
// A/B comparison is explicitly configured.
package prover

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"
)

type Kind string

const (
	// KindFault is the reactive backend. It stays idle until a
	// monitored game is challenged.
	KindFault Kind = "fault"
	// KindValidity is the proactive backend. It continuously proves a
	// window of blocks ahead of the anchor to fast-track finality.
	KindValidity Kind = "validity"
)

func (k Kind) String() string {
	return string(k)
}

func KindFromString(s string) (Kind, error) {
	switch Kind(s) {
	case KindFault:
		return KindFault, nil
	case KindValidity:
		return KindValidity, nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnknownKind, s)
	}
}

var (
	ErrUnknownKind     = errors.New("unknown prover kind")
	ErrMissingBin      = errors.New("missing prover binary")
	ErrAlreadyStarted  = errors.New("prover already started")
	ErrNotStarted      = errors.New("prover not started")
	ErrProverUnhealthy = errors.New("prover unhealthy")

	ErrInvalidFastForwardRange = errors.New("invalid fast forward range")
	ErrMissingProvingDelay     = errors.New("missing max validity proving delay")
)

// Config is the launch surface shared by both backend kinds. The fields
// mirror the environment the host process reads.
type Config struct {
	Kind Kind
	// Bin is the path to the prover host executable.
	Bin      string
	L1EthRpc string
	L2EthRpc string
	// HealthEndpoint is the host's HTTP health URL. Liveness of the
	// process alone is used when unset.
	HealthEndpoint string

	StartingBlockNumber uint64
	OutputBlockSpan     uint64
	ProposalOutputCount uint64
	CollateralAmount    *big.Int
	ChallengeTimeout    time.Duration

	// Validity mode only. The backend proactively proves blocks in
	// [FastForwardStart, FastForwardTarget).
	FastForwardStart        uint64
	FastForwardTarget       uint64
	MaxValidityProvingDelay time.Duration
}

func (c Config) Check() error {
	if _, err := KindFromString(string(c.Kind)); err != nil {
		return err
	}
	if c.Bin == "" {
		return ErrMissingBin
	}
	if _, err := os.Stat(c.Bin); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingBin, err)
	}
	if c.Kind == KindValidity {
		if c.FastForwardTarget <= c.FastForwardStart {
			return fmt.Errorf("%w: [%v, %v)", ErrInvalidFastForwardRange, c.FastForwardStart, c.FastForwardTarget)
		}
		if c.MaxValidityProvingDelay <= 0 {
			return ErrMissingProvingDelay
		}
	}
	return nil
}

// Handle is a snapshot of a supervised backend.
type Handle struct {
	Kind          Kind      `json:"kind"`
	Healthy       bool      `json:"healthy"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Restarts      int       `json:"restarts"`
}

// Prover is one supervised proof backend.
type Prover interface {
	Kind() Kind
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Healthy(ctx context.Context) error
}

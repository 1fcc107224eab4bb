// Package window computes when a dispute game leaves its challenge
// window and becomes resolvable.
package window

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSpec = errors.New("invalid challenge window")

// Spec is the timing configuration of a game's challenge clock, read
// once from the game contract when the game is first tracked.
type Spec struct {
	// ClockExtension is granted to a team when a move lands near its
	// clock expiry. Only relevant to contested games.
	ClockExtension time.Duration
	// MaxClockDuration is the total chess-clock allowance per team.
	// An unchallenged root claim is resolvable once this much time has
	// passed since the game was created.
	MaxClockDuration time.Duration
}

func (s Spec) Check() error {
	if s.MaxClockDuration <= 0 {
		return fmt.Errorf("%w: non-positive max clock duration %v", ErrInvalidSpec, s.MaxClockDuration)
	}
	if s.ClockExtension < 0 || s.ClockExtension > s.MaxClockDuration {
		return fmt.Errorf("%w: clock extension %v outside [0, %v]", ErrInvalidSpec, s.ClockExtension, s.MaxClockDuration)
	}
	return nil
}

// ResolvableAt returns the earliest instant the game's root claim can be
// resolved, assuming it is never counter-claimed.
func (s Spec) ResolvableAt(proposedAt time.Time) time.Time {
	return proposedAt.Add(s.MaxClockDuration)
}

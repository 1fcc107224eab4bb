package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
)

// GameStatus is the coordinator-side lifecycle status of a tracked game.
// It only ever advances, never regresses. The on-chain game status
// (gameTypes.GameStatus) is the source of truth it is derived from.
type GameStatus uint8

const (
	StatusCreated GameStatus = iota
	StatusAwaitingChallengeWindow
	StatusResolvable
	StatusResolved
	StatusCreditClaimed
)

func (s GameStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusAwaitingChallengeWindow:
		return "awaiting_challenge_window"
	case StatusResolvable:
		return "resolvable"
	case StatusResolved:
		return "resolved"
	case StatusCreditClaimed:
		return "credit_claimed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s GameStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Before reports whether s precedes t in the lifecycle.
func (s GameStatus) Before(t GameStatus) bool {
	return s < t
}

// GameInstance is a snapshot of a tracked game's lifecycle state.
type GameInstance struct {
	Metadata     gameTypes.GameMetadata `json:"metadata"`
	Status       GameStatus             `json:"status"`
	ProposedAt   time.Time              `json:"proposedAt"`
	ResolvableAt time.Time              `json:"resolvableAt"`
	// LastError holds the most recent per-game failure, if any.
	// Failures never abort other games.
	LastError string `json:"lastError,omitempty"`
}

func (g GameInstance) Addr() common.Address {
	return g.Metadata.Proxy
}

// AnchorState is the most recent finalized output root accepted by the
// anchor state registry.
type AnchorState struct {
	Root          common.Hash `json:"root"`
	L2BlockHeight uint64      `json:"l2BlockHeight"`
}

type CreditClaimStatus uint8

const (
	CreditClaimPending CreditClaimStatus = iota
	CreditClaimConfirmed
	CreditClaimFailed
)

func (s CreditClaimStatus) String() string {
	switch s {
	case CreditClaimPending:
		return "pending"
	case CreditClaimConfirmed:
		return "confirmed"
	case CreditClaimFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s CreditClaimStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CreditClaim records the outcome of a claimCredit submission for a
// resolved game.
type CreditClaim struct {
	Game        common.Address    `json:"game"`
	Beneficiary common.Address    `json:"beneficiary"`
	Amount      *big.Int          `json:"amount"`
	TxHash      common.Hash       `json:"txHash"`
	Status      CreditClaimStatus `json:"status"`
}

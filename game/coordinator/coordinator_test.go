package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/game/sender"
	"github.com/x2network/op-coordinator/game/types"
	"github.com/x2network/op-coordinator/game/window"
)

const (
	testMaxClockDuration = 100 * time.Second
	testFinalityDelay    = 5 * time.Second
	eventualTimeout      = 30 * time.Second
)

var gameStart = time.Unix(1000, 0)

func TestLifecycle_HappyPath(t *testing.T) {
	h := setupCoordinator(t)
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })

	require.Equal(t, []string{"resolve claim", "resolve", "claim credit"}, h.sender.sent())
	claims := h.coordinator.CreditClaims()
	require.Len(t, claims, 1)
	require.Equal(t, types.CreditClaimConfirmed, claims[0].Status)
	require.Equal(t, game, claims[0].Game)
	require.True(t, h.coordinator.AllSettled())
	require.EqualValues(t, 1, h.anchor.updates.Load())
	require.EqualValues(t, 1, h.cycles.Load())
	require.EqualValues(t, 1, h.metrics.claimed.Load())
	require.EqualValues(t, 5000, h.metrics.claimedWei.Load())
	require.NoError(t, h.coordinator.FatalErr())
}

func TestLifecycle_RetriesTransientChainReadFailures(t *testing.T) {
	h := setupCoordinator(t)
	contract := h.contract(h.gameAddr(0))
	contract.failStatus(errors.New("connection refused"), 1)
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })

	// The read failed once and was retried rather than killing the
	// game's goroutine.
	require.GreaterOrEqual(t, contract.statusCallCount.Load(), int64(2))
	require.Equal(t, []string{"resolve claim", "resolve", "claim credit"}, h.sender.sent())
	require.NoError(t, h.coordinator.FatalErr())
}

func TestLifecycle_NoPrematureResolution(t *testing.T) {
	h := setupCoordinator(t)
	game := h.trackGame(t, 0)

	// One second short of the challenge window expiring.
	require.True(t, h.cl.WaitForNewPendingTaskWithTimeout(eventualTimeout))
	h.cl.AdvanceTime(testMaxClockDuration - time.Second)
	require.Never(t, func() bool {
		return len(h.sender.sent()) > 0
	}, 500*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, types.StatusAwaitingChallengeWindow, h.status(game))

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })
}

func TestLifecycle_AdoptsExternallyResolvedGame(t *testing.T) {
	h := setupCoordinator(t)
	h.contract(h.gameAddr(0)).setStatus(gameTypes.GameStatusDefenderWon)
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })

	// No resolution transactions, straight to the credit claim.
	require.Equal(t, []string{"claim credit"}, h.sender.sent())
}

func TestLifecycle_AdoptsResolutionRaceLoser(t *testing.T) {
	h := setupCoordinator(t)
	// The game resolves externally between the window expiring and the
	// first resolution attempt.
	contract := h.contract(h.gameAddr(0))
	h.health.onHealthy = func() { contract.setStatus(gameTypes.GameStatusDefenderWon) }
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })
	require.Equal(t, []string{"claim credit"}, h.sender.sent())
}

func TestLifecycle_RetriesRejectedResolution(t *testing.T) {
	h := setupCoordinator(t)
	h.sender.setErr("resolve claim", fmt.Errorf("%w: resolve claim tx", sender.ErrTransactionReverted))
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.metrics.rejections.Load() >= 1 })
	require.Equal(t, types.StatusResolvable, h.status(game))

	h.sender.setErr("resolve claim", nil)
	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })
	require.NoError(t, h.coordinator.FatalErr())
}

func TestLifecycle_RetryBudgetExhausted(t *testing.T) {
	h := setupCoordinator(t)
	h.sender.setErr("resolve claim", fmt.Errorf("%w: resolve claim tx", sender.ErrTransactionReverted))
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.coordinator.FatalErr() != nil })

	require.ErrorIs(t, h.coordinator.FatalErr(), ErrRetriesExhausted)
	require.EqualValues(t, 1, h.fatals.Load())
	require.EqualValues(t, h.cfg.MaxResolutionAttempts, h.metrics.rejections.Load())
	instance, ok := h.coordinator.Status(game)
	require.True(t, ok)
	require.Equal(t, types.StatusResolvable, instance.Status)
	require.NotEmpty(t, instance.LastError)
	require.False(t, h.coordinator.AllSettled())
}

func TestLifecycle_ClaimFailureReportedNotRetried(t *testing.T) {
	h := setupCoordinator(t)
	h.sender.setErr("claim credit", errors.New("insufficient funds"))
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.metrics.claimFailures.Load() == 1 })

	// The game stays Resolved, the claim is recorded as failed and never
	// resubmitted.
	require.Equal(t, types.StatusResolved, h.status(game))
	claims := h.coordinator.CreditClaims()
	require.Len(t, claims, 1)
	require.Equal(t, types.CreditClaimFailed, claims[0].Status)
	require.Never(t, func() bool {
		return h.metrics.claimFailures.Load() > 1
	}, 500*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, h.coordinator.FatalErr())
	require.False(t, h.coordinator.AllSettled())
}

func TestLifecycle_ZeroCreditSkipsClaim(t *testing.T) {
	h := setupCoordinator(t)
	h.contract(h.gameAddr(0)).setCredit(big.NewInt(0))
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })

	require.Equal(t, []string{"resolve claim", "resolve"}, h.sender.sent())
	require.Empty(t, h.coordinator.CreditClaims())
}

func TestLifecycle_FailuresAreIndependent(t *testing.T) {
	h := setupCoordinator(t)
	// Reject every resolution of the first game only.
	h.contract(h.gameAddr(0)).setResolveClaimErr(errors.New("execution reverted"))
	stuck := h.trackGame(t, 0)
	healthy := h.trackGame(t, 1)

	h.driveUntil(t, func() bool { return h.status(healthy) == types.StatusCreditClaimed })
	h.driveUntil(t, func() bool { return h.coordinator.FatalErr() != nil })

	require.Equal(t, types.StatusResolvable, h.status(stuck))
	require.Equal(t, types.StatusCreditClaimed, h.status(healthy))
	require.False(t, h.coordinator.AllSettled())
}

func TestLifecycle_HealthGatePausesResolution(t *testing.T) {
	h := setupCoordinator(t)
	h.health.setErr(errors.New("prover down"))
	game := h.trackGame(t, 0)

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusResolvable })
	require.Never(t, func() bool {
		return len(h.sender.sent()) > 0
	}, 500*time.Millisecond, 10*time.Millisecond)

	h.health.setErr(nil)
	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })
}

func TestLifecycle_LoadsCreationTimeWhenTimestampMissing(t *testing.T) {
	h := setupCoordinator(t)
	game := common.Address{0xff}
	require.NoError(t, h.coordinator.Track(gameTypes.GameMetadata{
		Index:    7,
		GameType: 1,
		Proxy:    game,
	}))

	h.driveUntil(t, func() bool { return h.status(game) == types.StatusCreditClaimed })

	require.EqualValues(t, 1, h.contract(game).createdAtCalls.Load())
	instance, ok := h.coordinator.Status(game)
	require.True(t, ok)
	require.Equal(t, gameStart, instance.ProposedAt)
	require.Equal(t, gameStart.Add(testMaxClockDuration), instance.ResolvableAt)
}

func TestTrack_RejectsDuplicates(t *testing.T) {
	h := setupCoordinator(t)
	game := h.trackGame(t, 0)

	err := h.coordinator.Track(gameTypes.GameMetadata{Index: 0, GameType: 1, Proxy: game})
	require.ErrorIs(t, err, ErrAlreadyTracked)
}

func TestListActiveGames_SortedByIndex(t *testing.T) {
	h := setupCoordinator(t)
	h.trackGame(t, 2)
	h.trackGame(t, 0)
	h.trackGame(t, 1)

	games := h.coordinator.ListActiveGames()
	require.Len(t, games, 3)
	for i, game := range games {
		require.EqualValues(t, i, game.Metadata.Index)
	}
}

type harness struct {
	logger      log.Logger
	cl          *clock.DeterministicClock
	cfg         Config
	sender      *stubTxSender
	health      *stubHealthGate
	anchor      *stubAnchorUpdater
	metrics     *stubCoordinatorMetrics
	coordinator *Coordinator
	cycles      atomic.Int64
	fatals      atomic.Int64

	mu        sync.Mutex
	contracts map[common.Address]*stubGameContract
}

func setupCoordinator(t *testing.T) *harness {
	h := &harness{
		logger: testlog.Logger(t, log.LvlDebug),
		cl:     clock.NewDeterministicClock(gameStart),
		cfg: Config{
			FinalityDelay:         testFinalityDelay,
			MaxResolutionAttempts: 3,
			RetryBackoff:          time.Second,
			HealthRetryInterval:   time.Second,
		},
		health:    &stubHealthGate{},
		anchor:    &stubAnchorUpdater{},
		metrics:   &stubCoordinatorMetrics{},
		contracts: make(map[common.Address]*stubGameContract),
	}
	h.sender = &stubTxSender{errs: make(map[string]error)}
	h.coordinator = NewCoordinator(context.Background(), h.logger, h.metrics, h.cl, h.cfg,
		func(game common.Address) GameContract { return h.contract(game) }, h.sender, h.health, h.anchor)
	h.coordinator.OnCycleComplete = func(context.Context) { h.cycles.Add(1) }
	h.coordinator.OnFatal = func(error) { h.fatals.Add(1) }
	t.Cleanup(h.coordinator.Stop)
	return h
}

func (h *harness) contract(game common.Address) *stubGameContract {
	h.mu.Lock()
	defer h.mu.Unlock()
	contract, ok := h.contracts[game]
	if !ok {
		contract = newStubGameContract()
		h.contracts[game] = contract
	}
	return contract
}

func (h *harness) gameAddr(idx uint64) common.Address {
	return common.Address{byte(idx + 1)}
}

func (h *harness) trackGame(t *testing.T, idx uint64) common.Address {
	addr := h.gameAddr(idx)
	require.NoError(t, h.coordinator.Track(gameTypes.GameMetadata{
		Index:     idx,
		GameType:  1,
		Timestamp: uint64(gameStart.Unix()),
		Proxy:     addr,
	}))
	return addr
}

func (h *harness) status(game common.Address) types.GameStatus {
	instance, ok := h.coordinator.Status(game)
	if !ok {
		return types.StatusCreated
	}
	return instance.Status
}

// driveUntil advances the deterministic clock past any pending sleeps
// until the condition holds.
func (h *harness) driveUntil(t *testing.T, cond func() bool) {
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		h.cl.WaitForNewPendingTaskWithTimeout(50 * time.Millisecond)
		h.cl.AdvanceTime(15 * time.Minute)
		return cond()
	}, eventualTimeout, 10*time.Millisecond)
}

type stubGameContract struct {
	mu              sync.Mutex
	status          gameTypes.GameStatus
	credit          *big.Int
	resolveClaimErr error
	statusErr       error
	statusErrsLeft  int
	createdAtCalls  atomic.Int64
	statusCallCount atomic.Int64
}

func newStubGameContract() *stubGameContract {
	return &stubGameContract{
		status: gameTypes.GameStatusInProgress,
		credit: big.NewInt(5000),
	}
}

func (s *stubGameContract) setStatus(status gameTypes.GameStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *stubGameContract) setCredit(credit *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit = credit
}

func (s *stubGameContract) setResolveClaimErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveClaimErr = err
}

// failStatus makes the next count GetStatus calls fail with err before
// the stub recovers.
func (s *stubGameContract) failStatus(err error, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusErr = err
	s.statusErrsLeft = count
}

func (s *stubGameContract) GetStatus(context.Context) (gameTypes.GameStatus, error) {
	s.statusCallCount.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErrsLeft > 0 {
		s.statusErrsLeft--
		return 0, s.statusErr
	}
	return s.status, nil
}

func (s *stubGameContract) GetCreatedAt(context.Context) (time.Time, error) {
	s.createdAtCalls.Add(1)
	return gameStart, nil
}

func (s *stubGameContract) GetChallengeWindow(context.Context) (window.Spec, error) {
	return window.Spec{MaxClockDuration: testMaxClockDuration}, nil
}

func (s *stubGameContract) GetCredit(context.Context, common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credit, nil
}

func (s *stubGameContract) CallResolveClaim(context.Context, uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveClaimErr
}

func (s *stubGameContract) CallResolve(context.Context) (gameTypes.GameStatus, error) {
	return gameTypes.GameStatusDefenderWon, nil
}

func (s *stubGameContract) ResolveClaimTx(uint64) (txmgr.TxCandidate, error) {
	return txmgr.TxCandidate{}, nil
}

func (s *stubGameContract) ResolveTx() (txmgr.TxCandidate, error) {
	return txmgr.TxCandidate{}, nil
}

func (s *stubGameContract) ClaimCreditTx(common.Address) (txmgr.TxCandidate, error) {
	return txmgr.TxCandidate{}, nil
}

type stubTxSender struct {
	mu       sync.Mutex
	purposes []string
	errs     map[string]error
}

func (s *stubTxSender) From() common.Address {
	return common.Address{0xee}
}

func (s *stubTxSender) setErr(purpose string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, purpose)
	} else {
		s.errs[purpose] = err
	}
}

func (s *stubTxSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	purposes := make([]string, len(s.purposes))
	copy(purposes, s.purposes)
	return purposes
}

func (s *stubTxSender) SendAndWait(_ context.Context, purpose string, _ txmgr.TxCandidate) (*ethTypes.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[purpose]; ok {
		if errors.Is(err, sender.ErrTransactionReverted) {
			return &ethTypes.Receipt{Status: ethTypes.ReceiptStatusFailed, TxHash: common.Hash{0xde, 0xad}}, err
		}
		return nil, err
	}
	s.purposes = append(s.purposes, purpose)
	return &ethTypes.Receipt{Status: ethTypes.ReceiptStatusSuccessful, TxHash: common.Hash{0xbe, 0xef}, BlockNumber: big.NewInt(1)}, nil
}

type stubHealthGate struct {
	mu        sync.Mutex
	err       error
	onHealthy func()
}

func (s *stubHealthGate) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubHealthGate) Healthy(context.Context) error {
	s.mu.Lock()
	err := s.err
	onHealthy := s.onHealthy
	s.mu.Unlock()
	if err == nil && onHealthy != nil {
		onHealthy()
	}
	return err
}

type stubAnchorUpdater struct {
	updates atomic.Int64
}

func (s *stubAnchorUpdater) Update(context.Context) error {
	s.updates.Add(1)
	return nil
}

type stubCoordinatorMetrics struct {
	attempts      atomic.Int64
	rejections    atomic.Int64
	resolved      atomic.Int64
	claimed       atomic.Int64
	claimedWei    atomic.Int64
	claimFailures atomic.Int64
}

func (s *stubCoordinatorMetrics) RecordGameDiscovered(uint32)  {}
func (s *stubCoordinatorMetrics) RecordGameStatus(string, int) {}
func (s *stubCoordinatorMetrics) RecordResolutionAttempt()     { s.attempts.Add(1) }
func (s *stubCoordinatorMetrics) RecordResolutionRejected()    { s.rejections.Add(1) }
func (s *stubCoordinatorMetrics) RecordGameResolved()          { s.resolved.Add(1) }
func (s *stubCoordinatorMetrics) RecordCreditClaimed(amount *big.Int) {
	s.claimed.Add(1)
	s.claimedWei.Add(amount.Int64())
}
func (s *stubCoordinatorMetrics) RecordCreditClaimFailed()     { s.claimFailures.Add(1) }

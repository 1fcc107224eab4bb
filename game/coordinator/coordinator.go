// Package coordinator drives tracked dispute games through claim
// resolution, game resolution and the post-finality credit claim.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/game/sender"
	"github.com/x2network/op-coordinator/game/types"
	"github.com/x2network/op-coordinator/game/window"
)

const (
	DefaultFinalityDelay         = 5 * time.Minute
	DefaultMaxResolutionAttempts = 5
	DefaultRetryBackoff          = 30 * time.Second
	DefaultHealthRetryInterval   = 10 * time.Second

	maxRetryBackoff = 10 * time.Minute

	// chainReadAttempts bounds the retries applied to each chain read
	// before a game's lifecycle is abandoned. Only transport failures
	// are retried here; reverts are classified by the caller.
	chainReadAttempts = 5
)

var (
	ErrResolutionRejected = errors.New("resolution rejected by game contract")
	ErrClaimFailed        = errors.New("credit claim failed")
	ErrRetriesExhausted   = errors.New("resolution retry budget exhausted")
	ErrAlreadyTracked     = errors.New("game already tracked")
)

// GameContract is the per-game contract surface the coordinator drives.
type GameContract interface {
	GetStatus(ctx context.Context) (gameTypes.GameStatus, error)
	GetCreatedAt(ctx context.Context) (time.Time, error)
	GetChallengeWindow(ctx context.Context) (window.Spec, error)
	GetCredit(ctx context.Context, recipient common.Address) (*big.Int, error)
	CallResolveClaim(ctx context.Context, claimIdx uint64) error
	CallResolve(ctx context.Context) (gameTypes.GameStatus, error)
	ResolveClaimTx(claimIdx uint64) (txmgr.TxCandidate, error)
	ResolveTx() (txmgr.TxCandidate, error)
	ClaimCreditTx(recipient common.Address) (txmgr.TxCandidate, error)
}

type ContractCreator func(game common.Address) GameContract

type TxSender interface {
	From() common.Address
	SendAndWait(ctx context.Context, purpose string, candidate txmgr.TxCandidate) (*ethTypes.Receipt, error)
}

// HealthGate reports whether the proof backend for new resolutions is
// healthy. Resolution is paused while it is not.
type HealthGate interface {
	Healthy(ctx context.Context) error
}

type AnchorUpdater interface {
	Update(ctx context.Context) error
}

type CoordinatorMetrics interface {
	RecordGameDiscovered(gameType uint32)
	RecordGameStatus(status string, count int)
	RecordResolutionAttempt()
	RecordResolutionRejected()
	RecordGameResolved()
	RecordCreditClaimed(amount *big.Int)
	RecordCreditClaimFailed()
}

type Config struct {
	// Beneficiary receives claimed credit. Defaults to the tx sender.
	Beneficiary common.Address
	// FinalityDelay is the additional wait between resolve confirming
	// and claimCredit being submitted.
	FinalityDelay         time.Duration
	MaxResolutionAttempts int
	RetryBackoff          time.Duration
	HealthRetryInterval   time.Duration
}

func (c *Config) setDefaults() {
	if c.FinalityDelay <= 0 {
		c.FinalityDelay = DefaultFinalityDelay
	}
	if c.MaxResolutionAttempts <= 0 {
		c.MaxResolutionAttempts = DefaultMaxResolutionAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.HealthRetryInterval <= 0 {
		c.HealthRetryInterval = DefaultHealthRetryInterval
	}
}

type tracked struct {
	instance types.GameInstance
}

type Coordinator struct {
	logger  log.Logger
	metrics CoordinatorMetrics
	clock   clock.Clock
	cfg     Config

	newContract ContractCreator
	sender      TxSender
	health      HealthGate
	anchor      AnchorUpdater

	// OnCycleComplete, if set, runs after a tracked game reaches
	// CreditClaimed. Used to promote the next respected game type.
	OnCycleComplete func(ctx context.Context)
	// OnFatal, if set, is invoked once when a tracked game exhausts
	// its resolution retry budget.
	OnFatal func(err error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	games  map[common.Address]*tracked
	claims []types.CreditClaim
	fatal  error
}

func NewCoordinator(ctx context.Context, logger log.Logger, m CoordinatorMetrics, cl clock.Clock, cfg Config,
	newContract ContractCreator, txSender TxSender, health HealthGate, anchor AnchorUpdater) *Coordinator {
	cfg.setDefaults()
	cCtx, cancel := context.WithCancel(ctx)
	return &Coordinator{
		logger:      logger,
		metrics:     m,
		clock:       cl,
		cfg:         cfg,
		newContract: newContract,
		sender:      txSender,
		health:      health,
		anchor:      anchor,
		ctx:         cCtx,
		cancel:      cancel,
		games:       make(map[common.Address]*tracked),
	}
}

// Track takes ownership of a game's lifecycle and drives it on its own
// goroutine. Failures on one game never abort the others.
func (c *Coordinator) Track(game gameTypes.GameMetadata) error {
	c.mu.Lock()
	if _, ok := c.games[game.Proxy]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrAlreadyTracked, game.Proxy)
	}
	t := &tracked{
		instance: types.GameInstance{
			Metadata:   game,
			Status:     types.StatusCreated,
			ProposedAt: time.Unix(int64(game.Timestamp), 0),
		},
	}
	c.games[game.Proxy] = t
	c.mu.Unlock()

	c.metrics.RecordGameDiscovered(game.GameType)
	c.recordStatusCounts()
	c.logger.Info("Tracking game", "game", game.Proxy, "gameType", game.GameType, "index", game.Index)

	c.wg.Add(1)
	go c.run(t)
	return nil
}

// Stop cancels all in-flight game lifecycles and waits for their
// goroutines to exit.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Status returns a snapshot of a tracked game.
func (c *Coordinator) Status(game common.Address) (types.GameInstance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.games[game]
	if !ok {
		return types.GameInstance{}, false
	}
	return t.instance, true
}

// ListActiveGames returns snapshots of all tracked games in factory
// index order.
func (c *Coordinator) ListActiveGames() []types.GameInstance {
	c.mu.Lock()
	defer c.mu.Unlock()
	games := make([]types.GameInstance, 0, len(c.games))
	for _, t := range c.games {
		games = append(games, t.instance)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].Metadata.Index < games[j].Metadata.Index
	})
	return games
}

// CreditClaims returns the record of every claimCredit submission.
func (c *Coordinator) CreditClaims() []types.CreditClaim {
	c.mu.Lock()
	defer c.mu.Unlock()
	claims := make([]types.CreditClaim, len(c.claims))
	copy(claims, c.claims)
	return claims
}

// AllSettled reports whether every tracked game has reached
// CreditClaimed.
func (c *Coordinator) AllSettled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.games {
		if t.instance.Status != types.StatusCreditClaimed {
			return false
		}
	}
	return true
}

// FatalErr returns the first retry-budget exhaustion, if any.
func (c *Coordinator) FatalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Coordinator) run(t *tracked) {
	defer c.wg.Done()
	err := c.process(c.ctx, t)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.mu.Lock()
	t.instance.LastError = err.Error()
	var fatal error
	if errors.Is(err, ErrRetriesExhausted) && c.fatal == nil {
		c.fatal = fmt.Errorf("game %v: %w", t.instance.Addr(), err)
		fatal = c.fatal
	}
	c.mu.Unlock()
	c.logger.Error("Game lifecycle failed", "game", t.instance.Addr(), "err", err)
	if fatal != nil && c.OnFatal != nil {
		c.OnFatal(fatal)
	}
}

func (c *Coordinator) process(ctx context.Context, t *tracked) error {
	addr := t.instance.Addr()
	contract := c.newContract(addr)

	proposedAt := t.instance.ProposedAt
	if proposedAt.IsZero() || proposedAt.Unix() == 0 {
		createdAt, err := readWithRetry(ctx, contract.GetCreatedAt)
		if err != nil {
			return fmt.Errorf("failed to load game creation time: %w", err)
		}
		proposedAt = createdAt
	}
	spec, err := readWithRetry(ctx, contract.GetChallengeWindow)
	if err != nil {
		return fmt.Errorf("failed to load challenge window: %w", err)
	}
	resolvableAt := spec.ResolvableAt(proposedAt)

	c.mu.Lock()
	t.instance.ProposedAt = proposedAt
	t.instance.ResolvableAt = resolvableAt
	c.mu.Unlock()
	c.advance(t, types.StatusAwaitingChallengeWindow)

	// On-chain state is authoritative. A restart or a third-party
	// resolution may mean the game is already past the window.
	status, err := readWithRetry(ctx, contract.GetStatus)
	if err != nil {
		return fmt.Errorf("failed to load game status: %w", err)
	}
	if status == gameTypes.GameStatusInProgress {
		if err := c.waitUntil(ctx, resolvableAt); err != nil {
			return err
		}
		c.advance(t, types.StatusResolvable)
		if err := c.waitForHealthyProver(ctx, t); err != nil {
			return err
		}
		if err := c.resolveWithRetries(ctx, t, contract); err != nil {
			return err
		}
	} else {
		c.logger.Info("Game already resolved on chain", "game", addr, "status", status)
		c.advance(t, types.StatusResolvable)
	}
	c.advance(t, types.StatusResolved)
	c.metrics.RecordGameResolved()

	c.logger.Debug("Waiting finality delay before claiming credit", "game", addr, "delay", c.cfg.FinalityDelay)
	if err := c.clock.SleepCtx(ctx, c.cfg.FinalityDelay); err != nil {
		return err
	}
	if err := c.claimCredit(ctx, t, contract); err != nil {
		return err
	}
	c.advance(t, types.StatusCreditClaimed)

	if err := c.anchor.Update(ctx); err != nil {
		// The next claim refreshes the anchor; a stale cache is safe.
		c.logger.Warn("Failed to refresh anchor state", "game", addr, "err", err)
	}
	if c.OnCycleComplete != nil {
		c.OnCycleComplete(ctx)
	}
	c.logger.Info("Game lifecycle complete", "game", addr)
	return nil
}

func (c *Coordinator) waitUntil(ctx context.Context, deadline time.Time) error {
	for {
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return nil
		}
		if err := c.clock.SleepCtx(ctx, remaining); err != nil {
			return err
		}
	}
}

func (c *Coordinator) waitForHealthyProver(ctx context.Context, t *tracked) error {
	for {
		err := c.health.Healthy(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Prover unhealthy, pausing resolution", "game", t.instance.Addr(), "err", err)
		if err := c.clock.SleepCtx(ctx, c.cfg.HealthRetryInterval); err != nil {
			return err
		}
	}
}

func (c *Coordinator) resolveWithRetries(ctx context.Context, t *tracked, contract GameContract) error {
	backoff := c.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxResolutionAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Re-queueing resolution", "game", t.instance.Addr(), "attempt", attempt+1, "backoff", backoff, "err", lastErr)
			if err := c.clock.SleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, maxRetryBackoff)
		}
		err := c.resolve(ctx, t, contract)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrResolutionRejected) {
			return err
		}
		c.metrics.RecordResolutionRejected()
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// resolve submits resolveClaim for the root claim and then resolve, in
// strict sequence. resolve is never attempted until resolveClaim has
// confirmed. A game resolved by someone else in the meantime is adopted
// as-is.
func (c *Coordinator) resolve(ctx context.Context, t *tracked, contract GameContract) error {
	addr := t.instance.Addr()
	status, err := readWithRetry(ctx, contract.GetStatus)
	if err != nil {
		return fmt.Errorf("failed to check game status: %w", err)
	}
	if status != gameTypes.GameStatusInProgress {
		c.logger.Info("Game resolved by another actor", "game", addr, "status", status)
		return nil
	}
	c.metrics.RecordResolutionAttempt()

	if err := contract.CallResolveClaim(ctx, 0); err != nil {
		return fmt.Errorf("%w: resolveClaim pre-check reverted: %v", ErrResolutionRejected, err)
	}
	candidate, err := contract.ResolveClaimTx(0)
	if err != nil {
		return fmt.Errorf("failed to create resolveClaim tx: %w", err)
	}
	if _, err := c.sender.SendAndWait(ctx, "resolve claim", candidate); err != nil {
		if errors.Is(err, sender.ErrTransactionReverted) {
			return fmt.Errorf("%w: %v", ErrResolutionRejected, err)
		}
		return err
	}

	if _, err := contract.CallResolve(ctx); err != nil {
		return fmt.Errorf("%w: resolve pre-check reverted: %v", ErrResolutionRejected, err)
	}
	candidate, err = contract.ResolveTx()
	if err != nil {
		return fmt.Errorf("failed to create resolve tx: %w", err)
	}
	if _, err := c.sender.SendAndWait(ctx, "resolve", candidate); err != nil {
		if errors.Is(err, sender.ErrTransactionReverted) {
			return fmt.Errorf("%w: %v", ErrResolutionRejected, err)
		}
		return err
	}
	c.logger.Info("Resolved game", "game", addr)
	return nil
}

func (c *Coordinator) claimCredit(ctx context.Context, t *tracked, contract GameContract) error {
	addr := t.instance.Addr()
	beneficiary := c.cfg.Beneficiary
	if beneficiary == (common.Address{}) {
		beneficiary = c.sender.From()
	}
	credit, err := readWithRetry(ctx, func(ctx context.Context) (*big.Int, error) {
		return contract.GetCredit(ctx, beneficiary)
	})
	if err != nil {
		return fmt.Errorf("failed to check credit: %w", err)
	}
	if credit.Sign() == 0 {
		// Claiming zero credit reverts on the delayed WETH vault.
		c.logger.Info("No credit to claim", "game", addr, "beneficiary", beneficiary)
		return nil
	}
	candidate, err := contract.ClaimCreditTx(beneficiary)
	if err != nil {
		return fmt.Errorf("failed to create claimCredit tx: %w", err)
	}
	receipt, err := c.sender.SendAndWait(ctx, "claim credit", candidate)
	if err != nil {
		var txHash common.Hash
		if receipt != nil {
			txHash = receipt.TxHash
		}
		c.recordClaim(types.CreditClaim{
			Game:        addr,
			Beneficiary: beneficiary,
			Amount:      credit,
			TxHash:      txHash,
			Status:      types.CreditClaimFailed,
		})
		c.metrics.RecordCreditClaimFailed()
		// Reported, never retried. The operator decides whether a
		// re-claim is safe.
		return fmt.Errorf("%w: %v", ErrClaimFailed, err)
	}
	c.recordClaim(types.CreditClaim{
		Game:        addr,
		Beneficiary: beneficiary,
		Amount:      credit,
		TxHash:      receipt.TxHash,
		Status:      types.CreditClaimConfirmed,
	})
	c.metrics.RecordCreditClaimed(credit)
	c.logger.Info("Claimed credit", "game", addr, "beneficiary", beneficiary, "amount", credit)
	return nil
}

// readWithRetry shields chain reads from transient RPC failures so a
// blip never strands a game's goroutine mid-lifecycle.
func readWithRetry[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, chainReadAttempts, retry.Exponential(), func() (T, error) {
		return op(ctx)
	})
}

func (c *Coordinator) recordClaim(claim types.CreditClaim) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims = append(c.claims, claim)
}

// advance moves a game's lifecycle status forward. Regressions are
// ignored, the state machine is monotonic.
func (c *Coordinator) advance(t *tracked, status types.GameStatus) {
	c.mu.Lock()
	if !t.instance.Status.Before(status) {
		c.mu.Unlock()
		return
	}
	t.instance.Status = status
	t.instance.LastError = ""
	c.mu.Unlock()
	c.recordStatusCounts()
	c.logger.Debug("Game status advanced", "game", t.instance.Addr(), "status", status)
}

func (c *Coordinator) recordStatusCounts() {
	c.mu.Lock()
	counts := make(map[types.GameStatus]int)
	for _, t := range c.games {
		counts[t.instance.Status]++
	}
	c.mu.Unlock()
	for _, status := range []types.GameStatus{
		types.StatusCreated,
		types.StatusAwaitingChallengeWindow,
		types.StatusResolvable,
		types.StatusResolved,
		types.StatusCreditClaimed,
	} {
		c.metrics.RecordGameStatus(status.String(), counts[status])
	}
}

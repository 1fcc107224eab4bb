package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/clock"
)

type OnGameDetected func(game gameTypes.GameMetadata)

type MetadataSource interface {
	GameSource
	GetGamesFrom(ctx context.Context, start uint64) ([]gameTypes.GameMetadata, error)
}

// Monitor is the long-lived variant of WaitForProposal. It follows the
// factory and hands every newly created game of a tracked type to the
// callback exactly once.
type Monitor struct {
	logger  log.Logger
	clock   clock.Clock
	source  MetadataSource
	onGame  OnGameDetected
	tracked map[uint32]bool

	pollInterval time.Duration
	nextIdx      uint64

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMonitor(ctx context.Context, logger log.Logger, cl clock.Clock, source MetadataSource, gameTypes []uint32, onGame OnGameDetected) *Monitor {
	tracked := make(map[uint32]bool, len(gameTypes))
	for _, gt := range gameTypes {
		tracked[gt] = true
	}
	return &Monitor{
		logger:       logger,
		clock:        cl,
		source:       source,
		onGame:       onGame,
		tracked:      tracked,
		pollInterval: DefaultPollInterval,
		ctx:          ctx,
		done:         make(chan struct{}),
	}
}

func (m *Monitor) SetPollInterval(interval time.Duration) {
	m.pollInterval = interval
}

// Resume points the monitor at the first factory index it has not yet
// observed. Earlier games are the caller's responsibility to reload.
func (m *Monitor) Resume(nextIdx uint64) {
	m.nextIdx = nextIdx
}

func (m *Monitor) checkNewGames() error {
	games, err := m.source.GetGamesFrom(m.ctx, m.nextIdx)
	if err != nil {
		return fmt.Errorf("failed to load new games: %w", err)
	}
	for _, game := range games {
		m.nextIdx = game.Index + 1
		if !m.tracked[game.GameType] {
			m.logger.Debug("Ignoring game of untracked type", "gameType", game.GameType, "game", game.Proxy)
			continue
		}
		m.onGame(game)
	}
	return nil
}

func (m *Monitor) loop() {
	ticker := m.clock.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Ch():
			if err := m.checkNewGames(); err != nil {
				m.logger.Error("Failed to check for new games", "err", err)
			}
		case <-m.done:
			m.logger.Info("Stopping game watcher")
			return
		}
	}
}

func (m *Monitor) StartMonitoring() {
	if m.cancel == nil {
		ctx, cancel := context.WithCancel(m.ctx)
		m.ctx = ctx
		m.cancel = cancel
	}
	go m.loop()
}

func (m *Monitor) StopMonitoring() {
	m.logger.Info("Stopping watcher")
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	close(m.done)
}

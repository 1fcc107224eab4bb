// Package game wires the coordinator's components into a runnable
// service.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	rpcclient "github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum-optimism/optimism/op-service/dial"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/config"
	"github.com/x2network/op-coordinator/game/anchor"
	"github.com/x2network/op-coordinator/game/contracts"
	"github.com/x2network/op-coordinator/game/coordinator"
	"github.com/x2network/op-coordinator/game/registry"
	coordRpc "github.com/x2network/op-coordinator/game/rpc"
	"github.com/x2network/op-coordinator/game/sender"
	"github.com/x2network/op-coordinator/game/watcher"
	"github.com/x2network/op-coordinator/metrics"
	"github.com/x2network/op-coordinator/prover"
	"github.com/x2network/op-coordinator/version"
)

// noopGate is used when no prover backend is configured; resolution is
// never gated.
type noopGate struct{}

func (noopGate) Healthy(context.Context) error { return nil }

// noopProvers backs the RPC API when supervision is disabled.
type noopProvers struct{}

func (noopProvers) Handles() []prover.Handle { return nil }

type Service struct {
	logger  log.Logger
	metrics metrics.Metricer
	cl      clock.Clock

	l1RawRPC *gethrpc.Client
	l1RPC    rpcclient.RPC
	l1Caller *batching.MultiCaller

	txMgr    *txmgr.SimpleTxManager
	txSender *sender.Sender

	factoryContract *contracts.DisputeGameFactoryContract
	anchorContract  *contracts.AnchorStateRegistryContract

	registry    *registry.Registry
	tracker     *anchor.Tracker
	watcher     *watcher.Watcher
	monitor     *watcher.Monitor
	supervisor  *prover.Supervisor
	coordinator *coordinator.Coordinator

	gameTypes []uint32

	systemCancel context.CancelCauseFunc

	rpcServer       *oprpc.Server
	metricsSrv      *httputil.HTTPServer
	pprofService    *oppprof.Service
	balanceMetricer io.Closer

	stopped atomic.Bool
}

// NewService creates a new Service. systemCancel shuts the whole
// process down when a tracked game exhausts its resolution retry
// budget.
func NewService(ctx context.Context, logger log.Logger, cfg *config.Config, systemCancel context.CancelCauseFunc) (*Service, error) {
	s := &Service{
		logger:       logger,
		metrics:      metrics.NewMetrics(),
		cl:           clock.SystemClock,
		gameTypes:    cfg.GameTypes,
		systemCancel: systemCancel,
	}
	if err := s.initFromConfig(ctx, cfg); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to init service: %w", err), s.Stop(ctx))
	}
	return s, nil
}

func (s *Service) initFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := s.initL1Client(ctx, cfg); err != nil {
		return fmt.Errorf("failed to init l1 client: %w", err)
	}
	if err := s.initTxManager(cfg); err != nil {
		return fmt.Errorf("failed to init tx manager: %w", err)
	}
	if err := s.initPProf(&cfg.PprofConfig); err != nil {
		return fmt.Errorf("failed to init profiling: %w", err)
	}
	if err := s.initMetricsServer(&cfg.MetricsConfig); err != nil {
		return fmt.Errorf("failed to init metrics server: %w", err)
	}
	s.initContracts(cfg)
	s.initRegistry()
	s.initAnchorTracker()
	s.initWatcher(cfg)
	if err := s.initProver(ctx, cfg); err != nil {
		return fmt.Errorf("failed to init prover supervisor: %w", err)
	}
	s.initCoordinator(ctx, cfg)
	s.initMonitor(ctx, cfg)
	if err := s.initRPCServer(cfg); err != nil {
		return fmt.Errorf("failed to init rpc server: %w", err)
	}

	s.metrics.RecordInfo(version.SimpleWithMeta)
	s.metrics.RecordUp()
	return nil
}

func (s *Service) initL1Client(ctx context.Context, cfg *config.Config) error {
	l1RPC, err := dial.DialRPCClientWithTimeout(ctx, dial.DefaultDialTimeout, s.logger, cfg.L1EthRpc)
	if err != nil {
		return fmt.Errorf("failed to dial L1: %w", err)
	}
	s.l1RawRPC = l1RPC
	s.l1RPC = rpcclient.NewBaseRPCClient(l1RPC, rpcclient.WithCallTimeout(30*time.Second))
	s.l1Caller = batching.NewMultiCaller(s.l1RPC, batching.DefaultBatchSize)
	return nil
}

func (s *Service) initTxManager(cfg *config.Config) error {
	txMgr, err := txmgr.NewSimpleTxManager("coordinator", s.logger, s.metrics, cfg.TxMgrConfig)
	if err != nil {
		return fmt.Errorf("failed to create the transaction manager: %w", err)
	}
	s.txMgr = txMgr
	s.txSender = sender.NewSender(s.logger, txMgr)
	s.balanceMetricer = s.metrics.StartBalanceMetrics(s.logger, ethclient.NewClient(s.l1RawRPC), txMgr.From())
	return nil
}

func (s *Service) initContracts(cfg *config.Config) {
	s.factoryContract = contracts.NewDisputeGameFactoryContract(s.metrics, cfg.GameFactoryAddress, s.l1Caller)
	s.anchorContract = contracts.NewAnchorStateRegistryContract(s.metrics, cfg.AnchorStateRegistryAddress, s.l1Caller)
}

func (s *Service) initRegistry() {
	s.registry = registry.NewRegistry(s.logger, s.metrics, s.factoryContract, s.anchorContract, s.txSender)
}

func (s *Service) initAnchorTracker() {
	s.tracker = anchor.NewTracker(s.logger, s.metrics, s.anchorContract)
}

func (s *Service) initWatcher(cfg *config.Config) {
	s.watcher = watcher.NewWatcher(s.logger, s.cl, s.factoryContract)
	s.watcher.SetPollInterval(cfg.PollInterval)
}

func (s *Service) initProver(ctx context.Context, cfg *config.Config) error {
	if cfg.Prover.Bin == "" {
		s.logger.Warn("No prover backend configured, resolution is not gated on proof availability")
		return nil
	}
	var backend prover.Prover
	switch cfg.Prover.Kind {
	case prover.KindFault:
		backend = prover.NewFaultProver(s.logger.New("prover", prover.KindFault), cfg.Prover, prover.StartCmd)
	case prover.KindValidity:
		backend = prover.NewValidityProver(s.logger.New("prover", prover.KindValidity), s.cl, cfg.Prover, prover.StartCmd)
	default:
		return fmt.Errorf("%w: %v", prover.ErrUnknownKind, cfg.Prover.Kind)
	}
	s.supervisor = prover.NewSupervisor(ctx, s.logger, s.metrics, s.cl, backend)
	return nil
}

func (s *Service) initCoordinator(ctx context.Context, cfg *config.Config) {
	var gate coordinator.HealthGate = noopGate{}
	if s.supervisor != nil {
		gate = s.supervisor
	}
	coordCfg := coordinator.Config{
		Beneficiary:           cfg.Beneficiary,
		FinalityDelay:         cfg.FinalityDelay,
		MaxResolutionAttempts: cfg.MaxResolutionAttempts,
		RetryBackoff:          cfg.ResolutionBackoff,
	}
	newContract := func(game common.Address) coordinator.GameContract {
		return contracts.NewDisputeGameContract(s.metrics, game, s.l1Caller)
	}
	s.coordinator = coordinator.NewCoordinator(ctx, s.logger, s.metrics, s.cl, coordCfg,
		newContract, s.txSender, gate, s.tracker)
	if cfg.PromoteGameType != nil {
		promoteType := *cfg.PromoteGameType
		var promoted atomic.Bool
		s.coordinator.OnCycleComplete = func(ctx context.Context) {
			if !promoted.CompareAndSwap(false, true) {
				return
			}
			if err := s.registry.Promote(ctx, promoteType); err != nil {
				promoted.Store(false)
				s.logger.Error("Failed to promote respected game type", "gameType", promoteType, "err", err)
			}
		}
	}
	s.coordinator.OnFatal = func(err error) {
		s.systemCancel(err)
	}
}

func (s *Service) initMonitor(ctx context.Context, cfg *config.Config) {
	s.monitor = watcher.NewMonitor(ctx, s.logger, s.cl, s.factoryContract, cfg.GameTypes, func(game gameTypes.GameMetadata) {
		if err := s.coordinator.Track(game); err != nil {
			s.logger.Error("Failed to track game", "game", game.Proxy, "err", err)
		}
	})
	s.monitor.SetPollInterval(cfg.PollInterval)
}

func (s *Service) initPProf(cfg *oppprof.CLIConfig) error {
	s.pprofService = oppprof.New(
		cfg.ListenEnabled,
		cfg.ListenAddr,
		cfg.ListenPort,
		cfg.ProfileType,
		cfg.ProfileDir,
		cfg.ProfileFilename,
	)
	if err := s.pprofService.Start(); err != nil {
		return fmt.Errorf("failed to start pprof service: %w", err)
	}
	return nil
}

func (s *Service) initMetricsServer(cfg *opmetrics.CLIConfig) error {
	if !cfg.Enabled {
		return nil
	}
	s.logger.Debug("starting metrics server", "addr", cfg.ListenAddr, "port", cfg.ListenPort)
	m, ok := s.metrics.(opmetrics.RegistryMetricer)
	if !ok {
		return fmt.Errorf("metrics were enabled, but metricer %T does not expose registry for metrics-server", s.metrics)
	}
	metricsSrv, err := opmetrics.StartServer(m.Registry(), cfg.ListenAddr, cfg.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	s.logger.Info("started metrics server", "addr", metricsSrv.Addr())
	s.metricsSrv = metricsSrv
	return nil
}

func (s *Service) initRPCServer(cfg *config.Config) error {
	server := oprpc.NewServer(
		cfg.RPCConfig.ListenAddr,
		cfg.RPCConfig.ListenPort,
		version.SimpleWithMeta,
		oprpc.WithLogger(s.logger),
	)
	var provers coordRpc.ProverSource = noopProvers{}
	if s.supervisor != nil {
		provers = s.supervisor
	}
	api := coordRpc.NewCoordinatorAPI(s.registry, s.coordinator, s.tracker, provers, s.watcher, cfg.ProposalTimeout)
	for _, a := range coordRpc.APIs(api) {
		server.AddAPI(a)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("unable to start rpc server: %w", err)
	}
	s.rpcServer = server
	return nil
}

// Start begins tracking games. Previously created games of the tracked
// types are reloaded from the factory so a restart resumes from chain
// state rather than memory.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting coordinator service")
	if s.supervisor != nil {
		if err := s.supervisor.Start(ctx); err != nil {
			return fmt.Errorf("failed to start prover supervisor: %w", err)
		}
	}
	if err := s.resumeGames(ctx); err != nil {
		return fmt.Errorf("failed to resume existing games: %w", err)
	}
	s.monitor.StartMonitoring()
	s.logger.Info("Coordinator service start completed")
	return nil
}

func (s *Service) resumeGames(ctx context.Context) error {
	games, err := s.factoryContract.GetGamesFrom(ctx, 0)
	if err != nil {
		return err
	}
	tracked := make(map[uint32]bool, len(s.gameTypes))
	for _, gt := range s.gameTypes {
		tracked[gt] = true
	}
	var nextIdx uint64
	for _, game := range games {
		nextIdx = game.Index + 1
		if !tracked[game.GameType] {
			continue
		}
		if err := s.coordinator.Track(game); err != nil {
			s.logger.Error("Failed to resume game", "game", game.Proxy, "err", err)
		}
	}
	s.monitor.Resume(nextIdx)
	return nil
}

func (s *Service) Stopped() bool {
	return s.stopped.Load()
}

func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping coordinator service")

	var result error
	if s.monitor != nil {
		s.monitor.StopMonitoring()
	}
	if s.coordinator != nil {
		s.coordinator.Stop()
	}
	if s.supervisor != nil {
		if err := s.supervisor.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop prover supervisor: %w", err))
		}
	}
	if s.rpcServer != nil {
		if err := s.rpcServer.Stop(); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop rpc server: %w", err))
		}
	}
	if s.txMgr != nil {
		s.txMgr.Close()
	}
	if s.balanceMetricer != nil {
		if err := s.balanceMetricer.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to close balance metricer: %w", err))
		}
	}
	if s.pprofService != nil {
		if err := s.pprofService.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to close pprof server: %w", err))
		}
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to close metrics server: %w", err))
		}
	}
	if s.coordinator != nil {
		if err := s.coordinator.FatalErr(); err != nil {
			result = errors.Join(result, err)
		}
	}
	s.stopped.Store(true)
	s.logger.Info("stopped coordinator service", "err", result)
	return result
}

var _ cliapp.Lifecycle = (*Service)(nil)

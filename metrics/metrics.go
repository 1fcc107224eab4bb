package metrics

import (
	"io"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	contractMetrics "github.com/ethereum-optimism/optimism/op-challenger/game/fault/contracts/metrics"
	"github.com/ethereum-optimism/optimism/op-service/eth"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	txmetrics "github.com/ethereum-optimism/optimism/op-service/txmgr/metrics"
)

const Namespace = "op_coordinator"

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	RecordGameDiscovered(gameType uint32)
	RecordGameStatus(status string, count int)
	RecordResolutionAttempt()
	RecordResolutionRejected()
	RecordGameResolved()
	RecordCreditClaimed(amount *big.Int)
	RecordCreditClaimFailed()
	RecordGameTypeRegistered(gameType uint32)
	RecordRespectedGameType(gameType uint32)
	RecordAnchorL2Block(height uint64)
	RecordProverHealth(kind string, healthy bool)
	RecordProverRestart(kind string)

	StartBalanceMetrics(l log.Logger, client *ethclient.Client, account common.Address) io.Closer

	txmetrics.TxMetricer
	contractMetrics.ContractMetricer
	opmetrics.RPCMetricer
}

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	txmetrics.TxMetrics
	*contractMetrics.ContractMetrics
	opmetrics.RPCMetrics

	info prometheus.GaugeVec
	up   prometheus.Gauge

	gamesDiscovered    prometheus.CounterVec
	gameStatus         prometheus.GaugeVec
	resolutionAttempts prometheus.Counter
	resolutionRejected prometheus.Counter
	gamesResolved      prometheus.Counter
	creditsClaimed     prometheus.Counter
	creditClaimedEther prometheus.Counter
	creditClaimsFailed prometheus.Counter
	gameTypeRegistered prometheus.GaugeVec
	respectedGameType  prometheus.Gauge
	anchorL2Block      prometheus.Gauge
	proverHealth       prometheus.GaugeVec
	proverRestarts     prometheus.CounterVec
}

var _ Metricer = (*Metrics)(nil)
var _ opmetrics.RegistryMetricer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	registry := opmetrics.NewRegistry()
	factory := opmetrics.With(registry)

	return &Metrics{
		ns:       Namespace,
		registry: registry,
		factory:  factory,

		TxMetrics:       txmetrics.MakeTxMetrics(Namespace, factory),
		ContractMetrics: contractMetrics.MakeContractMetrics(Namespace, factory),
		RPCMetrics:      opmetrics.MakeRPCMetrics(Namespace, factory),

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "info",
			Help:      "Information about the coordinator",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "up",
			Help:      "1 if the op-coordinator has finished starting up",
		}),
		gamesDiscovered: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "games_discovered_total",
			Help:      "Number of dispute games discovered, by game type",
		}, []string{
			"game_type",
		}),
		gameStatus: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "game_status",
			Help:      "Number of tracked games by lifecycle status",
		}, []string{
			"status",
		}),
		resolutionAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resolution_attempts_total",
			Help:      "Number of attempted game resolutions",
		}),
		resolutionRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resolution_rejected_total",
			Help:      "Number of resolutions rejected by the game contract",
		}),
		gamesResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "games_resolved_total",
			Help:      "Number of games successfully resolved",
		}),
		creditsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credits_claimed_total",
			Help:      "Number of successful credit claims",
		}),
		creditClaimedEther: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credit_claimed_ether_total",
			Help:      "Total credit claimed, in ether",
		}),
		creditClaimsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credit_claims_failed_total",
			Help:      "Number of credit claims that reverted",
		}),
		gameTypeRegistered: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "game_type_registered",
			Help:      "1 for each game type with a registered implementation",
		}, []string{
			"game_type",
		}),
		respectedGameType: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "respected_game_type",
			Help:      "The game type currently respected by the anchor state registry",
		}),
		anchorL2Block: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "anchor_l2_block",
			Help:      "L2 block height of the current anchor state",
		}),
		proverHealth: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "prover_health",
			Help:      "1 if the prover backend is healthy",
		}, []string{
			"kind",
		}),
		proverRestarts: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "prover_restarts_total",
			Help:      "Number of prover backend restarts",
		}, []string{
			"kind",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}

func (m *Metrics) StartBalanceMetrics(l log.Logger, client *ethclient.Client, account common.Address) io.Closer {
	return opmetrics.LaunchBalanceMetrics(l, m.registry, m.ns, client, account)
}

func (m *Metrics) RecordGameDiscovered(gameType uint32) {
	m.gamesDiscovered.WithLabelValues(gameTypeLabel(gameType)).Inc()
}

func (m *Metrics) RecordGameStatus(status string, count int) {
	m.gameStatus.WithLabelValues(status).Set(float64(count))
}

func (m *Metrics) RecordResolutionAttempt() {
	m.resolutionAttempts.Inc()
}

func (m *Metrics) RecordResolutionRejected() {
	m.resolutionRejected.Inc()
}

func (m *Metrics) RecordGameResolved() {
	m.gamesResolved.Inc()
}

func (m *Metrics) RecordCreditClaimed(amount *big.Int) {
	m.creditsClaimed.Inc()
	m.creditClaimedEther.Add(eth.WeiToEther(amount))
}

func (m *Metrics) RecordCreditClaimFailed() {
	m.creditClaimsFailed.Inc()
}

func (m *Metrics) RecordGameTypeRegistered(gameType uint32) {
	m.gameTypeRegistered.WithLabelValues(gameTypeLabel(gameType)).Set(1)
}

func (m *Metrics) RecordRespectedGameType(gameType uint32) {
	m.respectedGameType.Set(float64(gameType))
}

func (m *Metrics) RecordAnchorL2Block(height uint64) {
	m.anchorL2Block.Set(float64(height))
}

func (m *Metrics) RecordProverHealth(kind string, healthy bool) {
	v := float64(0)
	if healthy {
		v = 1
	}
	m.proverHealth.WithLabelValues(kind).Set(v)
}

func (m *Metrics) RecordProverRestart(kind string) {
	m.proverRestarts.WithLabelValues(kind).Inc()
}

func gameTypeLabel(gameType uint32) string {
	return strconv.FormatUint(uint64(gameType), 10)
}

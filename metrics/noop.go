package metrics

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	contractMetrics "github.com/ethereum-optimism/optimism/op-challenger/game/fault/contracts/metrics"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	txmetrics "github.com/ethereum-optimism/optimism/op-service/txmgr/metrics"
)

type NoopMetricsImpl struct {
	txmetrics.NoopTxMetrics
	contractMetrics.NoopMetrics
	opmetrics.NoopRPCMetrics
}

var NoopMetrics Metricer = new(NoopMetricsImpl)

var _ Metricer = (*NoopMetricsImpl)(nil)

func (*NoopMetricsImpl) RecordInfo(version string) {}
func (*NoopMetricsImpl) RecordUp()                 {}

func (*NoopMetricsImpl) RecordGameDiscovered(gameType uint32)       {}
func (*NoopMetricsImpl) RecordGameStatus(status string, count int)  {}
func (*NoopMetricsImpl) RecordResolutionAttempt()                   {}
func (*NoopMetricsImpl) RecordResolutionRejected()                  {}
func (*NoopMetricsImpl) RecordGameResolved()                        {}
func (*NoopMetricsImpl) RecordCreditClaimed(amount *big.Int)        {}
func (*NoopMetricsImpl) RecordCreditClaimFailed()                   {}
func (*NoopMetricsImpl) RecordGameTypeRegistered(gameType uint32)   {}
func (*NoopMetricsImpl) RecordRespectedGameType(gameType uint32)    {}
func (*NoopMetricsImpl) RecordAnchorL2Block(height uint64)          {}
func (*NoopMetricsImpl) RecordProverHealth(kind string, ok bool)    {}
func (*NoopMetricsImpl) RecordProverRestart(kind string)            {}

func (*NoopMetricsImpl) StartBalanceMetrics(l log.Logger, client *ethclient.Client, account common.Address) io.Closer {
	return nil
}

// Package sender funnels all coordinator transactions through a single
// transaction manager so nonce allocation for the signing key stays
// serialized.
package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"
)

var ErrTransactionReverted = errors.New("transaction reverted")

type TxManager interface {
	Send(ctx context.Context, candidate txmgr.TxCandidate) (*ethTypes.Receipt, error)
	From() common.Address
}

type Sender struct {
	logger log.Logger
	txMgr  TxManager
}

func NewSender(logger log.Logger, txMgr TxManager) *Sender {
	return &Sender{
		logger: logger,
		txMgr:  txMgr,
	}
}

func (s *Sender) From() common.Address {
	return s.txMgr.From()
}

// SendAndWait submits a candidate and waits for its receipt. A mined but
// reverted transaction is returned as ErrTransactionReverted together
// with the receipt so callers can report the tx hash.
func (s *Sender) SendAndWait(ctx context.Context, purpose string, candidate txmgr.TxCandidate) (*ethTypes.Receipt, error) {
	receipt, err := s.txMgr.Send(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to send %v tx: %w", purpose, err)
	}
	if receipt.Status == ethTypes.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: %v tx %v", ErrTransactionReverted, purpose, receipt.TxHash)
	}
	s.logger.Debug("Transaction confirmed", "purpose", purpose, "tx", receipt.TxHash, "block", receipt.BlockNumber)
	return receipt, nil
}

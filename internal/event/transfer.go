package event

import (
	"fmt"
	"math/big"
	"time"

	"MemoLedger/internal/math"
	"MemoLedger/internal/memo"
	"MemoLedger/internal/reconcile"
)

// TransferObserved is a TransferWithMemo log pushed by an external indexer.
// Value is in token base units.
type TransferObserved struct {
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Token       string
	From        string
	To          string
	Value       *big.Int
	Memo        [memo.Size]byte
	ObservedAt  time.Time
}

func (t *TransferObserved) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", t.TxHash, t.LogIndex)
}

func (t *TransferObserved) EventType() EventType {
	return EventTypeTransferObserved
}

func (t *TransferObserved) MarketID() *string {
	return nil
}

// Transfer converts the log into the dispatcher's input.
func (t *TransferObserved) Transfer(cfg math.TokenConfig) reconcile.Transfer {
	return reconcile.Transfer{
		TxHash:      t.TxHash,
		LogIndex:    t.LogIndex,
		BlockNumber: t.BlockNumber,
		From:        t.From,
		To:          t.To,
		Amount:      cfg.FromBaseUnits(t.Value),
		Token:       t.Token,
		Memo:        t.Memo,
		ObservedAt:  t.ObservedAt,
	}
}

// TransferReconciled reports what dispatching one transfer did.
type TransferReconciled struct {
	reconcile.Outcome
}

func (t *TransferReconciled) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", t.TxHash, t.LogIndex)
}

func (t *TransferReconciled) EventType() EventType {
	return EventTypeTransferReconciled
}

func (t *TransferReconciled) MarketID() *string {
	if t.Kind != memo.KindBet || t.Target == "" {
		return nil
	}
	id := t.Target
	return &id
}

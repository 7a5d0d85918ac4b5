package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/memo"
)

// Transfer is a value transfer observed on the ledger. Amount is already
// converted from token units.
type Transfer struct {
	TxHash      string          `json:"txHash"`
	LogIndex    uint            `json:"logIndex"`
	BlockNumber uint64          `json:"blockNumber"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token"`
	Memo        [memo.Size]byte `json:"-"`
	ObservedAt  time.Time       `json:"observedAt"`
}

// Action names what a dispatch did to the store.
type Action string

const (
	ActionInvoicePaid     Action = "invoice_paid"
	ActionExpenseRecorded Action = "expense_recorded"
	ActionSplitMemberPaid Action = "split_member_paid"
	ActionSplitSettled    Action = "split_settled"
	ActionBetRecorded     Action = "bet_recorded"
	ActionPaymentRecorded Action = "payment_recorded"
	ActionSkipped         Action = "skipped"
)

// Outcome reports the result of dispatching one transfer.
type Outcome struct {
	TxHash   string    `json:"txHash"`
	LogIndex uint      `json:"logIndex"`
	Kind     memo.Kind `json:"kind"`
	Action   Action    `json:"action"`
	Target   string    `json:"target,omitempty"` // memo hash, split id or market id
	Reason   string    `json:"reason,omitempty"`
}

// Applied reports whether the dispatch changed any record.
func (o Outcome) Applied() bool {
	return o.Action != ActionSkipped
}

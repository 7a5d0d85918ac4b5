package ingestion_test

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"MemoLedger/internal/event"
	"MemoLedger/internal/ingestion"
	"MemoLedger/internal/math"
	"MemoLedger/internal/memo"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "memo.transfers.usdc",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func transferPayload(m [memo.Size]byte) map[string]interface{} {
	return map[string]interface{}{
		"tx_hash":      "0xABCDEF",
		"log_index":    3,
		"block_number": 1200,
		"token":        "0x20c0000000000000000000000000000000000001",
		"from":         alice,
		"to":           bob,
		"value":        "25000000",
		"memo":         memo.Hex(m),
		"timestamp_us": int64(1700000000000000),
	}
}

func TestParseTransferObserved(t *testing.T) {
	raw := rawFromJSON(t, transferPayload(memo.Encode(memo.KindInvoice, "AB12cd34")))
	evt, err := ingestion.ParseRawEvent(raw, "TransferObserved")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tr, ok := evt.(*event.TransferObserved)
	if !ok {
		t.Fatalf("expected *event.TransferObserved, got %T", evt)
	}

	if tr.TxHash != "0xabcdef" {
		t.Errorf("tx_hash: got %s, want 0xabcdef", tr.TxHash)
	}
	if tr.LogIndex != 3 {
		t.Errorf("log_index: got %d, want 3", tr.LogIndex)
	}
	if tr.BlockNumber != 1200 {
		t.Errorf("block_number: got %d, want 1200", tr.BlockNumber)
	}
	if tr.Value.Cmp(big.NewInt(25_000_000)) != 0 {
		t.Errorf("value: got %s, want 25000000", tr.Value)
	}
	if !tr.ObservedAt.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("observed_at: got %v", tr.ObservedAt)
	}
	if tr.IdempotencyKey() != "0xabcdef:3" {
		t.Errorf("idempotency key: got %s, want 0xabcdef:3", tr.IdempotencyKey())
	}

	m, err := memo.Decode(tr.Memo)
	if err != nil {
		t.Fatalf("decode memo: %v", err)
	}
	if m.Kind != memo.KindInvoice || m.Payload != "AB12cd34" {
		t.Errorf("memo: got %s, want INV:AB12cd34", m)
	}

	amount := tr.Transfer(math.StableConfig).Amount
	if amount.String() != "25" {
		t.Errorf("amount: got %s, want 25", amount)
	}
}

func TestParseTransferObservedHexValue(t *testing.T) {
	payload := transferPayload([memo.Size]byte{})
	payload["value"] = "0x17d7840"
	delete(payload, "memo")
	delete(payload, "timestamp_us")

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TransferObserved")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tr := evt.(*event.TransferObserved)
	if tr.Value.Int64() != 25_000_000 {
		t.Errorf("value: got %s, want 25000000", tr.Value)
	}
	if !memo.IsZero(tr.Memo) {
		t.Errorf("memo: expected zero memo")
	}
	if !tr.ObservedAt.Equal(raw.Timestamp) {
		t.Errorf("observed_at should default to receive time")
	}
}

func TestParseTransferObservedRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		want   string
	}{
		{"empty tx hash", func(p map[string]interface{}) { p["tx_hash"] = "" }, "tx_hash"},
		{"bad from", func(p map[string]interface{}) { p["from"] = "alice" }, "from"},
		{"bad to", func(p map[string]interface{}) { p["to"] = "0x12" }, "to"},
		{"bad value", func(p map[string]interface{}) { p["value"] = "12.5" }, "value"},
		{"negative value", func(p map[string]interface{}) { p["value"] = "-1" }, "value"},
		{"memo too long", func(p map[string]interface{}) { p["memo"] = "0x" + strings.Repeat("ab", 33) }, "memo"},
		{"memo not hex", func(p map[string]interface{}) { p["memo"] = "0xzz" }, "memo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := transferPayload(memo.Encode(memo.KindExpense, "lunch"))
			tt.mutate(payload)
			_, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "TransferObserved")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestParseInvalidJSON(t *testing.T) {
	raw := ingestion.RawEvent{
		Subject:   "test",
		Data:      []byte(`{invalid json`),
		Timestamp: time.Now(),
	}
	if _, err := ingestion.ParseRawEvent(raw, "TransferObserved"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]string{"foo": "bar"})
	if _, err := ingestion.ParseRawEvent(raw, "UnknownType"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

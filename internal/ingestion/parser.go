package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"MemoLedger/internal/event"
	"MemoLedger/internal/memo"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a typed event.Event.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "TransferObserved":
		return parseTransferObserved(raw.Data, raw.Timestamp)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream indexers.

type transferJSON struct {
	TxHash      string `json:"tx_hash"`
	LogIndex    uint   `json:"log_index"`
	BlockNumber uint64 `json:"block_number"`
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // base units, decimal or 0x-hex
	Memo        string `json:"memo"`  // 0x-prefixed 32-byte hex
	TimestampUs int64  `json:"timestamp_us,omitempty"`
}

func parseTransferObserved(data []byte, received time.Time) (*event.TransferObserved, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TransferObserved: %w", err)
	}

	if j.TxHash == "" {
		return nil, fmt.Errorf("parse tx_hash: empty")
	}
	if !common.IsHexAddress(j.From) {
		return nil, fmt.Errorf("parse from: invalid address %q", j.From)
	}
	if !common.IsHexAddress(j.To) {
		return nil, fmt.Errorf("parse to: invalid address %q", j.To)
	}

	value, ok := new(big.Int).SetString(strings.TrimSpace(j.Value), 0)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("parse value: invalid amount %q", j.Value)
	}

	var raw [memo.Size]byte
	if j.Memo != "" {
		var err error
		if raw, err = memo.FromHex(j.Memo); err != nil {
			return nil, fmt.Errorf("parse memo: %w", err)
		}
	}

	observed := received
	if j.TimestampUs > 0 {
		observed = time.UnixMicro(j.TimestampUs).UTC()
	}

	return &event.TransferObserved{
		TxHash:      strings.ToLower(j.TxHash),
		LogIndex:    j.LogIndex,
		BlockNumber: j.BlockNumber,
		Token:       j.Token,
		From:        j.From,
		To:          j.To,
		Value:       value,
		Memo:        raw,
		ObservedAt:  observed,
	}, nil
}

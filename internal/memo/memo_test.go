package memo_test

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"MemoLedger/internal/memo"
	"MemoLedger/internal/models"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		kind    memo.Kind
		payload string
	}{
		{memo.KindInvoice, "AB12cd34"},
		{memo.KindExpense, "coffee with team"},
		{memo.KindSplit, "slx3k9a0"},
		{memo.KindBet, "mlx3k9a0Y"},
		{memo.KindPayment, "rent for march"},
		{memo.KindPayment, ""},
		{memo.KindExpense, strings.Repeat("x", memo.MaxPayload)},
	}

	for _, tc := range cases {
		raw := memo.Encode(tc.kind, tc.payload)
		got, err := memo.Decode(raw)
		if err != nil {
			t.Fatalf("decode %s:%s: %v", tc.kind, tc.payload, err)
		}
		if got.Kind != tc.kind || got.Payload != tc.payload {
			t.Errorf("round trip: got %s:%q, want %s:%q", got.Kind, got.Payload, tc.kind, tc.payload)
		}
	}
}

func TestEncode_PadsWithZeros(t *testing.T) {
	raw := memo.Encode(memo.KindInvoice, "AB12cd34")
	if string(raw[:12]) != "INV:AB12cd34" {
		t.Errorf("prefix: got %q", raw[:12])
	}
	for i := 12; i < memo.Size; i++ {
		if raw[i] != 0 {
			t.Fatalf("byte %d: got %#x, want 0", i, raw[i])
		}
	}
}

func TestEncode_TruncatesLongPayload(t *testing.T) {
	raw := memo.Encode(memo.KindPayment, strings.Repeat("a", 40))
	got, err := memo.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Payload) != memo.MaxPayload {
		t.Errorf("payload length: got %d, want %d", len(got.Payload), memo.MaxPayload)
	}
}

func TestEncode_TruncatesOnRuneBoundary(t *testing.T) {
	// 27 ASCII bytes + a 3-byte rune crosses the 32-byte limit.
	payload := strings.Repeat("b", 27) + "€"
	raw := memo.Encode(memo.KindExpense, payload)

	got, err := memo.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !utf8.ValidString(got.Payload) {
		t.Errorf("payload is not valid UTF-8: %q", got.Payload)
	}
	if got.Payload != strings.Repeat("b", 27) {
		t.Errorf("payload: got %q", got.Payload)
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	var raw [memo.Size]byte
	for i := range raw {
		raw[i] = 0xFF
	}
	_, err := memo.Decode(raw)
	if !errors.Is(err, memo.ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
}

func TestDecode_UnknownPrefixIsPayment(t *testing.T) {
	var raw [memo.Size]byte
	copy(raw[:], "lunch money")

	got, err := memo.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != memo.KindPayment || got.Payload != "lunch money" {
		t.Errorf("got %s:%q, want PAY:%q", got.Kind, got.Payload, "lunch money")
	}
}

func TestDecode_PrefixNeedsSeparator(t *testing.T) {
	var raw [memo.Size]byte
	copy(raw[:], "INVOICE 42")

	got, err := memo.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != memo.KindPayment {
		t.Errorf("kind: got %s, want PAY", got.Kind)
	}
}

func TestHexRoundTrip(t *testing.T) {
	raw := memo.Encode(memo.KindSplit, "s123")
	back, err := memo.FromHex(memo.Hex(raw))
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if back != raw {
		t.Errorf("hex round trip mismatch")
	}

	if _, err := memo.FromHex("0x" + strings.Repeat("00", 33)); err == nil {
		t.Error("expected error for 33-byte memo")
	}
}

func TestIsZero(t *testing.T) {
	if !memo.IsZero([memo.Size]byte{}) {
		t.Error("empty memo should be zero")
	}
	if memo.IsZero(memo.Encode(memo.KindPayment, "")) {
		t.Error("PAY: memo should not be zero")
	}
}

func TestBetPayload(t *testing.T) {
	p := memo.BetPayload("mabc", models.PositionYes)
	if p != "mabcY" {
		t.Errorf("yes payload: got %q", p)
	}

	id, pos, err := memo.ParseBetPayload("mabcN")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != "mabc" || pos != models.PositionNo {
		t.Errorf("got %s/%v, want mabc/no", id, pos)
	}

	if _, _, err := memo.ParseBetPayload("Y"); !errors.Is(err, memo.ErrBadBetPayload) {
		t.Errorf("short payload: got %v, want ErrBadBetPayload", err)
	}
}

func TestGenerateIDs(t *testing.T) {
	h, err := memo.GenerateInvoiceHash()
	if err != nil {
		t.Fatalf("generate hash: %v", err)
	}
	if len(h) != memo.InvoiceHashLength {
		t.Errorf("hash length: got %d", len(h))
	}
	if strings.ContainsAny(h, "0O1lI") {
		t.Errorf("hash %q contains ambiguous glyphs", h)
	}

	now := time.UnixMilli(1_700_000_000_000)
	if got := memo.GenerateSplitID(now); got != "sloyw3v28" {
		t.Errorf("split id: got %q", got)
	}
	if got := memo.GenerateMarketID(now); !strings.HasPrefix(got, "m") || got[1:] != "loyw3v28" {
		t.Errorf("market id: got %q", got)
	}
}

// Package memo implements the 32-byte transfer memo that carries an
// application intent alongside every on-chain value transfer.
//
// Wire format: UTF-8 text "{KIND}:{payload}" right-padded with zero bytes to
// exactly 32 bytes. Payloads that do not fit are truncated.
package memo

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Size is the fixed width of an encoded memo in bytes.
const Size = 32

// MaxPayload is the longest payload guaranteed to survive a round trip.
const MaxPayload = Size - 4

// ErrMalformed is returned by Decode when the memo bytes are not valid text.
var ErrMalformed = errors.New("memo: malformed bytes")

// Kind is the application intent encoded in a memo.
type Kind string

const (
	KindInvoice Kind = "INV"
	KindExpense Kind = "EXP"
	KindSplit   Kind = "SPL"
	KindBet     Kind = "BET"
	KindPayment Kind = "PAY"
)

// decodeOrder is the prefix priority used by Decode. First match wins.
var decodeOrder = [...]Kind{KindInvoice, KindExpense, KindSplit, KindBet, KindPayment}

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	for _, known := range decodeOrder {
		if k == known {
			return true
		}
	}
	return false
}

// Memo is a decoded memo.
type Memo struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload"`
}

// String renders the memo in its wire text form, before truncation.
func (m Memo) String() string {
	return string(m.Kind) + ":" + m.Payload
}

// Encode builds the 32-byte memo for kind and payload. Text longer than
// Size is cut at the last complete UTF-8 sequence that fits, so the result
// always decodes.
func Encode(kind Kind, payload string) [Size]byte {
	var out [Size]byte
	copy(out[:], truncate(string(kind)+":"+payload, Size))
	return out
}

// Decode parses a 32-byte memo. Trailing zero bytes are stripped. Text with
// no known prefix decodes as a payment whose payload is the whole text.
func Decode(raw [Size]byte) (Memo, error) {
	b := bytes.TrimRight(raw[:], "\x00")
	if !utf8.Valid(b) {
		return Memo{}, ErrMalformed
	}

	text := string(b)
	for _, k := range decodeOrder {
		prefix := string(k) + ":"
		if strings.HasPrefix(text, prefix) {
			return Memo{Kind: k, Payload: text[len(prefix):]}, nil
		}
	}

	return Memo{Kind: KindPayment, Payload: text}, nil
}

// IsZero reports whether raw carries no memo at all.
func IsZero(raw [Size]byte) bool {
	return raw == [Size]byte{}
}

// Hex renders raw as 0x-prefixed lowercase hex.
func Hex(raw [Size]byte) string {
	return "0x" + hex.EncodeToString(raw[:])
}

// FromHex parses a 0x-prefixed (or bare) hex string of at most 32 bytes.
// Shorter values are right-padded with zeros.
func FromHex(s string) ([Size]byte, error) {
	var out [Size]byte
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode memo hex: %w", err)
	}
	if len(b) > Size {
		return out, fmt.Errorf("memo is %d bytes, max %d", len(b), Size)
	}
	copy(out[:], b)
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package memo

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"time"

	"MemoLedger/internal/models"
)

// hashAlphabet omits glyphs that are easy to misread (0/O, 1/l/I).
const hashAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// InvoiceHashLength is the length of generated invoice memo hashes.
const InvoiceHashLength = 8

// ErrBadBetPayload is returned for BET payloads without a market id.
var ErrBadBetPayload = errors.New("memo: bet payload needs a market id and a Y/N suffix")

// GenerateInvoiceHash returns a short random code used as the INV payload.
// Codes are not guaranteed unique; the store rejects collisions.
func GenerateInvoiceHash() (string, error) {
	max := big.NewInt(int64(len(hashAlphabet)))
	out := make([]byte, InvoiceHashLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = hashAlphabet[n.Int64()]
	}
	return string(out), nil
}

// GenerateSplitID derives a public split id from the creation time.
func GenerateSplitID(now time.Time) string {
	return "s" + strconv.FormatInt(now.UnixMilli(), 36)
}

// GenerateMarketID derives a public market id from the creation time.
func GenerateMarketID(now time.Time) string {
	return "m" + strconv.FormatInt(now.UnixMilli(), 36)
}

// BetPayload builds the BET payload: the market id followed by Y or N.
func BetPayload(marketID string, pos models.Position) string {
	if pos == models.PositionYes {
		return marketID + "Y"
	}
	return marketID + "N"
}

// ParseBetPayload splits a BET payload into market id and position. The
// last character selects the side; anything other than Y means No.
func ParseBetPayload(payload string) (string, models.Position, error) {
	if len(payload) < 2 {
		return "", 0, ErrBadBetPayload
	}
	marketID := payload[:len(payload)-1]
	if payload[len(payload)-1] == 'Y' {
		return marketID, models.PositionYes, nil
	}
	return marketID, models.PositionNo, nil
}

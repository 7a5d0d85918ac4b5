package math_test

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/math"
)

func TestFromBaseUnits(t *testing.T) {
	tests := []struct {
		units int64
		want  string
	}{
		{25_000_000, "25"},
		{1, "0.000001"},
		{1_234_567, "1.234567"},
		{0, "0"},
	}
	for _, tt := range tests {
		got := math.StableConfig.FromBaseUnits(big.NewInt(tt.units))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("FromBaseUnits(%d): got %s, want %s", tt.units, got, tt.want)
		}
	}
	if got := math.StableConfig.FromBaseUnits(nil); !got.IsZero() {
		t.Errorf("nil: got %s, want 0", got)
	}
}

func TestToBaseUnits(t *testing.T) {
	got, err := math.StableConfig.ToBaseUnits(decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("to base units: %v", err)
	}
	if got.Int64() != 12_500_000 {
		t.Errorf("12.5: got %d, want 12500000", got.Int64())
	}

	// 0.0000005 is exactly half a unit; banker's rounding goes to even (0).
	got, _ = math.StableConfig.ToBaseUnits(decimal.RequireFromString("0.0000005"))
	if got.Int64() != 0 {
		t.Errorf("half unit: got %d, want 0", got.Int64())
	}

	if _, err := math.StableConfig.ToBaseUnits(decimal.NewFromInt(-1)); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestSplitEvenly(t *testing.T) {
	tests := []struct {
		total string
		n     int
		want  []string
	}{
		{"90", 3, []string{"30", "30", "30"}},
		{"100", 3, []string{"33.33", "33.33", "33.34"}},
		{"10", 4, []string{"2.5", "2.5", "2.5", "2.5"}},
		{"0.05", 2, []string{"0.02", "0.03"}},
		{"7", 1, []string{"7"}},
		{"2.00", 30, nil},
		{"1", 7, []string{"0.14", "0.14", "0.14", "0.14", "0.14", "0.14", "0.16"}},
	}
	for _, tt := range tests {
		total := decimal.RequireFromString(tt.total)
		got := math.SplitEvenly(total, tt.n)
		if len(got) != tt.n {
			t.Fatalf("%s/%d: got %d shares", tt.total, tt.n, len(got))
		}
		sum := decimal.Zero
		for i, s := range got {
			sum = sum.Add(s)
			if s.IsNegative() {
				t.Errorf("%s/%d share %d: negative %s", tt.total, tt.n, i, s)
			}
			if tt.want != nil && !s.Equal(decimal.RequireFromString(tt.want[i])) {
				t.Errorf("%s/%d share %d: got %s, want %s", tt.total, tt.n, i, s, tt.want[i])
			}
		}
		if !sum.Equal(total) {
			t.Errorf("%s/%d: shares sum to %s", tt.total, tt.n, sum)
		}
	}
	if got := math.SplitEvenly(decimal.NewFromInt(1), 0); got != nil {
		t.Errorf("n=0: got %v, want nil", got)
	}
}

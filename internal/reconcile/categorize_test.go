package reconcile_test

import (
	"testing"

	"MemoLedger/internal/reconcile"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		memo string
		want string
	}{
		{"Coffee with Sam", "Food"},
		{"DINNER", "Food"},
		{"uber home", "Transport"},
		{"gas bill", "Transport"},
		{"amazon order", "Shopping"},
		{"netflix", "Entertainment"},
		{"rent march", "Bills"},
		{"gym membership", "Health"},
		{"textbook", "Education"},
		{"hotel in Rome", "Travel"},
		{"thanks!", "Other"},
		{"", "Other"},
	}
	for _, tt := range tests {
		if got := reconcile.Categorize(tt.memo); got != tt.want {
			t.Errorf("Categorize(%q): got %s, want %s", tt.memo, got, tt.want)
		}
	}
}

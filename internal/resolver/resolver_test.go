package resolver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/models"
	"MemoLedger/internal/persistence"
	"MemoLedger/internal/resolver"
	"MemoLedger/internal/testutil"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func floatPtr(f float64) *float64 { return &f }

func setupMarket(t *testing.T, s *persistence.SQLStore, m *models.Market, bets ...models.MarketBet) {
	t.Helper()
	ctx := context.Background()
	if m.Token == "" {
		m.Token = "AlphaUSD"
	}
	if m.CreatorAddress == "" {
		m.CreatorAddress = "0xhost"
	}
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create market: %v", err)
	}
	for i := range bets {
		bets[i].MarketID = m.MarketID
		if _, err := s.RecordBet(ctx, &bets[i]); err != nil {
			t.Fatalf("record bet: %v", err)
		}
	}
}

func newResolver(t *testing.T) (*resolver.Resolver, *persistence.SQLStore) {
	t.Helper()
	s := testutil.SetupTestStore(t)
	return resolver.New(s, resolver.WithClock(func() time.Time { return now })), s
}

func TestResolveSettlesBets(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()

	setupMarket(t, s, &models.Market{MarketID: "m1", Question: "Q", EndDate: now.Add(-time.Hour)},
		models.MarketBet{UserAddress: "0xa", Position: models.PositionYes, Amount: decimal.NewFromInt(10),
			Shares: floatPtr(20), TxHash: "0x1"},
		models.MarketBet{UserAddress: "0xb", Position: models.PositionYes, Amount: decimal.NewFromInt(7),
			TxHash: "0x2"},
		models.MarketBet{UserAddress: "0xc", Position: models.PositionNo, Amount: decimal.NewFromInt(5),
			Shares: floatPtr(10), TxHash: "0x3"},
	)

	res, err := r.Resolve(ctx, "m1", models.PositionYes, "0xhost")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Success {
		t.Error("success: got false")
	}
	if res.WinnersCount != 2 || res.LosersCount != 1 {
		t.Errorf("counts: got %d winners %d losers, want 2 and 1", res.WinnersCount, res.LosersCount)
	}
	if !res.TotalPayout.Equal(decimal.NewFromInt(27)) {
		t.Errorf("total payout: got %s, want 27", res.TotalPayout)
	}

	m, _ := s.GetMarket(ctx, "m1")
	if m.Status != models.MarketResolved || m.Resolution == nil || *m.Resolution != models.PositionYes {
		t.Errorf("market: status=%s resolution=%v", m.Status, m.Resolution)
	}
	if m.ResolvedAt == nil || !m.ResolvedAt.Equal(now) {
		t.Errorf("resolved at: got %v, want %v", m.ResolvedAt, now)
	}

	payouts, _ := s.ListPayouts(ctx, "m1")
	if len(payouts) != 2 {
		t.Errorf("payout rows: got %d, want 2", len(payouts))
	}
	bets, _ := s.ListBets(ctx, "m1")
	for _, b := range bets {
		if !b.Settled || b.Payout == nil {
			t.Errorf("bet %s: settled=%v payout=%v", b.UserAddress, b.Settled, b.Payout)
			continue
		}
		if b.Position == models.PositionNo && !b.Payout.IsZero() {
			t.Errorf("loser payout: got %s, want 0", b.Payout)
		}
	}
}

func TestResolveTwiceFails(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()
	setupMarket(t, s, &models.Market{MarketID: "m1", Question: "Q", EndDate: now},
		models.MarketBet{UserAddress: "0xa", Position: models.PositionNo, Amount: decimal.NewFromInt(3), TxHash: "0x1"},
	)

	if _, err := r.Resolve(ctx, "m1", models.PositionNo, "0xhost"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	later := resolver.New(s, resolver.WithClock(func() time.Time { return now.Add(time.Hour) }))
	if _, err := later.Resolve(ctx, "m1", models.PositionYes, "0xother"); !errors.Is(err, resolver.ErrMarketNotOpen) {
		t.Errorf("second resolve: got %v, want ErrMarketNotOpen", err)
	}

	m, _ := s.GetMarket(ctx, "m1")
	if !m.ResolvedAt.Equal(now) || *m.Resolution != models.PositionNo || *m.ResolvedBy != "0xhost" {
		t.Errorf("market changed by second resolve: %+v", m)
	}
	payouts, _ := s.ListPayouts(ctx, "m1")
	if len(payouts) != 1 {
		t.Errorf("payout rows: got %d, want 1", len(payouts))
	}
}

func TestSettlePayoutsIsIdempotent(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()
	setupMarket(t, s, &models.Market{MarketID: "m1", Question: "Q", EndDate: now},
		models.MarketBet{UserAddress: "0xa", Position: models.PositionYes, Amount: decimal.NewFromInt(4), TxHash: "0x1"},
	)

	first, err := r.Resolve(ctx, "m1", models.PositionYes, "0xhost")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.WinnersCount != 1 {
		t.Fatalf("winners: got %d, want 1", first.WinnersCount)
	}

	second, err := r.SettlePayouts(ctx, "m1", models.PositionYes)
	if err != nil {
		t.Fatalf("settle again: %v", err)
	}
	if second.WinnersCount != 0 || second.LosersCount != 0 || !second.TotalPayout.IsZero() {
		t.Errorf("second run: got %+v, want zero counts", second)
	}
	payouts, _ := s.ListPayouts(ctx, "m1")
	if len(payouts) != 1 {
		t.Errorf("payout rows: got %d, want 1", len(payouts))
	}
}

func TestResolveValidation(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()
	setupMarket(t, s, &models.Market{MarketID: "m1", Question: "Q", EndDate: now})

	tests := []struct {
		name       string
		marketID   string
		resolution models.Position
		by         string
		want       error
	}{
		{"unknown market", "nope", models.PositionYes, "0xhost", resolver.ErrMarketNotFound},
		{"bad resolution", "m1", models.Position(2), "0xhost", resolver.ErrInvalidResolution},
		{"missing resolver", "m1", models.PositionYes, "", resolver.ErrResolverRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(ctx, tt.marketID, tt.resolution, tt.by)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if res.Success {
				t.Error("success on failure")
			}
		})
	}

	m, _ := s.GetMarket(ctx, "m1")
	if m.Status != models.MarketOpen {
		t.Errorf("status after rejected calls: got %s, want open", m.Status)
	}
}

func TestSweepExpired(t *testing.T) {
	r, s := newResolver(t)
	ctx := context.Background()

	setupMarket(t, s, &models.Market{MarketID: "price-expired", Question: "BTC > 100k?",
		Type: models.MarketPrice, ResolutionSource: models.SourcePriceFeed, EndDate: now.Add(-time.Minute)},
		models.MarketBet{UserAddress: "0xa", Position: models.PositionNo, Amount: decimal.NewFromInt(2), TxHash: "0x1"},
	)
	setupMarket(t, s, &models.Market{MarketID: "manual-expired", Question: "Rain?", EndDate: now.Add(-time.Minute)})
	setupMarket(t, s, &models.Market{MarketID: "price-live", Question: "ETH > 10k?",
		Type: models.MarketPrice, ResolutionSource: models.SourcePriceFeed, EndDate: now.Add(time.Hour)})

	resolved, err := r.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(resolved) != 1 || resolved[0] != "price-expired" {
		t.Errorf("resolved: got %v, want [price-expired]", resolved)
	}

	m, _ := s.GetMarket(ctx, "price-expired")
	if m.Status != models.MarketResolved || *m.Resolution != models.PositionNo || *m.ResolvedBy != resolver.AutoResolver {
		t.Errorf("price market: status=%s resolution=%v by=%v", m.Status, m.Resolution, m.ResolvedBy)
	}
	for _, id := range []string{"manual-expired", "price-live"} {
		m, _ := s.GetMarket(ctx, id)
		if m.Status != models.MarketOpen {
			t.Errorf("%s: got %s, want open", id, m.Status)
		}
	}

	again, err := r.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second sweep resolved %v", again)
	}
}

func TestPayout(t *testing.T) {
	withShares := models.MarketBet{Amount: decimal.NewFromInt(10), Shares: floatPtr(12.5)}
	if got := resolver.Payout(withShares); !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("with shares: got %s, want 12.5", got)
	}
	stakeOnly := models.MarketBet{Amount: decimal.NewFromInt(10)}
	if got := resolver.Payout(stakeOnly); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("stake only: got %s, want 10", got)
	}
}

func TestOnResolvedHook(t *testing.T) {
	s := testutil.SetupTestStore(t)
	var got []resolver.Result
	var by []string
	r := resolver.New(s,
		resolver.WithClock(func() time.Time { return now }),
		resolver.WithOnResolved(func(res resolver.Result, resolvedBy string) {
			got = append(got, res)
			by = append(by, resolvedBy)
		}))
	ctx := context.Background()

	setupMarket(t, s, &models.Market{MarketID: "h1", Question: "Q", EndDate: now.Add(time.Hour)})
	if _, err := r.Resolve(ctx, "h1", models.PositionNo, "0xhost"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := r.Resolve(ctx, "h1", models.PositionNo, "0xhost"); !errors.Is(err, resolver.ErrMarketNotOpen) {
		t.Fatalf("second resolve: got %v, want ErrMarketNotOpen", err)
	}

	if len(got) != 1 {
		t.Fatalf("hook calls: got %d, want 1", len(got))
	}
	if got[0].MarketID != "h1" || !got[0].Success || by[0] != "0xhost" {
		t.Errorf("hook args: got %+v by %s", got[0], by[0])
	}
}

// failingStore fails the SettleBet call numbered failAt (1-based) once.
type failingStore struct {
	*persistence.SQLStore
	failAt int
	calls  int
}

func (f *failingStore) SettleBet(ctx context.Context, betID string, payout decimal.Decimal, p *models.MarketPayout) (bool, error) {
	f.calls++
	if f.calls == f.failAt {
		return false, errors.New("connection reset")
	}
	return f.SQLStore.SettleBet(ctx, betID, payout, p)
}

func TestInterruptedPayoutPassIsFinishedBySweep(t *testing.T) {
	s := testutil.SetupTestStore(t)
	flaky := &failingStore{SQLStore: s, failAt: 2}
	var hooked []resolver.Result
	r := resolver.New(flaky,
		resolver.WithClock(func() time.Time { return now }),
		resolver.WithOnResolved(func(res resolver.Result, _ string) { hooked = append(hooked, res) }))
	ctx := context.Background()

	setupMarket(t, s, &models.Market{MarketID: "m1", Question: "Q", EndDate: now.Add(time.Hour)},
		models.MarketBet{UserAddress: "0xa", Position: models.PositionYes, Amount: decimal.NewFromInt(3),
			TxHash: "0x1", CreatedAt: now.Add(-3 * time.Minute)},
		models.MarketBet{UserAddress: "0xb", Position: models.PositionYes, Amount: decimal.NewFromInt(4),
			TxHash: "0x2", CreatedAt: now.Add(-2 * time.Minute)},
		models.MarketBet{UserAddress: "0xc", Position: models.PositionNo, Amount: decimal.NewFromInt(5),
			TxHash: "0x3", CreatedAt: now.Add(-time.Minute)},
	)

	if _, err := r.Resolve(ctx, "m1", models.PositionYes, "0xhost"); err == nil {
		t.Fatal("resolve: got nil error, want settle failure")
	}
	if _, err := r.Resolve(ctx, "m1", models.PositionYes, "0xhost"); !errors.Is(err, resolver.ErrMarketNotOpen) {
		t.Fatalf("retry: got %v, want ErrMarketNotOpen", err)
	}
	if len(hooked) != 0 {
		t.Errorf("hook calls before recovery: got %d, want 0", len(hooked))
	}

	// Bets arriving after the resolution are recorded but never paid.
	late := models.MarketBet{MarketID: "m1", UserAddress: "0xd", Position: models.PositionYes,
		Amount: decimal.NewFromInt(9), TxHash: "0x4", CreatedAt: now.Add(time.Minute)}
	if _, err := s.RecordBet(ctx, &late); err != nil {
		t.Fatalf("record late bet: %v", err)
	}

	if _, err := r.SweepExpired(ctx, now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	unsettled, _ := s.ListUnsettledBets(ctx, "m1")
	if len(unsettled) != 1 || unsettled[0].UserAddress != "0xd" {
		t.Errorf("unsettled bets: got %+v, want only the late bet", unsettled)
	}
	payouts, _ := s.ListPayouts(ctx, "m1")
	if len(payouts) != 2 {
		t.Errorf("payout rows: got %d, want 2", len(payouts))
	}
	if len(hooked) != 1 || hooked[0].MarketID != "m1" || hooked[0].WinnersCount != 1 || hooked[0].LosersCount != 1 {
		t.Errorf("hook after recovery: got %+v", hooked)
	}

	left, err := s.ListUnsettledResolvedMarkets(ctx)
	if err != nil {
		t.Fatalf("list unfinished: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("unfinished markets: got %d, want 0", len(left))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/memo"
	"MemoLedger/internal/models"
	"MemoLedger/internal/pricing"
	"MemoLedger/internal/store"
)

type CreateMarketRequest struct {
	CreatorAddress   string                  `json:"creatorAddress"`
	Question         string                  `json:"question"`
	EndDate          time.Time               `json:"endDate"`
	Type             models.MarketType       `json:"marketType,omitempty"`
	ResolutionSource models.ResolutionSource `json:"resolutionSource,omitempty"`
}

type MarketCreated struct {
	Market  *models.Market `json:"market"`
	YesMemo PaymentMemo    `json:"yesMemo"`
	NoMemo  PaymentMemo    `json:"noMemo"`
}

// SidePair holds one figure per side of a market.
type SidePair struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

// MarketView is a market with its live prices.
type MarketView struct {
	models.Market
	Bets          []models.MarketBet `json:"bets"`
	Probabilities SidePair           `json:"probabilities"`
	SharePrices   SidePair           `json:"sharePrices"`
}

type BetIntent struct {
	Market   *models.Market  `json:"market"`
	Position string          `json:"position"`
	Amount   decimal.Decimal `json:"amount"`
	Token    string          `json:"token"`
	Memo     PaymentMemo     `json:"memo"`
	Quote    pricing.Quote   `json:"quote"`
}

func timeNudge(attempt int) time.Duration {
	return time.Duration(attempt) * time.Millisecond
}

// CreateMarket opens a market. Binary markets default to manual
// resolution, price markets to the price feed.
func (s *Service) CreateMarket(ctx context.Context, req CreateMarketRequest) (*MarketCreated, error) {
	creator, err := s.address(ctx, "creatorAddress", req.CreatorAddress)
	if err != nil {
		return nil, err
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, invalid("question is required")
	}
	now := s.now().UTC()
	if !req.EndDate.After(now) {
		return nil, invalid("endDate must be in the future")
	}

	m := &models.Market{
		CreatorAddress:   creator,
		Question:         question,
		Type:             req.Type,
		ResolutionSource: req.ResolutionSource,
		EndDate:          req.EndDate.UTC(),
		CreatedAt:        now,
		Status:           models.MarketOpen,
		TotalPool:        decimal.Zero,
		Token:            s.token,
	}
	switch m.Type {
	case "", models.MarketBinary:
		m.Type = models.MarketBinary
		if m.ResolutionSource == "" {
			m.ResolutionSource = models.SourceManual
		}
	case models.MarketPrice:
		if m.ResolutionSource == "" {
			m.ResolutionSource = models.SourcePriceFeed
		}
	default:
		return nil, invalid("marketType must be binary or price")
	}
	if m.ResolutionSource != models.SourceManual && m.ResolutionSource != models.SourcePriceFeed {
		return nil, invalid("resolutionSource must be manual or price_feed")
	}

	for attempt := 0; ; attempt++ {
		m.ID = ""
		m.MarketID = memo.GenerateMarketID(now.Add(timeNudge(attempt)))
		err = s.store.CreateMarket(ctx, m)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt+1 >= maxHashAttempts {
			return nil, fmt.Errorf("create market: %w", err)
		}
	}

	s.logger.Info().
		Str("market_id", m.MarketID).
		Str("type", string(m.Type)).
		Time("end_date", m.EndDate).
		Msg("market created")

	return &MarketCreated{
		Market:  m,
		YesMemo: newPaymentMemo(memo.KindBet, memo.BetPayload(m.MarketID, models.PositionYes)),
		NoMemo:  newPaymentMemo(memo.KindBet, memo.BetPayload(m.MarketID, models.PositionNo)),
	}, nil
}

// ListMarkets returns markets by status ("open" by default, "all" for every
// status) with live prices.
func (s *Service) ListMarkets(ctx context.Context, status string) ([]MarketView, error) {
	var st models.MarketStatus
	switch models.MarketStatus(status) {
	case "":
		st = models.MarketOpen
	case "all":
	case models.MarketOpen, models.MarketResolved, models.MarketCancelled:
		st = models.MarketStatus(status)
	default:
		return nil, invalid("status must be open, resolved, cancelled or all")
	}

	markets, err := s.store.ListMarkets(ctx, st)
	if err != nil {
		return nil, err
	}

	views := make([]MarketView, 0, len(markets))
	for i := range markets {
		v, err := s.view(ctx, &markets[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// GetMarket returns one market with its live prices.
func (s *Service) GetMarket(ctx context.Context, marketID string) (*MarketView, error) {
	m, err := s.market(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, m)
}

// QuoteBet prices a stake on an open market without recording anything.
func (s *Service) QuoteBet(ctx context.Context, marketID string, position models.Position, stake float64) (pricing.Quote, error) {
	if !position.Valid() {
		return pricing.Quote{}, invalid("position must be yes or no")
	}
	if stake <= 0 {
		return pricing.Quote{}, invalid("stake must be positive")
	}
	m, bets, err := s.openMarket(ctx, marketID)
	if err != nil {
		return pricing.Quote{}, err
	}
	return s.pricing.Quote(m, bets, position, stake), nil
}

// PlaceBetIntent returns the BET memo for a stake. The bet itself is
// recorded only when a transfer carrying the memo is observed.
func (s *Service) PlaceBetIntent(ctx context.Context, marketID string, position models.Position, amount decimal.Decimal) (*BetIntent, error) {
	if !position.Valid() {
		return nil, invalid("position must be yes or no")
	}
	if !amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}
	m, bets, err := s.openMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	return &BetIntent{
		Market:   m,
		Position: position.String(),
		Amount:   amount,
		Token:    m.Token,
		Memo:     newPaymentMemo(memo.KindBet, memo.BetPayload(m.MarketID, position)),
		Quote:    s.pricing.Quote(m, bets, position, amount.InexactFloat64()),
	}, nil
}

func (s *Service) market(ctx context.Context, marketID string) (*models.Market, error) {
	if strings.TrimSpace(marketID) == "" {
		return nil, invalid("marketId is required")
	}
	m, err := s.store.GetMarket(ctx, marketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("market %s: %w", marketID, ErrNotFound)
	}
	return m, err
}

func (s *Service) openMarket(ctx context.Context, marketID string) (*models.Market, []models.MarketBet, error) {
	m, err := s.market(ctx, marketID)
	if err != nil {
		return nil, nil, err
	}
	if m.Status != models.MarketOpen {
		return nil, nil, invalid(fmt.Sprintf("market %s is %s", marketID, m.Status))
	}
	bets, err := s.store.ListBets(ctx, marketID)
	if err != nil {
		return nil, nil, err
	}
	return m, bets, nil
}

func (s *Service) view(ctx context.Context, m *models.Market) (*MarketView, error) {
	bets, err := s.store.ListBets(ctx, m.MarketID)
	if err != nil {
		return nil, err
	}
	if bets == nil {
		bets = []models.MarketBet{}
	}
	yes := s.pricing.Probability(m, bets, models.PositionYes)
	no := s.pricing.Probability(m, bets, models.PositionNo)
	return &MarketView{
		Market:        *m,
		Bets:          bets,
		Probabilities: SidePair{Yes: yes, No: no},
		SharePrices:   SidePair{Yes: pricing.SharePrice(yes), No: pricing.SharePrice(no)},
	}, nil
}

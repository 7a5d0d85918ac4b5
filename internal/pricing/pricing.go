// Package pricing derives implied probabilities, share prices and bet quotes
// for prediction markets. Everything here is read-only over market and bet
// data.
package pricing

import (
	"fmt"
	"math"
	"time"

	"MemoLedger/internal/models"
)

const (
	// PlatformFee is the margin that pulls pool odds toward the middle.
	PlatformFee = 0.02

	MinProbability = 0.01
	MaxProbability = 0.99

	// PayoutPerShare is what one winning share pays out.
	PayoutPerShare = 1.0
)

// priceAnchor is the probability a price market converges to as expiry
// nears. With no price feed it equals the base, so price markets quote
// flat at 0.5.
const (
	priceBase   = 0.5
	priceAnchor = 0.5
)

// Quote is the outcome of a hypothetical stake on one side of a market.
type Quote struct {
	Probability     float64 `json:"probability"`
	SharePrice      float64 `json:"sharePrice"`
	Shares          float64 `json:"shares"`
	PotentialPayout float64 `json:"potentialPayout"`
	ImpliedOdds     string  `json:"impliedOdds"`
	Stake           float64 `json:"stake"`
}

// Engine prices markets. The clock only matters for price markets.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Probability returns the implied probability of position winning, always
// within [MinProbability, MaxProbability].
func (e *Engine) Probability(m *models.Market, bets []models.MarketBet, position models.Position) float64 {
	if m.Type == models.MarketPrice {
		return e.priceProbability(m)
	}
	return PoolProbability(bets, position)
}

// PoolProbability is the binary-market model: the side's share of the pool,
// shrunk toward 0.5 by the platform fee. An empty pool is exactly 0.5.
func PoolProbability(bets []models.MarketBet, position models.Position) float64 {
	var yes, no float64
	for _, b := range bets {
		if b.Position == models.PositionYes {
			yes += b.Amount.InexactFloat64()
		} else {
			no += b.Amount.InexactFloat64()
		}
	}

	total := yes + no
	if total == 0 {
		return 0.5
	}

	raw := no / total
	if position == models.PositionYes {
		raw = yes / total
	}
	return clamp(raw*(1-PlatformFee) + PlatformFee/2)
}

func (e *Engine) priceProbability(m *models.Market) float64 {
	impliedVol := 0.5 * math.Sqrt(TimeRatio(m, e.now()))
	return clamp(priceBase + (priceAnchor-priceBase)*(1-impliedVol))
}

// TimeRatio is the fraction of the market's lifetime still remaining. It is
// 0 once the market has expired or when its dates are inconsistent.
func TimeRatio(m *models.Market, now time.Time) float64 {
	total := m.EndDate.Sub(m.CreatedAt)
	if total <= 0 {
		return 0
	}
	remaining := m.EndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return math.Min(1, float64(remaining)/float64(total))
}

// SharePrice is the cost of one share paying PayoutPerShare if it wins.
func SharePrice(probability float64) float64 {
	return clamp(probability)
}

// Shares is how many shares stake buys at the given probability.
func Shares(stake, probability float64) float64 {
	return stake / SharePrice(probability)
}

// PotentialPayout is the payout of shares if they win.
func PotentialPayout(shares float64) float64 {
	return shares * PayoutPerShare
}

// Quote prices a hypothetical stake without touching any state.
func (e *Engine) Quote(m *models.Market, bets []models.MarketBet, position models.Position, stake float64) Quote {
	p := e.Probability(m, bets, position)
	shares := Shares(stake, p)
	return Quote{
		Probability:     p,
		SharePrice:      SharePrice(p),
		Shares:          shares,
		PotentialPayout: PotentialPayout(shares),
		ImpliedOdds:     fmt.Sprintf("%.1f%%", p*100),
		Stake:           stake,
	}
}

func clamp(p float64) float64 {
	return math.Max(MinProbability, math.Min(MaxProbability, p))
}

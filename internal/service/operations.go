package service

import (
	"context"
	"errors"
	"fmt"

	"MemoLedger/internal/event"
	"MemoLedger/internal/models"
	"MemoLedger/internal/resolver"
	"MemoLedger/internal/watcher"
)

// Watch runs one reconciliation pass and publishes every outcome that
// changed a record.
func (s *Service) Watch(ctx context.Context) (watcher.Summary, error) {
	if s.poller == nil {
		return watcher.Summary{}, ErrUnavailable
	}
	summary, err := s.poller.Poll(ctx)
	// A pass aborted midway still committed its earlier outcomes.
	for _, out := range summary.Outcomes {
		if out.Applied() {
			s.publish(&event.TransferReconciled{Outcome: out})
		}
	}
	return summary, err
}

// Resolve resolves an open market and settles its bets. Unknown markets
// wrap ErrNotFound; closed markets and bad input wrap ErrInvalidArgument.
func (s *Service) Resolve(ctx context.Context, marketID string, resolution models.Position, resolvedBy string) (resolver.Result, error) {
	res, err := s.resolver.Resolve(ctx, marketID, resolution, resolvedBy)
	switch {
	case errors.Is(err, resolver.ErrMarketNotFound):
		return res, fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, resolver.ErrMarketNotOpen),
		errors.Is(err, resolver.ErrInvalidResolution),
		errors.Is(err, resolver.ErrResolverRequired):
		return res, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return res, err
}

// Sweep auto-resolves expired price-feed markets and returns their ids.
func (s *Service) Sweep(ctx context.Context) ([]string, error) {
	return s.resolver.SweepExpired(ctx, s.now().UTC())
}

// ResolutionNotifier returns a resolver hook that publishes MarketResolved.
// Pass it to resolver.WithOnResolved so sweeps are published too.
func ResolutionNotifier(p Publisher, observe func(resolver.Result)) func(resolver.Result, string) {
	return func(res resolver.Result, resolvedBy string) {
		if observe != nil {
			observe(res)
		}
		if p != nil {
			p.Enqueue(&event.MarketResolved{Result: res, ResolvedBy: resolvedBy})
		}
	}
}

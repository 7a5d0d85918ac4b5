package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"MemoLedger/internal/math"
	"MemoLedger/internal/memo"
	"MemoLedger/internal/models"
	"MemoLedger/internal/store"
)

type CreateSplitRequest struct {
	CreatorAddress string          `json:"creatorAddress"`
	Title          string          `json:"title"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Participants   []string        `json:"participants"` // addresses, emails or phones
}

type SplitCreated struct {
	Split       *models.Split   `json:"split"`
	SplitID     string          `json:"splitId"`
	PerPerson   decimal.Decimal `json:"perPerson"`
	PaymentMemo PaymentMemo     `json:"paymentMemo"`
}

// CreateSplit divides the total evenly between participants. Shares are
// cent-rounded and the last participant absorbs the rounding remainder.
// The creator's own share, if any, starts out paid.
func (s *Service) CreateSplit(ctx context.Context, req CreateSplitRequest) (*SplitCreated, error) {
	creator, err := s.address(ctx, "creatorAddress", req.CreatorAddress)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title is required")
	}
	if !req.TotalAmount.IsPositive() {
		return nil, invalid("totalAmount must be positive")
	}

	participants := make([]string, 0, len(req.Participants))
	for _, p := range req.Participants {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}
	if len(participants) == 0 {
		return nil, invalid("at least one participant is required")
	}

	shares := math.SplitEvenly(req.TotalAmount, len(participants))
	members := make([]models.SplitMember, len(participants))
	seen := make(map[string]bool, len(participants))
	for i, p := range participants {
		addr, ok := s.resolveHandle(ctx, p)
		if !ok {
			addr = models.NormalizeAddress(p)
		}
		if seen[addr] {
			return nil, invalid(fmt.Sprintf("participant %s is listed twice", p))
		}
		seen[addr] = true

		members[i] = models.SplitMember{
			Address:    addr,
			Identifier: p,
			Amount:     shares[i],
			Paid:       addr == creator,
		}
	}

	now := s.now().UTC()
	sp := &models.Split{
		CreatorAddress: creator,
		Title:          title,
		TotalAmount:    req.TotalAmount,
		Token:          s.token,
		Status:         models.SplitActive,
		CreatedAt:      now,
	}

	for attempt := 0; ; attempt++ {
		sp.ID = ""
		sp.SplitID = memo.GenerateSplitID(now.Add(timeNudge(attempt)))
		err = s.store.CreateSplit(ctx, sp, members)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt+1 >= maxHashAttempts {
			return nil, fmt.Errorf("create split: %w", err)
		}
	}

	// A split whose only member is the creator is settled at birth.
	if models.AllPaid(sp.Members) {
		if _, err := s.store.SettleSplit(ctx, sp.ID); err != nil {
			return nil, fmt.Errorf("settle split %s: %w", sp.SplitID, err)
		}
		sp.Status = models.SplitSettled
	}

	s.logger.Info().
		Str("split_id", sp.SplitID).
		Str("creator", creator).
		Int("members", len(members)).
		Str("total", sp.TotalAmount.String()).
		Msg("split created")

	return &SplitCreated{
		Split:       sp,
		SplitID:     sp.SplitID,
		PerPerson:   shares[0],
		PaymentMemo: newPaymentMemo(memo.KindSplit, sp.SplitID),
	}, nil
}

// ListSplits returns every split address created or is a member of.
func (s *Service) ListSplits(ctx context.Context, address string) ([]models.Split, error) {
	addr, err := s.address(ctx, "address", address)
	if err != nil {
		return nil, err
	}
	splits, err := s.store.ListSplitsForAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	if splits == nil {
		splits = []models.Split{}
	}
	return splits, nil
}

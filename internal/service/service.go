// Package service is the transport-independent application surface: it
// creates the off-chain records that transfers later settle, reads them
// back with derived figures, and fronts the watcher and resolver.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"MemoLedger/internal/event"
	"MemoLedger/internal/identity"
	"MemoLedger/internal/memo"
	"MemoLedger/internal/pricing"
	"MemoLedger/internal/resolver"
	"MemoLedger/internal/store"
	"MemoLedger/internal/watcher"
)

var (
	// ErrInvalidArgument marks caller mistakes; transports map it to 400.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks a missing record; transports map it to 404.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned by operations whose backing component was
	// not configured.
	ErrUnavailable = errors.New("operation not configured")
)

// maxHashAttempts bounds retries when a generated memo hash collides.
const maxHashAttempts = 5

// Poller runs one watch pass.
type Poller interface {
	Poll(ctx context.Context) (watcher.Summary, error)
}

// Publisher receives notifications of committed changes.
type Publisher interface {
	Enqueue(evt event.Event) bool
}

// PaymentMemo is the memo a payer must attach, in text and wire form.
type PaymentMemo struct {
	Text string `json:"text"`
	Hex  string `json:"hex"`
}

func newPaymentMemo(kind memo.Kind, payload string) PaymentMemo {
	return PaymentMemo{
		Text: memo.Memo{Kind: kind, Payload: payload}.String(),
		Hex:  memo.Hex(memo.Encode(kind, payload)),
	}
}

type Service struct {
	store     store.Store
	poller    Poller
	resolver  *resolver.Resolver
	pricing   *pricing.Engine
	identity  identity.Resolver
	publisher Publisher
	token     string
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithPoller(p Poller) Option {
	return func(s *Service) { s.poller = p }
}

func WithResolver(r *resolver.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

func WithPricing(e *pricing.Engine) Option {
	return func(s *Service) { s.pricing = e }
}

func WithIdentity(r identity.Resolver) Option {
	return func(s *Service) { s.identity = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithToken sets the token recorded on new invoices, splits and markets.
func WithToken(token string) Option {
	return func(s *Service) { s.token = strings.ToLower(token) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		identity: identity.Passthrough{},
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pricing == nil {
		s.pricing = pricing.NewEngine(pricing.WithClock(s.now))
	}
	if s.resolver == nil {
		s.resolver = resolver.New(st, resolver.WithClock(s.now), resolver.WithLogger(s.logger))
	}
	return s
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) publish(evt event.Event) {
	if s.publisher != nil {
		s.publisher.Enqueue(evt)
	}
}

// address validates and normalizes a caller-supplied ledger address.
func (s *Service) address(ctx context.Context, field, handle string) (string, error) {
	addr, err := identity.Passthrough{}.Resolve(ctx, handle)
	if err != nil {
		return "", invalid(field + " must be a 0x address")
	}
	return addr, nil
}

// resolveHandle maps an email, phone or address to an address. ok is false
// when the handle does not resolve.
func (s *Service) resolveHandle(ctx context.Context, handle string) (string, bool) {
	if s.identity == nil {
		return "", false
	}
	addr, err := s.identity.Resolve(ctx, handle)
	if err != nil {
		return "", false
	}
	return addr, true
}

func invalid(msg string) error {
	return &argError{msg: msg}
}

type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func (e *argError) Unwrap() error { return ErrInvalidArgument }

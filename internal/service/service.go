// Package service implements the payment, wallet and transfer operations on
// top of the ledger. Every operation runs in one store unit of work; money
// only moves through ledger.Post inside that unit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/ledgerops/internal/ledger"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

const (
	DefaultBatchSize       = 50
	DefaultPollMinInterval = 15 * time.Second
	DefaultUnknownSLA      = 120 * time.Second
	DefaultPollLimit       = 20
	DefaultCurrency        = "NGN"
)

type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	batchSize       int
	pollMinInterval time.Duration
	unknownSLA      time.Duration
}

type Option func(*Service)

// WithClock replaces the time source for records, journals and SLA checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBatchSize bounds a worker run. Values outside 1..50 fall back to 50.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= DefaultBatchSize {
			s.batchSize = n
		}
	}
}

func WithPollMinInterval(d time.Duration) Option {
	return func(s *Service) { s.pollMinInterval = d }
}

func WithUnknownSLA(d time.Duration) Option {
	return func(s *Service) { s.unknownSLA = d }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:           st,
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
		batchSize:       DefaultBatchSize,
		pollMinInterval: DefaultPollMinInterval,
		unknownSLA:      DefaultUnknownSLA,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = ledger.New(ledger.WithClock(s.now))
	return s
}

// Bootstrap ensures the platform chart of accounts. Run once per process.
func (s *Service) Bootstrap(ctx context.Context) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		return s.ledger.Bootstrap(ctx, tx)
	})
}

// mapNotFound turns store.ErrNotFound into the given business error.
func mapNotFound(err error, to *Error) error {
	if errors.Is(err, store.ErrNotFound) {
		return to
	}
	return err
}

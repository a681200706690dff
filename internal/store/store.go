// Package store persists the ledger and the payment, wallet and transfer
// records around it. All access happens inside a unit of work opened with
// Store.InTx; the ledger writes through the same Tx as the domain records, so
// a journal and the status change that caused it commit or roll back together.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("duplicate record")
	ErrAlreadyProcessed = errors.New("event already processed")
)

// Stream selects one of the two append-only event logs.
type Stream string

const (
	ProviderStream Stream = "provider"
	TransferStream Stream = "transfer"
)

// Valid reports whether s names a known stream.
func (s Stream) Valid() bool {
	return s == ProviderStream || s == TransferStream
}

// Store opens units of work.
type Store interface {
	// InTx runs fn in one atomic unit of work. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// TransferUpdate is the mutable part of a transfer. Nil pointers leave the
// stored value as is.
type TransferUpdate struct {
	Status        domain.TransferStatus
	ProviderRef   *string
	FailureCode   *string
	FailureReason *string
	SubmittedAt   *time.Time
	LastPolledAt  *time.Time
	UpdatedAt     time.Time
}

// Tx is a unit of work. Getters that are followed by an update lock the row.
type Tx interface {
	ledger.Store

	InsertMerchant(ctx context.Context, m domain.Merchant) error
	GetMerchant(ctx context.Context, id string) (domain.Merchant, error)

	InsertUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)

	InsertPaymentIntent(ctx context.Context, pi domain.PaymentIntent) error
	GetPaymentIntent(ctx context.Context, id string) (domain.PaymentIntent, error)
	UpdatePaymentIntentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error

	InsertDispute(ctx context.Context, d domain.Dispute) error
	CloseDispute(ctx context.Context, id string, at time.Time) error
	ListDisputes(ctx context.Context, limit int) ([]domain.Dispute, error)

	// InsertReversal returns ErrDuplicate when the marker already exists.
	InsertReversal(ctx context.Context, r domain.Reversal) error
	HasReversal(ctx context.Context, paymentIntentID, typ string) (bool, error)

	InsertSettlement(ctx context.Context, s domain.Settlement) error
	UpdateSettlementStatus(ctx context.Context, id string, status domain.SettlementStatus, at time.Time) error

	InsertTransfer(ctx context.Context, t domain.Transfer) error
	GetTransfer(ctx context.Context, id string) (domain.Transfer, error)
	UpdateTransfer(ctx context.Context, id string, u TransferUpdate) error
	// ListTransfersByStatus returns transfers oldest updated_at first.
	ListTransfersByStatus(ctx context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error)
	// ListTransfers returns the most recently created transfers first.
	ListTransfers(ctx context.Context, limit int) ([]domain.Transfer, error)

	GetIdempotencyRecord(ctx context.Context, key string) (domain.IdempotencyRecord, error)
	// InsertIdempotencyRecord returns ErrDuplicate when the key exists.
	InsertIdempotencyRecord(ctx context.Context, r domain.IdempotencyRecord) error

	// InsertEvent returns ErrDuplicate when the provider event id exists.
	InsertEvent(ctx context.Context, stream Stream, e domain.Event) error
	// ListUnprocessedEvents returns at most limit events, oldest first.
	ListUnprocessedEvents(ctx context.Context, stream Stream, limit int) ([]domain.Event, error)
	// MarkEventProcessed flips processed from false to true, or returns
	// ErrAlreadyProcessed.
	MarkEventProcessed(ctx context.Context, stream Stream, id string) error
}

// Package ledger is the double-entry engine. Every movement of money in the
// system is a balanced Journal written through Ledger.Post; balances are
// derived from postings and never stored.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/ledgerops/internal/domain"
)

var (
	ErrNonPositiveAmount = fmt.Errorf("%w: posting amount must be positive", domain.ErrInvariant)
	ErrUnbalancedJournal = fmt.Errorf("%w: unbalanced journal", domain.ErrInvariant)
	ErrUnknownAccount    = fmt.Errorf("%w: unknown account", domain.ErrInvariant)
	ErrInvalidAccount    = errors.New("invalid account")
)

// AccountType fixes the sign convention of an account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
	Equity    AccountType = "EQUITY"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Revenue, Expense, Equity:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance of t.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

// Signed turns posting totals into a balance under t's sign convention.
func (t AccountType) Signed(debits, credits int64) int64 {
	if t.DebitNormal() {
		return debits - credits
	}
	return credits - debits
}

// Direction is the side of a posting.
type Direction string

const (
	Debit  Direction = "D"
	Credit Direction = "C"
)

// RefType correlates a journal with the business object that caused it.
type RefType string

const (
	RefPayment    RefType = "payment"
	RefChargeback RefType = "chargeback"
	RefRelease    RefType = "release"
	RefSettlement RefType = "settlement"
	RefWalletFund RefType = "wallet_fund"
	RefTransfer   RefType = "transfer"
)

// Line is one requested posting.
type Line struct {
	Account   string
	Direction Direction
	Amount    int64
}

// Dr and Cr build lines.
func Dr(account string, amount int64) Line { return Line{Account: account, Direction: Debit, Amount: amount} }
func Cr(account string, amount int64) Line { return Line{Account: account, Direction: Credit, Amount: amount} }

// Posting is one persisted line of a journal.
type Posting struct {
	ID        string    `json:"id"`
	JournalID string    `json:"journal_id"`
	Account   string    `json:"account"`
	Direction Direction `json:"dc"`
	Amount    int64     `json:"amount_kobo"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is an immutable, balanced group of postings.
type Journal struct {
	ID        string    `json:"id"`
	RefType   RefType   `json:"ref_type"`
	RefID     string    `json:"ref_id"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"created_at"`
	Postings  []Posting `json:"postings"`
}

// Balance is the derived balance of one account.
type Balance struct {
	Account string      `json:"account"`
	Type    AccountType `json:"type"`
	Amount  int64       `json:"balance_kobo"`
}

// Store is what the ledger needs from the current unit of work. Implementations
// must write a journal and all of its postings atomically with the rest of the
// unit of work, and must reject postings to accounts that do not exist.
type Store interface {
	EnsureAccount(ctx context.Context, name string, typ AccountType) error
	Balance(ctx context.Context, name string) (int64, error)
	Balances(ctx context.Context) ([]Balance, error)
	InsertJournal(ctx context.Context, j Journal) error
	JournalsByRef(ctx context.Context, refType RefType, refID string) ([]Journal, error)
}

// Ledger validates and writes journals.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the journal timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns a Ledger using wall-clock time and random UUIDs.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureAccount creates the account if absent. An existing account keeps the
// type it was first created with.
func (l *Ledger) EnsureAccount(ctx context.Context, s Store, name string, typ AccountType) error {
	if name == "" || !typ.Valid() {
		return fmt.Errorf("%w: %q (%s)", ErrInvalidAccount, name, typ)
	}
	return s.EnsureAccount(ctx, name, typ)
}

// Balance returns the signed balance of account; zero when it has no postings.
func (l *Ledger) Balance(ctx context.Context, s Store, account string) (int64, error) {
	return s.Balance(ctx, account)
}

// Post writes one balanced journal and returns its id. Nothing is written
// when any line is non-positive or debits and credits differ.
func (l *Ledger) Post(ctx context.Context, s Store, refType RefType, refID, memo string, lines ...Line) (string, error) {
	if err := Validate(lines); err != nil {
		return "", err
	}

	ts := l.now()
	j := Journal{
		ID:        l.newID(),
		RefType:   refType,
		RefID:     refID,
		Memo:      memo,
		CreatedAt: ts,
		Postings:  make([]Posting, 0, len(lines)),
	}
	for _, line := range lines {
		j.Postings = append(j.Postings, Posting{
			ID:        l.newID(),
			JournalID: j.ID,
			Account:   line.Account,
			Direction: line.Direction,
			Amount:    line.Amount,
			CreatedAt: ts,
		})
	}

	if err := s.InsertJournal(ctx, j); err != nil {
		return "", fmt.Errorf("post %s/%s: %w", refType, refID, err)
	}
	journalsPosted.WithLabelValues(string(refType)).Inc()
	return j.ID, nil
}

// Validate checks the double-entry rule without writing anything.
func Validate(lines []Line) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: no lines", ErrUnbalancedJournal)
	}

	var debits, credits int64
	for _, line := range lines {
		if line.Amount <= 0 {
			return fmt.Errorf("%w: %s %s %d", ErrNonPositiveAmount, line.Account, line.Direction, line.Amount)
		}
		switch line.Direction {
		case Debit:
			if debits > math.MaxInt64-line.Amount {
				return fmt.Errorf("%w: debits overflow", ErrUnbalancedJournal)
			}
			debits += line.Amount
		case Credit:
			if credits > math.MaxInt64-line.Amount {
				return fmt.Errorf("%w: credits overflow", ErrUnbalancedJournal)
			}
			credits += line.Amount
		default:
			return fmt.Errorf("%w: unknown direction %q", ErrUnbalancedJournal, line.Direction)
		}
	}

	if debits != credits {
		return fmt.Errorf("%w: debits %d != credits %d", ErrUnbalancedJournal, debits, credits)
	}
	return nil
}

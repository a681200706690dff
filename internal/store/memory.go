package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
)

// Memory is an in-process Store. Units of work are serialised by one mutex
// and run against a copy of the state that replaces the original only when
// fn succeeds.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type totals struct {
	debits, credits int64
}

type memState struct {
	accounts    map[string]ledger.AccountType
	totals      map[string]totals
	journals    []ledger.Journal
	merchants   map[string]domain.Merchant
	users       map[string]domain.User
	intents     map[string]domain.PaymentIntent
	disputes    []domain.Dispute
	reversals   map[string]domain.Reversal
	settlements map[string]domain.Settlement
	transfers   map[string]domain.Transfer
	idempotency map[string]domain.IdempotencyRecord
	events      map[Stream][]domain.Event
	eventKeys   map[Stream]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		accounts:    map[string]ledger.AccountType{},
		totals:      map[string]totals{},
		merchants:   map[string]domain.Merchant{},
		users:       map[string]domain.User{},
		intents:     map[string]domain.PaymentIntent{},
		reversals:   map[string]domain.Reversal{},
		settlements: map[string]domain.Settlement{},
		transfers:   map[string]domain.Transfer{},
		idempotency: map[string]domain.IdempotencyRecord{},
		events:      map[Stream][]domain.Event{},
		eventKeys: map[Stream]map[string]struct{}{
			ProviderStream: {},
			TransferStream: {},
		},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:    maps.Clone(s.accounts),
		totals:      maps.Clone(s.totals),
		journals:    slices.Clone(s.journals),
		merchants:   maps.Clone(s.merchants),
		users:       maps.Clone(s.users),
		intents:     maps.Clone(s.intents),
		disputes:    slices.Clone(s.disputes),
		reversals:   maps.Clone(s.reversals),
		settlements: maps.Clone(s.settlements),
		transfers:   maps.Clone(s.transfers),
		idempotency: maps.Clone(s.idempotency),
		events:      make(map[Stream][]domain.Event, len(s.events)),
		eventKeys:   make(map[Stream]map[string]struct{}, len(s.eventKeys)),
	}
	for k, v := range s.events {
		c.events[k] = slices.Clone(v)
	}
	for k, v := range s.eventKeys {
		c.eventKeys[k] = maps.Clone(v)
	}
	return c
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{s: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.s
	return nil
}

func (m *Memory) Close() {}

type memTx struct {
	s *memState
}

func (t *memTx) EnsureAccount(_ context.Context, name string, typ ledger.AccountType) error {
	if _, ok := t.s.accounts[name]; !ok {
		t.s.accounts[name] = typ
	}
	return nil
}

func (t *memTx) Balance(_ context.Context, name string) (int64, error) {
	typ, ok := t.s.accounts[name]
	if !ok {
		return 0, nil
	}
	tot := t.s.totals[name]
	return typ.Signed(tot.debits, tot.credits), nil
}

func (t *memTx) Balances(_ context.Context) ([]ledger.Balance, error) {
	out := make([]ledger.Balance, 0, len(t.s.accounts))
	for name, typ := range t.s.accounts {
		tot := t.s.totals[name]
		out = append(out, ledger.Balance{Account: name, Type: typ, Amount: typ.Signed(tot.debits, tot.credits)})
	}
	slices.SortFunc(out, func(a, b ledger.Balance) int { return cmp.Compare(a.Account, b.Account) })
	return out, nil
}

func (t *memTx) InsertJournal(_ context.Context, j ledger.Journal) error {
	for _, p := range j.Postings {
		if _, ok := t.s.accounts[p.Account]; !ok {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, p.Account)
		}
	}
	for _, p := range j.Postings {
		tot := t.s.totals[p.Account]
		sum := &tot.credits
		if p.Direction == ledger.Debit {
			sum = &tot.debits
		}
		if *sum > math.MaxInt64-p.Amount {
			return fmt.Errorf("%w: %s %s total overflows", domain.ErrInvariant, p.Account, p.Direction)
		}
		*sum += p.Amount
		t.s.totals[p.Account] = tot
	}
	j.Postings = slices.Clone(j.Postings)
	t.s.journals = append(t.s.journals, j)
	return nil
}

func (t *memTx) JournalsByRef(_ context.Context, refType ledger.RefType, refID string) ([]ledger.Journal, error) {
	var out []ledger.Journal
	for _, j := range t.s.journals {
		if j.RefType == refType && j.RefID == refID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (t *memTx) InsertMerchant(_ context.Context, m domain.Merchant) error {
	if _, ok := t.s.merchants[m.ID]; ok {
		return ErrDuplicate
	}
	t.s.merchants[m.ID] = m
	return nil
}

func (t *memTx) GetMerchant(_ context.Context, id string) (domain.Merchant, error) {
	m, ok := t.s.merchants[id]
	if !ok {
		return domain.Merchant{}, ErrNotFound
	}
	return m, nil
}

func (t *memTx) InsertUser(_ context.Context, u domain.User) error {
	if _, ok := t.s.users[u.ID]; ok {
		return ErrDuplicate
	}
	t.s.users[u.ID] = u
	return nil
}

func (t *memTx) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (t *memTx) InsertPaymentIntent(_ context.Context, pi domain.PaymentIntent) error {
	if _, ok := t.s.intents[pi.ID]; ok {
		return ErrDuplicate
	}
	t.s.intents[pi.ID] = pi
	return nil
}

func (t *memTx) GetPaymentIntent(_ context.Context, id string) (domain.PaymentIntent, error) {
	pi, ok := t.s.intents[id]
	if !ok {
		return domain.PaymentIntent{}, ErrNotFound
	}
	return pi, nil
}

func (t *memTx) UpdatePaymentIntentStatus(_ context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	pi, ok := t.s.intents[id]
	if !ok {
		return ErrNotFound
	}
	pi.Status = status
	pi.UpdatedAt = at
	t.s.intents[id] = pi
	return nil
}

func (t *memTx) InsertDispute(_ context.Context, d domain.Dispute) error {
	for _, existing := range t.s.disputes {
		if existing.ID == d.ID {
			return ErrDuplicate
		}
	}
	t.s.disputes = append(t.s.disputes, d)
	return nil
}

func (t *memTx) CloseDispute(_ context.Context, id string, at time.Time) error {
	for i := range t.s.disputes {
		if t.s.disputes[i].ID == id {
			t.s.disputes[i].Status = domain.DisputeClosed
			t.s.disputes[i].ClosedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (t *memTx) ListDisputes(_ context.Context, limit int) ([]domain.Dispute, error) {
	out := slices.Clone(t.s.disputes)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b domain.Dispute) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func reversalKey(paymentIntentID, typ string) string {
	return paymentIntentID + "/" + typ
}

func (t *memTx) InsertReversal(_ context.Context, r domain.Reversal) error {
	key := reversalKey(r.PaymentIntentID, r.Type)
	if _, ok := t.s.reversals[key]; ok {
		return ErrDuplicate
	}
	t.s.reversals[key] = r
	return nil
}

func (t *memTx) HasReversal(_ context.Context, paymentIntentID, typ string) (bool, error) {
	_, ok := t.s.reversals[reversalKey(paymentIntentID, typ)]
	return ok, nil
}

func (t *memTx) InsertSettlement(_ context.Context, s domain.Settlement) error {
	if _, ok := t.s.settlements[s.ID]; ok {
		return ErrDuplicate
	}
	t.s.settlements[s.ID] = s
	return nil
}

func (t *memTx) UpdateSettlementStatus(_ context.Context, id string, status domain.SettlementStatus, at time.Time) error {
	s, ok := t.s.settlements[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = at
	t.s.settlements[id] = s
	return nil
}

func (t *memTx) InsertTransfer(_ context.Context, tr domain.Transfer) error {
	if _, ok := t.s.transfers[tr.ID]; ok {
		return ErrDuplicate
	}
	t.s.transfers[tr.ID] = tr
	return nil
}

func (t *memTx) GetTransfer(_ context.Context, id string) (domain.Transfer, error) {
	tr, ok := t.s.transfers[id]
	if !ok {
		return domain.Transfer{}, ErrNotFound
	}
	return tr, nil
}

func (t *memTx) UpdateTransfer(_ context.Context, id string, u TransferUpdate) error {
	tr, ok := t.s.transfers[id]
	if !ok {
		return ErrNotFound
	}
	if u.Status != "" {
		tr.Status = u.Status
	}
	if u.ProviderRef != nil {
		tr.ProviderRef = *u.ProviderRef
	}
	if u.FailureCode != nil {
		tr.FailureCode = *u.FailureCode
	}
	if u.FailureReason != nil {
		tr.FailureReason = *u.FailureReason
	}
	if u.SubmittedAt != nil {
		tr.SubmittedAt = u.SubmittedAt
	}
	if u.LastPolledAt != nil {
		tr.LastPolledAt = u.LastPolledAt
	}
	if !u.UpdatedAt.IsZero() {
		tr.UpdatedAt = u.UpdatedAt
	}
	t.s.transfers[id] = tr
	return nil
}

func (t *memTx) ListTransfersByStatus(_ context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error) {
	var out []domain.Transfer
	for _, tr := range t.s.transfers {
		if tr.Status == status {
			out = append(out, tr)
		}
	}
	slices.SortFunc(out, func(a, b domain.Transfer) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) ListTransfers(_ context.Context, limit int) ([]domain.Transfer, error) {
	out := slices.Collect(maps.Values(t.s.transfers))
	slices.SortFunc(out, func(a, b domain.Transfer) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) GetIdempotencyRecord(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	r, ok := t.s.idempotency[key]
	if !ok {
		return domain.IdempotencyRecord{}, ErrNotFound
	}
	return r, nil
}

func (t *memTx) InsertIdempotencyRecord(_ context.Context, r domain.IdempotencyRecord) error {
	if _, ok := t.s.idempotency[r.Key]; ok {
		return ErrDuplicate
	}
	r.Response = slices.Clone(r.Response)
	t.s.idempotency[r.Key] = r
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, stream Stream, e domain.Event) error {
	keys, ok := t.s.eventKeys[stream]
	if !ok {
		return fmt.Errorf("unknown stream %q", stream)
	}
	if _, dup := keys[e.ProviderEventID]; dup {
		return ErrDuplicate
	}
	keys[e.ProviderEventID] = struct{}{}
	e.Processed = false
	t.s.events[stream] = append(t.s.events[stream], e)
	return nil
}

func (t *memTx) ListUnprocessedEvents(_ context.Context, stream Stream, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range t.s.events[stream] {
		if e.Processed {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) MarkEventProcessed(_ context.Context, stream Stream, id string) error {
	events := t.s.events[stream]
	for i := range events {
		if events[i].ID != id {
			continue
		}
		if events[i].Processed {
			return ErrAlreadyProcessed
		}
		events[i].Processed = true
		return nil
	}
	return ErrNotFound
}

package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/service"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *service.Service
	store *store.Memory
	clock *clock
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	c := newClock()
	st := store.NewMemory()
	svc := service.New(st, append([]service.Option{service.WithClock(c.Now)}, opts...)...)
	require.NoError(t, svc.Bootstrap(context.Background()))
	return &fixture{svc: svc, store: st, clock: c}
}

// hookedStore runs units of work on a memory store through wrap, which lets a
// test swap individual Tx methods. afterTx runs once the unit has finished.
type hookedStore struct {
	*store.Memory
	wrap    func(store.Tx) store.Tx
	afterTx func()
}

func (h *hookedStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := h.Memory.InTx(ctx, func(tx store.Tx) error {
		if h.wrap != nil {
			tx = h.wrap(tx)
		}
		return fn(tx)
	})
	if h.afterTx != nil {
		after := h.afterTx
		h.afterTx = nil
		after()
	}
	return err
}

func newHookedFixture(t *testing.T, opts ...service.Option) (*fixture, *hookedStore) {
	t.Helper()
	c := newClock()
	hs := &hookedStore{Memory: store.NewMemory()}
	svc := service.New(hs, append([]service.Option{service.WithClock(c.Now)}, opts...)...)
	require.NoError(t, svc.Bootstrap(context.Background()))
	return &fixture{svc: svc, store: hs.Memory, clock: c}, hs
}

func (f *fixture) balance(t *testing.T, account string) int64 {
	t.Helper()
	b, err := f.svc.Balance(context.Background(), account)
	require.NoError(t, err)
	return b.Amount
}

func (f *fixture) merchant(t *testing.T) string {
	t.Helper()
	m, err := f.svc.CreateMerchant(context.Background(), models.CreateMerchantRequest{Name: "Ada Stores"})
	require.NoError(t, err)
	return m.MerchantID
}

func (f *fixture) fundedUser(t *testing.T, amount int64) string {
	t.Helper()
	ctx := context.Background()
	u, err := f.svc.CreateUser(ctx, models.CreateUserRequest{Name: "Tunde"})
	require.NoError(t, err)
	if amount > 0 {
		_, err = f.svc.FundWallet(ctx, models.FundWalletRequest{UserID: u.UserID, Amount: amount})
		require.NoError(t, err)
	}
	return u.UserID
}

func (f *fixture) paymentIntent(t *testing.T, merchantID string, amount int64, mode string) string {
	t.Helper()
	r, err := f.svc.CreatePaymentIntent(context.Background(), uuid.NewString(),
		models.CreatePaymentIntentRequest{MerchantID: merchantID, Amount: amount, FeeMode: mode})
	require.NoError(t, err)
	var pi models.PaymentIntentResponse
	require.NoError(t, json.Unmarshal(r.Body, &pi))
	return pi.PaymentIntentID
}

func (f *fixture) transfer(t *testing.T, userID string, amount int64) models.TransferResponse {
	t.Helper()
	r, err := f.svc.CreateTransfer(context.Background(), uuid.NewString(), models.CreateTransferRequest{
		UserID: userID, Amount: amount, BankCode: "058", BankAccount: "0123456789",
	})
	require.NoError(t, err)
	var tr models.TransferResponse
	require.NoError(t, json.Unmarshal(r.Body, &tr))
	return tr
}

// deliver ingests one event and runs the stream's worker once.
func (f *fixture) deliver(t *testing.T, stream store.Stream, providerEventID, typ string, payload any) int {
	t.Helper()
	ctx := context.Background()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	_, err = f.svc.IngestEvent(ctx, stream, models.WebhookRequest{
		ProviderEventID: providerEventID, Type: typ, Payload: raw,
	})
	require.NoError(t, err)
	resp, err := f.svc.ProcessEvents(ctx, stream)
	require.NoError(t, err)
	return resp.Processed
}

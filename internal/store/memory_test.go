package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

var errBoom = errors.New("boom")

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	err := s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.InsertMerchant(ctx, domain.Merchant{ID: "m1", Name: "Shop"}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	err = s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetMerchant(ctx, "m1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryJournalRejectsUnknownAccount(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	l := ledger.New()

	err := s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, l.EnsureAccount(ctx, tx, "cash", ledger.Asset))
		_, err := l.Post(ctx, tx, ledger.RefPayment, "p1", "",
			ledger.Dr("cash", 10), ledger.Cr("nowhere", 10))
		return err
	})
	require.ErrorIs(t, err, ledger.ErrUnknownAccount)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestMemoryJournalRejectsTotalOverflow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	l := ledger.New()

	post := func() error {
		return s.InTx(ctx, func(tx store.Tx) error {
			if err := l.EnsureAccount(ctx, tx, "cash", ledger.Asset); err != nil {
				return err
			}
			if err := l.EnsureAccount(ctx, tx, "funds", ledger.Liability); err != nil {
				return err
			}
			_, err := l.Post(ctx, tx, ledger.RefPayment, "p1", "",
				ledger.Dr("cash", math.MaxInt64), ledger.Cr("funds", math.MaxInt64))
			return err
		})
	}
	require.NoError(t, post())
	require.ErrorIs(t, post(), domain.ErrInvariant)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		b, err := l.Balance(ctx, tx, "cash")
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), b)
		return nil
	}))
}

func TestMemoryEventsDedupAndOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(tx store.Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			e := domain.Event{
				ID:              "evt_" + id,
				ProviderEventID: "pe_" + id,
				Type:            "payment_succeeded",
				Payload:         json.RawMessage(`{}`),
				CreatedAt:       base.Add(time.Duration(i) * time.Second),
			}
			if err := tx.InsertEvent(ctx, store.ProviderStream, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertEvent(ctx, store.ProviderStream, domain.Event{ID: "evt_x", ProviderEventID: "pe_a"})
	})
	require.ErrorIs(t, err, store.ErrDuplicate)

	// The same provider id is independent across streams.
	err = s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertEvent(ctx, store.TransferStream, domain.Event{ID: "evt_t", ProviderEventID: "pe_a"})
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx store.Tx) error {
		events, err := tx.ListUnprocessedEvents(ctx, store.ProviderStream, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evt_a", events[0].ID)
		assert.Equal(t, "evt_b", events[1].ID)

		require.NoError(t, tx.MarkEventProcessed(ctx, store.ProviderStream, "evt_a"))
		assert.ErrorIs(t, tx.MarkEventProcessed(ctx, store.ProviderStream, "evt_a"), store.ErrAlreadyProcessed)

		events, err = tx.ListUnprocessedEvents(ctx, store.ProviderStream, 50)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evt_b", events[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryReversalMarkerIsUnique(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	err := s.InTx(ctx, func(tx store.Tx) error {
		r := domain.Reversal{PaymentIntentID: "pi1", Type: domain.ReversalChargeback}
		require.NoError(t, tx.InsertReversal(ctx, r))
		assert.ErrorIs(t, tx.InsertReversal(ctx, r), store.ErrDuplicate)

		ok, err := tx.HasReversal(ctx, "pi1", domain.ReversalChargeback)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryTransferUpdateKeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.InsertTransfer(ctx, domain.Transfer{
			ID: "tr1", Status: domain.TransferSubmitted, ProviderRef: "prov_1", UpdatedAt: t0,
		}))
		require.NoError(t, tx.InsertTransfer(ctx, domain.Transfer{
			ID: "tr0", Status: domain.TransferSubmitted, UpdatedAt: t0.Add(-time.Minute),
		}))

		code := "FAILED"
		require.NoError(t, tx.UpdateTransfer(ctx, "tr1", store.TransferUpdate{
			Status:      domain.TransferFailedNoDebit,
			FailureCode: &code,
			UpdatedAt:   t0.Add(time.Minute),
		}))

		tr, err := tx.GetTransfer(ctx, "tr1")
		require.NoError(t, err)
		assert.Equal(t, domain.TransferFailedNoDebit, tr.Status)
		assert.Equal(t, "prov_1", tr.ProviderRef)
		assert.Equal(t, "FAILED", tr.FailureCode)

		list, err := tx.ListTransfersByStatus(ctx, domain.TransferSubmitted, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "tr0", list[0].ID)

		require.NoError(t, tx.InsertTransfer(ctx, domain.Transfer{ID: "tr2", CreatedAt: t0.Add(time.Hour)}))
		latest, err := tx.ListTransfers(ctx, 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, "tr2", latest[0].ID)
		assert.Equal(t, "tr1", latest[1].ID)

		assert.ErrorIs(t, tx.UpdateTransfer(ctx, "missing", store.TransferUpdate{}), store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryIdempotencyRecordIsUnique(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	rec := domain.IdempotencyRecord{Key: "k1", RequestHash: "h", Response: json.RawMessage(`{"a":1}`)}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertIdempotencyRecord(ctx, rec)
	}))

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertIdempotencyRecord(ctx, rec)
	})
	require.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetIdempotencyRecord(ctx, "k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(got.Response))
		return nil
	}))
}

package service_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/fee"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/service"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

func transferPayload(id string) models.TransferEventPayload {
	return models.TransferEventPayload{TransferID: id}
}

func TestTransferFailedDebitedKeepsHoldUntilReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 1_000_000)

	tr := f.transfer(t, user, 500_000)
	assert.Equal(t, int64(1_000), tr.Fee)
	assert.Equal(t, int64(501_000), tr.TotalHeld)
	assert.Equal(t, string(domain.TransferWalletHeld), tr.Status)

	wallet, hold := ledger.UserWallet(user), ledger.TransferHold(tr.TransferID)
	assert.Equal(t, int64(499_000), f.balance(t, wallet))
	assert.Equal(t, int64(501_000), f.balance(t, hold))

	applied := f.deliver(t, store.TransferStream, "evt_fd", service.EventTransferFailedDebited, transferPayload(tr.TransferID))
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(499_000), f.balance(t, wallet))
	assert.Equal(t, int64(501_000), f.balance(t, hold))

	got, err := f.svc.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferFailedDebited, got.Status)
	assert.Equal(t, "FAILED_DEBITED", got.FailureCode)
	assert.Equal(t, "failed_but_debited", got.FailureReason)

	applied = f.deliver(t, store.TransferStream, "evt_rev", service.EventTransferReversed, transferPayload(tr.TransferID))
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(1_000_000), f.balance(t, wallet))
	assert.Equal(t, int64(0), f.balance(t, hold))

	// A second reversal under a new provider id is a no-op.
	applied = f.deliver(t, store.TransferStream, "evt_rev_2", service.EventTransferReversed, transferPayload(tr.TransferID))
	assert.Equal(t, 0, applied)
	assert.Equal(t, int64(1_000_000), f.balance(t, wallet))

	got, err = f.svc.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferReversed, got.Status)
}

func TestTransferCreditConfirmedPaysOutAndTakesFee(t *testing.T) {
	f := newFixture(t)
	user := f.fundedUser(t, 1_000_000)
	tr := f.transfer(t, user, 500_000)

	applied := f.deliver(t, store.TransferStream, "evt_cc", service.EventTransferCreditConfirmed, transferPayload(tr.TransferID))
	assert.Equal(t, 1, applied)

	assert.Equal(t, int64(0), f.balance(t, ledger.TransferHold(tr.TransferID)))
	assert.Equal(t, int64(499_000), f.balance(t, ledger.UserWallet(user)))
	assert.Equal(t, int64(500_000), f.balance(t, ledger.PlatformSettlementCash))
	assert.Equal(t, int64(1_000), f.balance(t, ledger.TransferFeeRevenue))

	// Terminal: neither a replay nor a contradicting verdict moves money.
	assert.Equal(t, 0, f.deliver(t, store.TransferStream, "evt_cc_2", service.EventTransferCreditConfirmed, transferPayload(tr.TransferID)))
	assert.Equal(t, 0, f.deliver(t, store.TransferStream, "evt_nd", service.EventTransferFailedNoDebit, transferPayload(tr.TransferID)))
	assert.Equal(t, int64(499_000), f.balance(t, ledger.UserWallet(user)))
	assert.Equal(t, int64(1_000), f.balance(t, ledger.TransferFeeRevenue))
}

func TestTransferFailedNoDebitRefundsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 20_000)
	tr := f.transfer(t, user, 10_000)
	assert.Equal(t, int64(9_000), f.balance(t, ledger.UserWallet(user)))

	payload := models.TransferEventPayload{TransferID: tr.TransferID, FailureCode: "91", FailureReason: "issuer_unavailable"}
	assert.Equal(t, 1, f.deliver(t, store.TransferStream, "evt_nd", service.EventTransferFailedNoDebit, payload))

	assert.Equal(t, int64(20_000), f.balance(t, ledger.UserWallet(user)))
	assert.Equal(t, int64(0), f.balance(t, ledger.TransferHold(tr.TransferID)))

	got, err := f.svc.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferFailedNoDebit, got.Status)
	assert.Equal(t, "91", got.FailureCode)
	assert.Equal(t, "issuer_unavailable", got.FailureReason)

	assert.Equal(t, 0, f.deliver(t, store.TransferStream, "evt_rev", service.EventTransferReversed, transferPayload(tr.TransferID)))
	assert.Equal(t, int64(20_000), f.balance(t, ledger.UserWallet(user)))
}

func TestCreateTransferInsufficientWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 10_000)

	req := models.CreateTransferRequest{UserID: user, Amount: 9_500, BankCode: "058", BankAccount: "0123456789"}
	_, err := f.svc.CreateTransfer(ctx, "key-1", req)
	require.ErrorIs(t, err, service.ErrInsufficientWalletBalance)

	var se *service.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(10_000), se.Fields["available_kobo"])
	assert.Equal(t, int64(10_500), se.Fields["needed_kobo"])
	assert.Equal(t, int64(10_000), f.balance(t, ledger.UserWallet(user)))

	// The rejection stored nothing, so the same key works once funds arrive.
	_, err = f.svc.FundWallet(ctx, models.FundWalletRequest{UserID: user, Amount: 500})
	require.NoError(t, err)
	r, err := f.svc.CreateTransfer(ctx, "key-1", req)
	require.NoError(t, err)
	assert.False(t, r.Replayed)
	assert.Equal(t, int64(0), f.balance(t, ledger.UserWallet(user)))
}

func TestCreateTransferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 10_000)

	tests := []struct {
		name string
		req  models.CreateTransferRequest
		want error
	}{
		{"missing bank", models.CreateTransferRequest{UserID: user, Amount: 100}, service.ErrInvalidTransferRequest},
		{"zero amount", models.CreateTransferRequest{UserID: user, BankCode: "058", BankAccount: "1"}, service.ErrInvalidTransferRequest},
		{"unknown user", models.CreateTransferRequest{UserID: "nobody", Amount: 100, BankCode: "058", BankAccount: "1"}, service.ErrUserNotFound},
		{"hold overflows", models.CreateTransferRequest{UserID: user, Amount: math.MaxInt64, BankCode: "058", BankAccount: "1"}, service.ErrInvalidTransferRequest},
		{"largest amount", models.CreateTransferRequest{UserID: user, Amount: fee.MaxTransferAmount, BankCode: "058", BankAccount: "1"}, service.ErrInsufficientWalletBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTransfer(ctx, "key-"+tt.name, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmitTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 100_000)

	tr := f.transfer(t, user, 10_000)
	resp, err := f.svc.SubmitTransfer(ctx, models.SubmitTransferRequest{TransferID: tr.TransferID, Mode: service.SubmitModeUnknown})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransferUnknown), resp.Status)
	assert.Empty(t, resp.ProviderRef)

	submittedAt := f.clock.Now()
	f.clock.Advance(30 * time.Second)

	resp, err = f.svc.SubmitTransfer(ctx, models.SubmitTransferRequest{TransferID: tr.TransferID, Mode: service.SubmitModeSubmitted})
	require.NoError(t, err)
	assert.Equal(t, string(domain.TransferSubmitted), resp.Status)
	assert.Equal(t, "prov_"+tr.TransferID[:10], resp.ProviderRef)

	got, err := f.svc.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, submittedAt.Equal(*got.SubmittedAt), "submitted_at is set once")
	assert.Equal(t, resp.ProviderRef, got.ProviderRef)

	_, err = f.svc.SubmitTransfer(ctx, models.SubmitTransferRequest{TransferID: tr.TransferID, Mode: service.SubmitModeSubmitted})
	require.ErrorIs(t, err, service.ErrInvalidState)
	var se *service.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, string(domain.TransferSubmitted), se.Fields["status"])

	_, err = f.svc.SubmitTransfer(ctx, models.SubmitTransferRequest{TransferID: "missing"})
	assert.ErrorIs(t, err, service.ErrTransferNotFound)

	_, err = f.svc.SubmitTransfer(ctx, models.SubmitTransferRequest{TransferID: tr.TransferID, Mode: "sideways"})
	assert.ErrorIs(t, err, service.ErrInvalidSubmitMode)
}

func TestProviderSubmittedEventSetsReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 100_000)
	tr := f.transfer(t, user, 10_000)

	payload := models.TransferEventPayload{TransferID: tr.TransferID, ProviderRef: "NIP-778"}
	assert.Equal(t, 1, f.deliver(t, store.TransferStream, "evt_sub", service.EventTransferSubmitted, payload))

	got, err := f.svc.GetTransfer(ctx, tr.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferSubmitted, got.Status)
	assert.Equal(t, "NIP-778", got.ProviderRef)
	assert.NotNil(t, got.SubmittedAt)

	// Without a provider reference the event carries nothing to apply.
	assert.Equal(t, 0, f.deliver(t, store.TransferStream, "evt_sub_2", service.EventTransferSubmitted, transferPayload(tr.TransferID)))
}

func TestProviderQueryTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.fundedUser(t, 100_000)
	tr := f.transfer(t, user, 10_000)

	resp, err := f.svc.ProviderQueryTransfer(ctx, models.ProviderQueryRequest{TransferID: tr.TransferID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeUnknown, resp.ProviderStatus)
	assert.Equal(t, "prov_"+tr.TransferID[:10], resp.ProviderRef)

	resp, err = f.svc.ProviderQueryTransfer(ctx, models.ProviderQueryRequest{TransferID: tr.TransferID, Result: service.OutcomeFailedDebited})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeFailedDebited, resp.ProviderStatus)

	_, err = f.svc.ProviderQueryTransfer(ctx, models.ProviderQueryRequest{TransferID: tr.TransferID, Result: "lost"})
	assert.ErrorIs(t, err, service.ErrInvalidProviderResult)

	_, err = f.svc.ProviderQueryTransfer(ctx, models.ProviderQueryRequest{})
	assert.ErrorIs(t, err, service.ErrTransferIDRequired)
}

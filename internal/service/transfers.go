package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/fee"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

// Submit modes simulate the provider's answer to a transfer request.
const (
	SubmitModeSubmitted = "submitted"
	SubmitModeUnknown   = "unknown"
)

// Provider outcomes, as returned by a status query or supplied to the poller.
const (
	OutcomeUnknown         = "unknown"
	OutcomeCreditConfirmed = "credit_confirmed"
	OutcomeFailedNoDebit   = "failed_no_debit"
	OutcomeFailedDebited   = "failed_debited"
	OutcomeReversed        = "reversed"
)

// outcomeEvents maps a known provider outcome to the transfer event it implies.
var outcomeEvents = map[string]string{
	OutcomeCreditConfirmed: EventTransferCreditConfirmed,
	OutcomeFailedNoDebit:   EventTransferFailedNoDebit,
	OutcomeFailedDebited:   EventTransferFailedDebited,
	OutcomeReversed:        EventTransferReversed,
}

// ValidOutcome reports whether o is unknown or one of the known outcomes.
func ValidOutcome(o string) bool {
	_, ok := outcomeEvents[o]
	return ok || o == OutcomeUnknown
}

func providerRef(transferID string) string {
	if len(transferID) > 10 {
		transferID = transferID[:10]
	}
	return "prov_" + transferID
}

// CreateTransfer moves amount plus the transfer fee from the user's wallet
// into a hold account dedicated to the new transfer.
func (s *Service) CreateTransfer(ctx context.Context, key string, req models.CreateTransferRequest) (Replay, error) {
	return idempotent(ctx, s, scopeCreateTransfer, key, req,
		func(ctx context.Context, tx store.Tx) (models.TransferResponse, error) {
			if req.UserID == "" || req.Amount <= 0 || req.Amount > fee.MaxTransferAmount ||
				req.BankCode == "" || req.BankAccount == "" {
				return models.TransferResponse{}, ErrInvalidTransferRequest
			}
			wallet, err := s.requireUserWallet(ctx, tx, req.UserID)
			if err != nil {
				return models.TransferResponse{}, err
			}

			ts := s.now()
			t := domain.Transfer{
				ID:             s.newID(),
				UserID:         req.UserID,
				Amount:         req.Amount,
				Fee:            fee.TransferFee(req.Amount),
				Currency:       req.Currency,
				BankCode:       req.BankCode,
				BankAccount:    req.BankAccount,
				Narration:      req.Narration,
				Status:         domain.TransferWalletHeld,
				IdempotencyKey: key,
				CreatedAt:      ts,
				UpdatedAt:      ts,
			}
			if t.Currency == "" {
				t.Currency = DefaultCurrency
			}
			if t.Narration == "" {
				t.Narration = "Transfer"
			}

			balance, err := s.ledger.Balance(ctx, tx, wallet)
			if err != nil {
				return models.TransferResponse{}, err
			}
			if balance < t.TotalHold() {
				return models.TransferResponse{}, ErrInsufficientWalletBalance.
					With("available_kobo", balance).
					With("needed_kobo", t.TotalHold())
			}

			if err := tx.InsertTransfer(ctx, t); err != nil {
				return models.TransferResponse{}, err
			}
			hold, err := s.ledger.EnsureEntityAccount(ctx, tx, ledger.TransferHoldBucket, t.ID)
			if err != nil {
				return models.TransferResponse{}, err
			}
			if _, err := s.ledger.Post(ctx, tx, ledger.RefTransfer, t.ID, "Move funds from user wallet into transfer hold",
				ledger.Dr(wallet, t.TotalHold()),
				ledger.Cr(hold, t.TotalHold()),
			); err != nil {
				return models.TransferResponse{}, err
			}

			return models.TransferResponse{
				TransferID: t.ID,
				Status:     string(t.Status),
				Amount:     t.Amount,
				Fee:        t.Fee,
				TotalHeld:  t.TotalHold(),
			}, nil
		})
}

func (s *Service) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	var t domain.Transfer
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.GetTransfer(ctx, id)
		return mapNotFound(err, ErrTransferNotFound)
	})
	return t, err
}

// TransferListLimit caps ListTransfers.
const TransferListLimit = 50

// ListTransfers returns the latest transfers, newest first.
func (s *Service) ListTransfers(ctx context.Context) (models.TransfersResponse, error) {
	resp := models.TransfersResponse{Transfers: []domain.Transfer{}}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		ts, err := tx.ListTransfers(ctx, TransferListLimit)
		if err != nil {
			return err
		}
		resp.Transfers = append(resp.Transfers, ts...)
		return nil
	})
	return resp, err
}

// SubmitTransfer simulates handing the transfer to the provider. Mode
// "submitted" means the provider acknowledged it; "unknown" means the call
// timed out and the outcome must be found by polling.
func (s *Service) SubmitTransfer(ctx context.Context, req models.SubmitTransferRequest) (models.SubmitTransferResponse, error) {
	if req.TransferID == "" {
		return models.SubmitTransferResponse{}, ErrTransferIDRequired
	}
	via := domain.TransferSubmitUnknown
	switch req.Mode {
	case "", SubmitModeUnknown:
	case SubmitModeSubmitted:
		via = domain.TransferSubmitOK
	default:
		return models.SubmitTransferResponse{}, ErrInvalidSubmitMode
	}

	var resp models.SubmitTransferResponse
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTransfer(ctx, req.TransferID)
		if err != nil {
			return mapNotFound(err, ErrTransferNotFound)
		}
		next, err := t.Status.Next(via)
		if err != nil {
			return ErrInvalidState.With("status", string(t.Status))
		}

		ts := s.now()
		u := store.TransferUpdate{Status: next, UpdatedAt: ts}
		if t.SubmittedAt == nil {
			u.SubmittedAt = &ts
		}
		resp = models.SubmitTransferResponse{OK: true, Status: string(next)}
		if via == domain.TransferSubmitOK {
			ref := providerRef(t.ID)
			u.ProviderRef = &ref
			resp.ProviderRef = ref
		}
		return tx.UpdateTransfer(ctx, t.ID, u)
	})
	if err != nil {
		return models.SubmitTransferResponse{}, err
	}
	return resp, nil
}

// ProviderQueryTransfer simulates a status query against the provider; the
// caller decides the answer through req.Result.
func (s *Service) ProviderQueryTransfer(ctx context.Context, req models.ProviderQueryRequest) (models.ProviderQueryResponse, error) {
	if req.TransferID == "" {
		return models.ProviderQueryResponse{}, ErrTransferIDRequired
	}
	result := req.Result
	if result == "" {
		result = OutcomeUnknown
	}
	if !ValidOutcome(result) {
		return models.ProviderQueryResponse{}, ErrInvalidProviderResult
	}
	if _, err := s.GetTransfer(ctx, req.TransferID); err != nil {
		return models.ProviderQueryResponse{}, err
	}
	return models.ProviderQueryResponse{
		TransferID:     req.TransferID,
		ProviderStatus: result,
		ProviderRef:    providerRef(req.TransferID),
	}, nil
}

func decodeTransferPayload(raw json.RawMessage) (models.TransferEventPayload, error) {
	var p models.TransferEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode transfer payload: %w", err)
	}
	return p, nil
}

// transition loads the transfer named by the payload and resolves via against
// the transition table. ok is false when the event does not apply, which
// makes replays and late events no-ops.
func transition(ctx context.Context, tx store.Tx, p models.TransferEventPayload, via domain.TransferTransition) (domain.Transfer, domain.TransferStatus, bool, error) {
	if p.TransferID == "" {
		return domain.Transfer{}, "", false, nil
	}
	t, err := tx.GetTransfer(ctx, p.TransferID)
	if errors.Is(err, store.ErrNotFound) {
		return t, "", false, nil
	}
	if err != nil {
		return t, "", false, err
	}
	next, err := t.Status.Next(via)
	if err != nil {
		return t, "", false, nil
	}
	return t, next, true, nil
}

func orDefault(v, def string) *string {
	if v == "" {
		v = def
	}
	return &v
}

func (s *Service) applyTransferSubmitted(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodeTransferPayload(raw)
	if err != nil || p.ProviderRef == "" {
		return 0, err
	}
	t, next, ok, err := transition(ctx, tx, p, domain.TransferProviderSubmitted)
	if err != nil || !ok {
		return 0, err
	}
	ts := s.now()
	u := store.TransferUpdate{Status: next, ProviderRef: &p.ProviderRef, UpdatedAt: ts}
	if t.SubmittedAt == nil {
		u.SubmittedAt = &ts
	}
	return 1, tx.UpdateTransfer(ctx, t.ID, u)
}

// applyTransferCreditConfirmed releases the hold: the amount leaves with the
// bank payout and the fee becomes revenue.
func (s *Service) applyTransferCreditConfirmed(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodeTransferPayload(raw)
	if err != nil {
		return 0, err
	}
	t, next, ok, err := transition(ctx, tx, p, domain.TransferConfirmCredit)
	if err != nil || !ok {
		return 0, err
	}

	lines := []ledger.Line{
		ledger.Dr(ledger.TransferHold(t.ID), t.TotalHold()),
		ledger.Cr(ledger.PlatformSettlementCash, t.Amount),
	}
	lines = appendCredit(lines, ledger.TransferFeeRevenue, t.Fee)
	if _, err := s.ledger.Post(ctx, tx, ledger.RefTransfer, t.ID, "Transfer succeeded: pay out and take fee", lines...); err != nil {
		return 0, err
	}
	return 1, tx.UpdateTransfer(ctx, t.ID, store.TransferUpdate{Status: next, UpdatedAt: s.now()})
}

// refundHold returns the whole hold to the user's wallet.
func (s *Service) refundHold(ctx context.Context, tx store.Tx, t domain.Transfer, memo string) error {
	wallet, err := s.ledger.EnsureEntityAccount(ctx, tx, ledger.UserWalletBucket, t.UserID)
	if err != nil {
		return err
	}
	_, err = s.ledger.Post(ctx, tx, ledger.RefTransfer, t.ID, memo,
		ledger.Dr(ledger.TransferHold(t.ID), t.TotalHold()),
		ledger.Cr(wallet, t.TotalHold()),
	)
	return err
}

// applyTransferFailedNoDebit refunds immediately: the rail confirmed no money left.
func (s *Service) applyTransferFailedNoDebit(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodeTransferPayload(raw)
	if err != nil {
		return 0, err
	}
	t, next, ok, err := transition(ctx, tx, p, domain.TransferFailNoDebit)
	if err != nil || !ok {
		return 0, err
	}
	if err := s.refundHold(ctx, tx, t, "Transfer failed with no debit: refund user from hold"); err != nil {
		return 0, err
	}
	return 1, tx.UpdateTransfer(ctx, t.ID, store.TransferUpdate{
		Status:        next,
		FailureCode:   orDefault(p.FailureCode, "FAILED"),
		FailureReason: orDefault(p.FailureReason, "failed_no_debit"),
		UpdatedAt:     s.now(),
	})
}

// applyTransferFailedDebited only records the state. The hold stays until a
// reversal, a late credit confirmation or a no-debit verdict settles where the
// money is; refunding now could pay the user twice.
func (s *Service) applyTransferFailedDebited(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodeTransferPayload(raw)
	if err != nil {
		return 0, err
	}
	t, next, ok, err := transition(ctx, tx, p, domain.TransferFailDebited)
	if err != nil || !ok {
		return 0, err
	}
	return 1, tx.UpdateTransfer(ctx, t.ID, store.TransferUpdate{
		Status:        next,
		FailureCode:   orDefault(p.FailureCode, "FAILED_DEBITED"),
		FailureReason: orDefault(p.FailureReason, "failed_but_debited"),
		UpdatedAt:     s.now(),
	})
}

func (s *Service) applyTransferReversed(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodeTransferPayload(raw)
	if err != nil {
		return 0, err
	}
	t, next, ok, err := transition(ctx, tx, p, domain.TransferConfirmReversal)
	if err != nil || !ok {
		return 0, err
	}
	if err := s.refundHold(ctx, tx, t, "Reversal confirmed: refund user from hold"); err != nil {
		return 0, err
	}
	return 1, tx.UpdateTransfer(ctx, t.ID, store.TransferUpdate{Status: next, UpdatedAt: s.now()})
}

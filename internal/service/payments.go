package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/fee"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

// DisputeListLimit caps ListDisputes.
const DisputeListLimit = 50

func (s *Service) ensureMerchantAccounts(ctx context.Context, tx store.Tx, merchantID string) error {
	for _, b := range []ledger.Bucket{ledger.MerchantPendingBucket, ledger.MerchantAvailableBucket} {
		if _, err := s.ledger.EnsureEntityAccount(ctx, tx, b, merchantID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CreateMerchant(ctx context.Context, req models.CreateMerchantRequest) (models.MerchantResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.MerchantResponse{}, ErrNameRequired
	}

	m := domain.Merchant{ID: s.newID(), Name: name, CreatedAt: s.now()}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertMerchant(ctx, m); err != nil {
			return err
		}
		return s.ensureMerchantAccounts(ctx, tx, m.ID)
	})
	if err != nil {
		return models.MerchantResponse{}, err
	}
	return models.MerchantResponse{MerchantID: m.ID, Name: m.Name}, nil
}

// CreatePaymentIntent records a payment intent in status created. The intent
// only changes status through provider events.
func (s *Service) CreatePaymentIntent(ctx context.Context, key string, req models.CreatePaymentIntentRequest) (Replay, error) {
	return idempotent(ctx, s, scopeCreatePaymentIntent, key, req,
		func(ctx context.Context, tx store.Tx) (models.PaymentIntentResponse, error) {
			mode, err := fee.ParseMode(req.FeeMode)
			if err != nil {
				return models.PaymentIntentResponse{}, ErrInvalidFeeMode
			}
			if req.MerchantID == "" || req.Amount <= 0 {
				return models.PaymentIntentResponse{}, ErrMerchantAmountRequired
			}
			if req.Amount > fee.MaxPaymentAmount {
				return models.PaymentIntentResponse{}, ErrAmountTooLarge.With("max_amount_kobo", int64(fee.MaxPaymentAmount))
			}
			if _, err := tx.GetMerchant(ctx, req.MerchantID); err != nil {
				return models.PaymentIntentResponse{}, mapNotFound(err, ErrMerchantNotFound)
			}
			if err := s.ensureMerchantAccounts(ctx, tx, req.MerchantID); err != nil {
				return models.PaymentIntentResponse{}, err
			}

			currency := req.Currency
			if currency == "" {
				currency = DefaultCurrency
			}
			ts := s.now()
			pi := domain.PaymentIntent{
				ID:             s.newID(),
				MerchantID:     req.MerchantID,
				Amount:         req.Amount,
				Currency:       currency,
				FeeMode:        string(mode),
				Status:         domain.PaymentCreated,
				IdempotencyKey: key,
				CreatedAt:      ts,
				UpdatedAt:      ts,
			}
			if err := tx.InsertPaymentIntent(ctx, pi); err != nil {
				return models.PaymentIntentResponse{}, err
			}
			return paymentIntentResponse(pi), nil
		})
}

func paymentIntentResponse(pi domain.PaymentIntent) models.PaymentIntentResponse {
	return models.PaymentIntentResponse{
		PaymentIntentID: pi.ID,
		MerchantID:      pi.MerchantID,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
		FeeMode:         pi.FeeMode,
		Status:          string(pi.Status),
	}
}

func (s *Service) GetPaymentIntent(ctx context.Context, id string) (models.PaymentIntentResponse, error) {
	var pi domain.PaymentIntent
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		pi, err = tx.GetPaymentIntent(ctx, id)
		return mapNotFound(err, ErrPaymentIntentNotFound)
	})
	if err != nil {
		return models.PaymentIntentResponse{}, err
	}
	return paymentIntentResponse(pi), nil
}

func decodePaymentPayload(raw json.RawMessage) (models.PaymentEventPayload, error) {
	var p models.PaymentEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode payment payload: %w", err)
	}
	return p, nil
}

// loadIntentFor returns the intent and the status it would move to, or
// ok=false when the event does not apply.
func loadIntentFor(ctx context.Context, tx store.Tx, id string, t domain.PaymentTransition) (domain.PaymentIntent, domain.PaymentStatus, bool, error) {
	if id == "" {
		return domain.PaymentIntent{}, "", false, nil
	}
	pi, err := tx.GetPaymentIntent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return pi, "", false, nil
	}
	if err != nil {
		return pi, "", false, err
	}
	next, err := pi.Status.Next(t)
	if err != nil {
		return pi, "", false, nil
	}
	return pi, next, true, nil
}

// applyPaymentSucceeded books the collected cash in two journals: cash into
// customer_funds, then customer_funds out to the merchant and the fee takers.
func (s *Service) applyPaymentSucceeded(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodePaymentPayload(raw)
	if err != nil {
		return 0, err
	}
	pi, next, ok, err := loadIntentFor(ctx, tx, p.PaymentIntentID, domain.PaymentSucceed)
	if err != nil || !ok {
		return 0, err
	}

	mode, err := fee.ParseMode(pi.FeeMode)
	if err != nil {
		return 0, err
	}
	b, err := fee.Compute(pi.Amount, mode)
	if err != nil {
		return 0, err
	}
	if err := s.ensureMerchantAccounts(ctx, tx, pi.MerchantID); err != nil {
		return 0, err
	}
	if err := tx.UpdatePaymentIntentStatus(ctx, pi.ID, next, s.now()); err != nil {
		return 0, err
	}

	if _, err := s.ledger.Post(ctx, tx, ledger.RefPayment, pi.ID, "Payment succeeded: cash received and held",
		ledger.Dr(ledger.PlatformCash, b.TotalCollected),
		ledger.Cr(ledger.CustomerFunds, b.TotalCollected),
	); err != nil {
		return 0, err
	}

	lines := []ledger.Line{ledger.Dr(ledger.CustomerFunds, b.TotalCollected)}
	lines = appendCredit(lines, ledger.MerchantPending(pi.MerchantID), b.MerchantNet)
	lines = appendCredit(lines, ledger.PlatformRevenue, b.PlatformFee)
	lines = appendCredit(lines, ledger.VATPayable, b.VAT)
	lines = appendCredit(lines, ledger.ProviderPayable, b.ProviderFee)
	if _, err := s.ledger.Post(ctx, tx, ledger.RefPayment, pi.ID, "Allocate held funds: merchant payable and fees", lines...); err != nil {
		return 0, err
	}
	return 1, nil
}

func appendCredit(lines []ledger.Line, account string, amount int64) []ledger.Line {
	if amount > 0 {
		lines = append(lines, ledger.Cr(account, amount))
	}
	return lines
}

func appendDebit(lines []ledger.Line, account string, amount int64) []ledger.Line {
	if amount > 0 {
		lines = append(lines, ledger.Dr(account, amount))
	}
	return lines
}

// applyPaymentFailed closes an intent that never collected money.
func (s *Service) applyPaymentFailed(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodePaymentPayload(raw)
	if err != nil {
		return 0, err
	}
	pi, next, ok, err := loadIntentFor(ctx, tx, p.PaymentIntentID, domain.PaymentFail)
	if err != nil || !ok {
		return 0, err
	}
	if err := tx.UpdatePaymentIntentStatus(ctx, pi.ID, next, s.now()); err != nil {
		return 0, err
	}
	return 1, nil
}

// applyChargeback reverses a succeeded payment at most once. The merchant's
// share is taken back from pending first, then available; whatever the
// merchant already withdrew becomes a receivable.
func (s *Service) applyChargeback(ctx context.Context, tx store.Tx, raw json.RawMessage) (int, error) {
	p, err := decodePaymentPayload(raw)
	if err != nil {
		return 0, err
	}
	if p.PaymentIntentID == "" {
		return 0, nil
	}
	reversed, err := tx.HasReversal(ctx, p.PaymentIntentID, domain.ReversalChargeback)
	if err != nil || reversed {
		return 0, err
	}
	pi, next, ok, err := loadIntentFor(ctx, tx, p.PaymentIntentID, domain.PaymentChargeback)
	if err != nil || !ok {
		return 0, err
	}

	mode, err := fee.ParseMode(pi.FeeMode)
	if err != nil {
		return 0, err
	}
	b, err := fee.Compute(pi.Amount, mode)
	if err != nil {
		return 0, err
	}
	if err := s.ensureMerchantAccounts(ctx, tx, pi.MerchantID); err != nil {
		return 0, err
	}

	pendingAcct := ledger.MerchantPending(pi.MerchantID)
	availableAcct := ledger.MerchantAvailable(pi.MerchantID)
	pending, err := s.ledger.Balance(ctx, tx, pendingAcct)
	if err != nil {
		return 0, err
	}
	available, err := s.ledger.Balance(ctx, tx, availableAcct)
	if err != nil {
		return 0, err
	}

	fromPending := min(b.MerchantNet, max(pending, 0))
	remaining := b.MerchantNet - fromPending
	fromAvailable := min(remaining, max(available, 0))
	receivable := remaining - fromAvailable

	reason := p.Reason
	if reason == "" {
		reason = "unspecified"
	}
	ts := s.now()
	dispute := domain.Dispute{
		ID:              s.newID(),
		PaymentIntentID: pi.ID,
		Type:            domain.ReversalChargeback,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
		Status:          domain.DisputeOpened,
		Reason:          reason,
		CreatedAt:       ts,
	}
	if err := tx.InsertDispute(ctx, dispute); err != nil {
		return 0, err
	}

	providerFeeAcct := ledger.ChargebackLoss
	if p.RefundProviderFee {
		providerFeeAcct = ledger.ProviderPayable
	}

	var lines []ledger.Line
	lines = appendDebit(lines, pendingAcct, fromPending)
	lines = appendDebit(lines, availableAcct, fromAvailable)
	lines = appendDebit(lines, ledger.MerchantReceivable, receivable)
	lines = appendDebit(lines, ledger.PlatformRevenue, b.PlatformFee)
	lines = appendDebit(lines, ledger.VATPayable, b.VAT)
	lines = appendDebit(lines, providerFeeAcct, b.ProviderFee)
	lines = append(lines, ledger.Cr(ledger.CustomerFunds, b.TotalCollected))
	if _, err := s.ledger.Post(ctx, tx, ledger.RefChargeback, pi.ID, "Chargeback reversal: undo allocation", lines...); err != nil {
		return 0, err
	}

	if _, err := s.ledger.Post(ctx, tx, ledger.RefChargeback, pi.ID, "Chargeback reversal: provider clawback reduces platform cash",
		ledger.Dr(ledger.CustomerFunds, b.TotalCollected),
		ledger.Cr(ledger.PlatformCash, b.TotalCollected),
	); err != nil {
		return 0, err
	}

	if err := tx.InsertReversal(ctx, domain.Reversal{
		PaymentIntentID: pi.ID,
		Type:            domain.ReversalChargeback,
		CreatedAt:       ts,
	}); err != nil {
		return 0, err
	}
	if err := tx.CloseDispute(ctx, dispute.ID, ts); err != nil {
		return 0, err
	}
	if err := tx.UpdatePaymentIntentStatus(ctx, pi.ID, next, ts); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Service) requireMerchant(ctx context.Context, tx store.Tx, merchantID string) error {
	if _, err := tx.GetMerchant(ctx, merchantID); err != nil {
		return mapNotFound(err, ErrMerchantNotFound)
	}
	return s.ensureMerchantAccounts(ctx, tx, merchantID)
}

// Release moves amount from the merchant's pending payable to available.
func (s *Service) Release(ctx context.Context, req models.MerchantAmountRequest) (models.ReleaseResponse, error) {
	if req.MerchantID == "" || req.Amount <= 0 {
		return models.ReleaseResponse{}, ErrMerchantAmountRequired
	}

	resp := models.ReleaseResponse{OK: true, ReleaseID: s.newID()}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := s.requireMerchant(ctx, tx, req.MerchantID); err != nil {
			return err
		}
		pendingAcct := ledger.MerchantPending(req.MerchantID)
		pending, err := s.ledger.Balance(ctx, tx, pendingAcct)
		if err != nil {
			return err
		}
		if pending < req.Amount {
			return ErrInsufficientPending.With("pending_kobo", pending)
		}

		resp.JournalID, err = s.ledger.Post(ctx, tx, ledger.RefRelease, resp.ReleaseID, "Release pending payable to available payable",
			ledger.Dr(pendingAcct, req.Amount),
			ledger.Cr(ledger.MerchantAvailable(req.MerchantID), req.Amount),
		)
		return err
	})
	if err != nil {
		return models.ReleaseResponse{}, err
	}
	return resp, nil
}

// Settle pays out amount of the merchant's available payable from platform cash.
func (s *Service) Settle(ctx context.Context, req models.MerchantAmountRequest) (models.SettleResponse, error) {
	if req.MerchantID == "" || req.Amount <= 0 {
		return models.SettleResponse{}, ErrMerchantAmountRequired
	}
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	ts := s.now()
	st := domain.Settlement{
		ID:         s.newID(),
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Currency:   currency,
		Status:     domain.SettlementCreated,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	resp := models.SettleResponse{OK: true, SettlementID: st.ID}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := s.requireMerchant(ctx, tx, req.MerchantID); err != nil {
			return err
		}
		availableAcct := ledger.MerchantAvailable(req.MerchantID)
		available, err := s.ledger.Balance(ctx, tx, availableAcct)
		if err != nil {
			return err
		}
		if available < req.Amount {
			return ErrInsufficientAvailable.With("available_kobo", available)
		}

		if err := tx.InsertSettlement(ctx, st); err != nil {
			return err
		}
		resp.JournalID, err = s.ledger.Post(ctx, tx, ledger.RefSettlement, st.ID, "Pay out merchant",
			ledger.Dr(availableAcct, req.Amount),
			ledger.Cr(ledger.PlatformCash, req.Amount),
		)
		if err != nil {
			return err
		}
		if err := tx.UpdateSettlementStatus(ctx, st.ID, domain.SettlementPaid, ts); err != nil {
			return err
		}
		resp.Status = string(domain.SettlementPaid)
		return nil
	})
	if err != nil {
		return models.SettleResponse{}, err
	}
	return resp, nil
}

func (s *Service) ListDisputes(ctx context.Context) (models.DisputesResponse, error) {
	resp := models.DisputesResponse{Disputes: []domain.Dispute{}}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		ds, err := tx.ListDisputes(ctx, DisputeListLimit)
		if err != nil {
			return err
		}
		resp.Disputes = append(resp.Disputes, ds...)
		return nil
	})
	return resp, err
}

// QuoteFees runs the same computation a successful payment would.
func (s *Service) QuoteFees(req models.FeeQuoteRequest) (fee.Breakdown, error) {
	if req.Amount <= 0 {
		return fee.Breakdown{}, ErrPositiveAmountRequired
	}
	if req.Amount > fee.MaxPaymentAmount {
		return fee.Breakdown{}, ErrAmountTooLarge.With("max_amount_kobo", int64(fee.MaxPaymentAmount))
	}
	mode, err := fee.ParseMode(req.FeeMode)
	if err != nil {
		return fee.Breakdown{}, ErrInvalidFeeMode
	}
	return fee.Compute(req.Amount, mode)
}

func (s *Service) Balances(ctx context.Context) (models.BalancesResponse, error) {
	resp := models.BalancesResponse{Balances: []ledger.Balance{}}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		bs, err := tx.Balances(ctx)
		if err != nil {
			return err
		}
		resp.Balances = append(resp.Balances, bs...)
		return nil
	})
	return resp, err
}

// Balance returns one account's balance, or ErrAccountNotFound.
func (s *Service) Balance(ctx context.Context, account string) (ledger.Balance, error) {
	all, err := s.Balances(ctx)
	if err != nil {
		return ledger.Balance{}, err
	}
	for _, b := range all.Balances {
		if b.Account == account {
			return b, nil
		}
	}
	return ledger.Balance{}, ErrAccountNotFound
}

// Journals lists the journals written for one business object.
func (s *Service) Journals(ctx context.Context, refType, refID string) (models.JournalsResponse, error) {
	if refType == "" || refID == "" {
		return models.JournalsResponse{}, ErrRefRequired
	}
	resp := models.JournalsResponse{Journals: []ledger.Journal{}}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		js, err := tx.JournalsByRef(ctx, ledger.RefType(refType), refID)
		if err != nil {
			return err
		}
		resp.Journals = append(resp.Journals, js...)
		return nil
	})
	return resp, err
}

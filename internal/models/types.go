// Package models holds the request and response bodies of every operation.
// Requests are hashed as decoded, so field order and whitespace in the client
// payload never affect idempotency.
package models

import (
	"encoding/json"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
)

type CreateMerchantRequest struct {
	Name string `json:"name"`
}

type MerchantResponse struct {
	MerchantID string `json:"merchant_id"`
	Name       string `json:"name"`
}

type CreatePaymentIntentRequest struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount_kobo"`
	Currency   string `json:"currency,omitempty"`
	FeeMode    string `json:"fee_mode,omitempty"`
}

type PaymentIntentResponse struct {
	PaymentIntentID string `json:"payment_intent_id"`
	MerchantID      string `json:"merchant_id"`
	Amount          int64  `json:"amount_kobo"`
	Currency        string `json:"currency"`
	FeeMode         string `json:"fee_mode"`
	Status          string `json:"status"`
}

// WebhookRequest is an inbound provider notification. Payload must be a JSON object.
type WebhookRequest struct {
	ProviderEventID string          `json:"provider_event_id"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
}

type WebhookResponse struct {
	OK   bool   `json:"ok"`
	Note string `json:"note,omitempty"`
}

// ProcessResponse reports how many events in a worker batch changed state.
type ProcessResponse struct {
	Processed int `json:"processed"`
}

// PaymentEventPayload is the payload of payment_succeeded, payment_failed
// and payment_chargeback events.
type PaymentEventPayload struct {
	PaymentIntentID   string `json:"payment_intent_id"`
	Reason            string `json:"reason,omitempty"`
	RefundProviderFee bool   `json:"refund_provider_fee,omitempty"`
}

// TransferEventPayload is the payload of every transfer_* event.
type TransferEventPayload struct {
	TransferID    string `json:"transfer_id"`
	ProviderRef   string `json:"provider_ref,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type BalancesResponse struct {
	Balances []ledger.Balance `json:"balances"`
}

type MerchantAmountRequest struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount_kobo"`
	Currency   string `json:"currency,omitempty"`
}

type ReleaseResponse struct {
	OK        bool   `json:"ok"`
	ReleaseID string `json:"release_id"`
	JournalID string `json:"journal_id"`
}

type SettleResponse struct {
	OK           bool   `json:"ok"`
	SettlementID string `json:"settlement_id"`
	Status       string `json:"status"`
	JournalID    string `json:"journal_id"`
}

type DisputesResponse struct {
	Disputes []domain.Dispute `json:"disputes"`
}

type FeeQuoteRequest struct {
	Amount  int64  `json:"amount_kobo"`
	FeeMode string `json:"fee_mode,omitempty"`
}

type CreateUserRequest struct {
	Name string `json:"name"`
}

type UserResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type FundWalletRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount_kobo"`
}

type FundWalletResponse struct {
	OK        bool   `json:"ok"`
	JournalID string `json:"journal_id"`
}

type CreateTransferRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount_kobo"`
	Currency    string `json:"currency,omitempty"`
	BankCode    string `json:"bank_code"`
	BankAccount string `json:"bank_account"`
	Narration   string `json:"narration,omitempty"`
}

type TransferResponse struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount_kobo"`
	Fee        int64  `json:"fee_kobo"`
	TotalHeld  int64  `json:"total_held_kobo"`
}

type SubmitTransferRequest struct {
	TransferID string `json:"transfer_id"`
	Mode       string `json:"mode,omitempty"`
}

type SubmitTransferResponse struct {
	OK          bool   `json:"ok"`
	Status      string `json:"status"`
	ProviderRef string `json:"provider_ref,omitempty"`
}

type ProviderQueryRequest struct {
	TransferID string `json:"transfer_id"`
	Result     string `json:"result,omitempty"`
}

type ProviderQueryResponse struct {
	TransferID     string `json:"transfer_id"`
	ProviderStatus string `json:"provider_status"`
	ProviderRef    string `json:"provider_ref"`
}

// PollRequest carries the provider's answer per transfer id; transfers
// missing from Results are still unknown.
type PollRequest struct {
	Limit   int               `json:"limit,omitempty"`
	Results map[string]string `json:"results,omitempty"`
}

type PollResponse struct {
	Polled                int `json:"polled"`
	GeneratedEvents       int `json:"generated_events"`
	EscalatedManualReview int `json:"escalated_manual_review"`
}

type JournalsResponse struct {
	Journals []ledger.Journal `json:"journals"`
}

type TransfersResponse struct {
	Transfers []domain.Transfer `json:"transfers"`
}

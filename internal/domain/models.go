package domain

import (
	"encoding/json"
	"time"
)

// Merchant owns a pending and an available payable account in the ledger.
type Merchant struct {
	ID        string    `json:"merchant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User owns a wallet account in the ledger.
type User struct {
	ID        string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentIntent is a merchant's request to collect Amount from a customer.
// Status only moves through event processing.
type PaymentIntent struct {
	ID             string        `json:"payment_intent_id"`
	MerchantID     string        `json:"merchant_id"`
	Amount         int64         `json:"amount_kobo"`
	Currency       string        `json:"currency"`
	FeeMode        string        `json:"fee_mode"`
	Status         PaymentStatus `json:"status"`
	IdempotencyKey string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Transfer is a user's payout from wallet to a bank destination.
type Transfer struct {
	ID             string         `json:"transfer_id"`
	UserID         string         `json:"user_id"`
	Amount         int64          `json:"amount_kobo"`
	Fee            int64          `json:"fee_kobo"`
	Currency       string         `json:"currency"`
	BankCode       string         `json:"bank_code"`
	BankAccount    string         `json:"bank_account"`
	Narration      string         `json:"narration"`
	Status         TransferStatus `json:"status"`
	ProviderRef    string         `json:"provider_ref,omitempty"`
	FailureCode    string         `json:"failure_code,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	SubmittedAt    *time.Time     `json:"submitted_at,omitempty"`
	LastPolledAt   *time.Time     `json:"last_polled_at,omitempty"`
	IdempotencyKey string         `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TotalHold is what the transfer keeps out of the wallet while in flight.
func (t Transfer) TotalHold() int64 {
	return t.Amount + t.Fee
}

// DisputeStatus tracks the audit record of a chargeback.
type DisputeStatus string

const (
	DisputeOpened DisputeStatus = "opened"
	DisputeClosed DisputeStatus = "closed"
)

// Dispute is an audit record; the ledger stays authoritative for money.
type Dispute struct {
	ID              string        `json:"dispute_id"`
	PaymentIntentID string        `json:"payment_intent_id"`
	Type            string        `json:"type"`
	Amount          int64         `json:"amount_kobo"`
	Currency        string        `json:"currency"`
	Status          DisputeStatus `json:"status"`
	Reason          string        `json:"reason"`
	CreatedAt       time.Time     `json:"created_at"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
}

// ReversalChargeback is the only reversal type today.
const ReversalChargeback = "chargeback"

// Reversal marks a payment intent as reversed for a given type. The pair
// (PaymentIntentID, Type) is unique.
type Reversal struct {
	PaymentIntentID string
	Type            string
	CreatedAt       time.Time
}

// SettlementStatus tracks a merchant payout.
type SettlementStatus string

const (
	SettlementCreated SettlementStatus = "created"
	SettlementPaid    SettlementStatus = "paid"
)

// Settlement is a payout of a merchant's available payable.
type Settlement struct {
	ID         string           `json:"settlement_id"`
	MerchantID string           `json:"merchant_id"`
	Amount     int64            `json:"amount_kobo"`
	Currency   string           `json:"currency"`
	Status     SettlementStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Event is an externally sourced notification, deduplicated on ProviderEventID.
// Append-only; Processed flips to true exactly once.
type Event struct {
	ID              string          `json:"id"`
	ProviderEventID string          `json:"provider_event_id"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	Processed       bool            `json:"processed"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IdempotencyRecord stores the exact response produced for a client key.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Response    json.RawMessage
	CreatedAt   time.Time
}

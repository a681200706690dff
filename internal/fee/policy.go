// Package fee decides what the platform, the provider and the tax authority
// take from a payment, and what a transfer costs.
package fee

import (
	"errors"
	"fmt"
	"math"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/money"
)

// Rates in basis points and the rounding attached to each. Provider fee rounds
// up so the pass-through cost is never under-collected.
const (
	PlatformFeeBps = 150 // 1.5%
	ProviderFeeBps = 100 // 1.0%
	VATBps         = 750 // 7.5%, on the platform fee only

	PlatformFeeCap = 200_000 // 2000 NGN

	// MaxPaymentAmount is the largest amount Compute can price without
	// overflowing the basis-point multiplication.
	MaxPaymentAmount = math.MaxInt64 / PlatformFeeBps

	PlatformFeeRounding = money.Floor
	ProviderFeeRounding = money.Ceil
	VATRounding         = money.Floor
)

var (
	ErrFeesExceedAmount = fmt.Errorf("%w: fees exceed amount", domain.ErrInvariant)
	ErrInvalidMode      = errors.New("invalid fee mode")
)

// Mode says who bears the fees.
type Mode string

const (
	MerchantPays Mode = "merchant_pays"
	CustomerPays Mode = "customer_pays"
)

// ParseMode accepts the two known modes; an empty string means merchant_pays.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", MerchantPays:
		return MerchantPays, nil
	case CustomerPays:
		return CustomerPays, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// PlatformFee is 1.5% of amount, floored, capped at PlatformFeeCap.
func PlatformFee(amount int64) (int64, error) {
	fee, err := money.PercentBps(amount, PlatformFeeBps, PlatformFeeRounding)
	if err != nil {
		return 0, err
	}
	return min(fee, PlatformFeeCap), nil
}

// ProviderFee is 1% of amount, rounded up.
func ProviderFee(amount int64) (int64, error) {
	return money.PercentBps(amount, ProviderFeeBps, ProviderFeeRounding)
}

// VATOnPlatformFee is 7.5% of the platform fee, floored.
func VATOnPlatformFee(platformFee int64) (int64, error) {
	return money.PercentBps(platformFee, VATBps, VATRounding)
}

// Breakdown is the full split of one payment.
// MerchantNet + PlatformFee + VAT + ProviderFee == TotalCollected always holds.
type Breakdown struct {
	Mode           Mode  `json:"fee_mode"`
	Amount         int64 `json:"amount_kobo"`
	PlatformFee    int64 `json:"platform_fee_kobo"`
	VAT            int64 `json:"vat_kobo"`
	ProviderFee    int64 `json:"provider_fee_kobo"`
	TotalFees      int64 `json:"total_fees_kobo"`
	TotalCollected int64 `json:"total_collected_kobo"`
	MerchantNet    int64 `json:"merchant_net_kobo"`
}

// Compute splits amount under mode. Payment success and chargeback both call
// this, so a reversal always mirrors the original allocation.
func Compute(amount int64, mode Mode) (Breakdown, error) {
	platformFee, err := PlatformFee(amount)
	if err != nil {
		return Breakdown{}, err
	}
	vat, err := VATOnPlatformFee(platformFee)
	if err != nil {
		return Breakdown{}, err
	}
	providerFee, err := ProviderFee(amount)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		Mode:        mode,
		Amount:      amount,
		PlatformFee: platformFee,
		VAT:         vat,
		ProviderFee: providerFee,
		TotalFees:   platformFee + vat + providerFee,
	}

	switch mode {
	case MerchantPays:
		b.TotalCollected = amount
		b.MerchantNet = amount - b.TotalFees
	case CustomerPays:
		b.TotalCollected = amount + b.TotalFees
		b.MerchantNet = amount
	default:
		return Breakdown{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if b.MerchantNet < 0 {
		return Breakdown{}, fmt.Errorf("%w: amount %d, fees %d", ErrFeesExceedAmount, amount, b.TotalFees)
	}
	return b, nil
}

// TransferFlatFee is charged on every transfer regardless of size (10 NGN).
const TransferFlatFee = 1_000

// MaxTransferAmount keeps amount plus the transfer fee within int64.
const MaxTransferAmount = math.MaxInt64 - TransferFlatFee

// TransferFee returns the fee for a transfer of amount.
func TransferFee(amount int64) int64 {
	return TransferFlatFee
}

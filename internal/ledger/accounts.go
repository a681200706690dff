package ledger

import "context"

// Bucket is a kind of per-entity account.
type Bucket string

const (
	MerchantPendingBucket   Bucket = "merchant_payable_pending"
	MerchantAvailableBucket Bucket = "merchant_payable_available"
	UserWalletBucket        Bucket = "user_wallet"
	TransferHoldBucket      Bucket = "transfer_hold"
)

// Type is the account type every account in the bucket is created with.
func (b Bucket) Type() AccountType {
	switch b {
	case MerchantPendingBucket, MerchantAvailableBucket, UserWalletBucket, TransferHoldBucket:
		return Liability
	}
	return ""
}

// EntityAccount is the single naming rule for per-entity accounts: "<bucket>:<id>".
func EntityAccount(b Bucket, entityID string) string {
	return string(b) + ":" + entityID
}

func MerchantPending(merchantID string) string {
	return EntityAccount(MerchantPendingBucket, merchantID)
}

func MerchantAvailable(merchantID string) string {
	return EntityAccount(MerchantAvailableBucket, merchantID)
}

func UserWallet(userID string) string {
	return EntityAccount(UserWalletBucket, userID)
}

func TransferHold(transferID string) string {
	return EntityAccount(TransferHoldBucket, transferID)
}

// Platform-wide accounts.
const (
	PlatformCash           = "platform_cash"
	ProviderClearing       = "provider_clearing"
	PlatformRevenue        = "platform_revenue"
	ProviderPayable        = "provider_payable"
	VATPayable             = "vat_payable"
	CustomerFunds          = "customer_funds"
	PlatformSettlementCash = "platform_settlement_cash"
	TransferFeeRevenue     = "transfer_fee_revenue"
	ProviderFeePayable     = "provider_fee_payable"
	MerchantReceivable     = "merchant_receivable"
	ChargebackLoss         = "chargeback_loss"
)

// AccountSpec names an account and its type.
type AccountSpec struct {
	Name string
	Type AccountType
}

// PlatformAccounts is the fixed chart of platform accounts.
var PlatformAccounts = []AccountSpec{
	{PlatformCash, Asset},
	{ProviderClearing, Asset},
	{PlatformRevenue, Revenue},
	{ProviderPayable, Liability},
	{VATPayable, Liability},
	{CustomerFunds, Liability},
	{PlatformSettlementCash, Asset},
	{TransferFeeRevenue, Revenue},
	{ProviderFeePayable, Liability},
	{MerchantReceivable, Asset},
	{ChargebackLoss, Expense},
}

// Bootstrap ensures every platform account exists. Safe to run on every start.
func (l *Ledger) Bootstrap(ctx context.Context, s Store) error {
	for _, spec := range PlatformAccounts {
		if err := l.EnsureAccount(ctx, s, spec.Name, spec.Type); err != nil {
			return err
		}
	}
	return nil
}

// EnsureEntityAccount ensures the bucket account of entityID exists.
func (l *Ledger) EnsureEntityAccount(ctx context.Context, s Store, b Bucket, entityID string) (string, error) {
	name := EntityAccount(b, entityID)
	return name, l.EnsureAccount(ctx, s, name, b.Type())
}

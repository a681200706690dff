package domain

import "fmt"

// TransferStatus is the lifecycle of a wallet-to-bank transfer.
//
//	wallet_held -> submitted -> credit_confirmed | failed_no_debit | failed_debited | unknown
//	unknown -> credit_confirmed | failed_no_debit | failed_debited | manual_review
//	failed_debited -> reversed
type TransferStatus string

const (
	TransferWalletHeld      TransferStatus = "wallet_held"
	TransferSubmitted       TransferStatus = "submitted"
	TransferUnknown         TransferStatus = "unknown"
	TransferCreditConfirmed TransferStatus = "credit_confirmed"
	TransferFailedNoDebit   TransferStatus = "failed_no_debit"
	TransferFailedDebited   TransferStatus = "failed_debited"
	TransferReversed        TransferStatus = "reversed"
	TransferManualReview    TransferStatus = "manual_review"
)

// TransferTransition is a cause of a transfer status change.
type TransferTransition string

const (
	TransferSubmitOK          TransferTransition = "submit_ok"
	TransferSubmitUnknown     TransferTransition = "submit_unknown"
	TransferProviderSubmitted TransferTransition = "provider_submitted"
	TransferConfirmCredit     TransferTransition = "credit_confirmed"
	TransferFailNoDebit       TransferTransition = "failed_no_debit"
	TransferFailDebited       TransferTransition = "failed_debited"
	TransferConfirmReversal   TransferTransition = "reversed"
	TransferEscalate          TransferTransition = "escalate"
)

// failed_debited keeps the hold: the rail may still have the money, so only a
// confirmed reversal, a late credit confirmation or a no-debit verdict move it.
var transferTransitions = map[TransferStatus]map[TransferTransition]TransferStatus{
	TransferWalletHeld: {
		TransferSubmitOK:          TransferSubmitted,
		TransferSubmitUnknown:     TransferUnknown,
		TransferProviderSubmitted: TransferSubmitted,
		TransferConfirmCredit:     TransferCreditConfirmed,
		TransferFailNoDebit:       TransferFailedNoDebit,
		TransferFailDebited:       TransferFailedDebited,
	},
	TransferSubmitted: {
		TransferProviderSubmitted: TransferSubmitted,
		TransferConfirmCredit:     TransferCreditConfirmed,
		TransferFailNoDebit:       TransferFailedNoDebit,
		TransferFailDebited:       TransferFailedDebited,
		TransferConfirmReversal:   TransferReversed,
	},
	TransferUnknown: {
		TransferSubmitOK:          TransferSubmitted,
		TransferSubmitUnknown:     TransferUnknown,
		TransferProviderSubmitted: TransferSubmitted,
		TransferConfirmCredit:     TransferCreditConfirmed,
		TransferFailNoDebit:       TransferFailedNoDebit,
		TransferFailDebited:       TransferFailedDebited,
		TransferConfirmReversal:   TransferReversed,
		TransferEscalate:          TransferManualReview,
	},
	TransferFailedDebited: {
		TransferConfirmCredit:   TransferCreditConfirmed,
		TransferFailNoDebit:     TransferFailedNoDebit,
		TransferConfirmReversal: TransferReversed,
	},
}

// Next returns the status reached from s via t, or ErrIllegalTransition.
func (s TransferStatus) Next(t TransferTransition) (TransferStatus, error) {
	if next, ok := transferTransitions[s][t]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: transfer %s via %s", ErrIllegalTransition, s, t)
}

// Terminal reports whether no transition leaves s.
func (s TransferStatus) Terminal() bool {
	return len(transferTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferWalletHeld, TransferSubmitted, TransferUnknown, TransferCreditConfirmed,
		TransferFailedNoDebit, TransferFailedDebited, TransferReversed, TransferManualReview:
		return true
	}
	return false
}

package domain

import "fmt"

// PaymentStatus is the lifecycle of a payment intent.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentTransition is a cause of a payment status change.
type PaymentTransition string

const (
	PaymentSucceed    PaymentTransition = "succeed"
	PaymentFail       PaymentTransition = "fail"
	PaymentChargeback PaymentTransition = "chargeback"
)

var paymentTransitions = map[PaymentStatus]map[PaymentTransition]PaymentStatus{
	PaymentCreated: {
		PaymentSucceed: PaymentSucceeded,
		PaymentFail:    PaymentFailed,
	},
	PaymentSucceeded: {
		PaymentChargeback: PaymentFailed,
	},
}

// Next returns the status reached from s via t.
func (s PaymentStatus) Next(t PaymentTransition) (PaymentStatus, error) {
	if next, ok := paymentTransitions[s][t]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: payment %s via %s", ErrIllegalTransition, s, t)
}

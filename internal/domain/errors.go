package domain

import "errors"

var (
	// ErrInvariant is the root of every error that must abort the enclosing
	// unit of work: unbalanced journals, non-positive postings, fees larger
	// than the amount. These are bugs or corrupted input, never business outcomes.
	ErrInvariant = errors.New("invariant violation")

	// ErrIllegalTransition is returned by the transition tables.
	ErrIllegalTransition = errors.New("illegal status transition")
)

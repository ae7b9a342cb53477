package entity

import "time"

type PaymentVerification struct {
	ID uint64

	PaymentID uint64
	Reference string
	Endpoint  string

	Outcome   string
	Signature *string
	Reason    *string
	Error     *string

	DurationMs int64
	CreatedAt  time.Time
}

package entity

import "time"

type PaymentEvent struct {
	ID uint64

	PaymentID uint64

	EventType string

	OldState *string
	NewState string

	Signature   *string
	PayloadJSON *string

	CreatedAt time.Time
}

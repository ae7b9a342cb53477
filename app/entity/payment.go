package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStateNew               = "new"
	PaymentStatePending           = "pending"
	PaymentStateCompleted         = "completed"
	PaymentStatePartiallyRefunded = "partially_refunded"
	PaymentStateRefunded          = "refunded"
	PaymentStateVoided            = "voided"
	PaymentStateCanceled          = "canceled"
)

const (
	CallbackDeliveryNone    int32 = 0
	CallbackDeliveryPending int32 = 1
	CallbackDeliverySuccess int32 = 10
	CallbackDeliveryFailed  int32 = 20
)

type Payment struct {
	ID uint64

	RequestID     string
	CallerService string
	OrderID       string

	Amount    decimal.Decimal
	TokenMint string
	Recipient string

	// Reference is set once, when the first payment request is issued.
	Reference   *string
	StatusToken string
	Label       string
	Message     string

	State          string
	RefundedAmount decimal.Decimal
	Signature      *string
	CompletedAt    *time.Time

	StatusCallbackURL string
	Metadata          map[string]string

	CallbackDeliveryStatus   int32
	CallbackDeliveryAttempts int32
	CallbackDeliveryNextAt   *time.Time
	CallbackDeliveryLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Payment) HasReference() bool {
	return p.Reference != nil && *p.Reference != ""
}

func (p *Payment) RemainingAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

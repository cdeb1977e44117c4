package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus of a recorded payment.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentCompleted, PaymentPending, PaymentFailed:
		return true
	}
	return false
}

// PaymentMethod is how the member paid.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodUPI          PaymentMethod = "UPI"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodUPI, MethodBankTransfer:
		return true
	}
	return false
}

// Payment is an immutable membership payment. RenewalDate is derived from
// PaymentDate and the member's membership type at the time of payment.
type Payment struct {
	ID            uint64          `json:"id"`             // payments.id
	MemberID      uint64          `json:"member_id"`      // payments.member_id
	Amount        decimal.Decimal `json:"amount"`         // payments.amount
	Method        PaymentMethod   `json:"method"`         // payments.method
	TransactionID string          `json:"transaction_id"` // payments.transaction_id
	Status        PaymentStatus   `json:"status"`         // payments.status
	PaymentDate   time.Time       `json:"payment_date"`   // payments.payment_date
	RenewalDate   time.Time       `json:"renewal_date"`   // payments.renewal_date
	CreatedAt     time.Time       `json:"created_at"`     // payments.created_at
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether the status can no longer transition.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Payment is one STK push attempt for a single seat on a route.
// Phone and Notification are not serialized; API views expose them explicitly.
type Payment struct {
	ID                int64               `json:"id"`
	RouteID           int64               `json:"route_id"`
	VehicleID         *int64              `json:"vehicle_id"`
	Amount            decimal.Decimal     `json:"amount"`
	Phone             string              `json:"-"`
	Status            PaymentStatus       `json:"status"`
	AccountReference  string              `json:"account_reference"`
	CheckoutRequestID string              `json:"checkout_request_id,omitempty"`
	MerchantRequestID string              `json:"merchant_request_id,omitempty"`
	ReceiptNumber     string              `json:"receipt_number,omitempty"`
	FailureReason     *string             `json:"failure_reason,omitempty"`
	Notification      *NotificationResult `json:"-"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ChannelResult is the captured outcome of one best-effort send.
type ChannelResult struct {
	Attempted bool   `json:"attempted"`
	Delivered bool   `json:"delivered"`
	Recipient string `json:"recipient,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NotificationResult groups passenger and driver outcomes for a completed payment.
type NotificationResult struct {
	Passenger   ChannelResult `json:"passenger"`
	Driver      ChannelResult `json:"driver"`
	AttemptedAt time.Time     `json:"attempted_at"`
}

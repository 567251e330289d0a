package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type PushRequest struct {
	Amount      decimal.Decimal
	Phone       string
	Reference   string
	Description string
	CallbackURL string
}

type PushResponse struct {
	Accepted          bool
	CheckoutRequestID string
	MerchantRequestID string
	Description       string
}

type StatusResponse struct {
	ResultCode        string
	ResultDescription string
	ReceiptNumber     string
}

// PaymentGateway is the mobile-money provider as seen by the reconciliation engine.
// Errors are domain.GatewayError; throttling sets RateLimited.
type PaymentGateway interface {
	Push(ctx context.Context, req PushRequest) (PushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResponse, error)
}

package handlers

import (
	"context"
	"fmt"
	"net/http"

	"transitpay/internal/domain/models"
	"transitpay/internal/services"
	"transitpay/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentEngine interface {
	Initiate(ctx context.Context, in services.InitiateInput) (models.Payment, error)
	OnCallback(ctx context.Context, cb services.CallbackResult) (services.Outcome, error)
	Status(ctx context.Context, paymentID int64, refresh bool) (services.StatusView, error)
}

type TicketRenderer interface {
	RenderPDF(ctx context.Context, p models.Payment) ([]byte, string, error)
}

type PaymentHandler struct {
	Engine  PaymentEngine
	Tickets TicketRenderer
}

type initiateRequest struct {
	Phone     string          `json:"phone" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	RouteID   int64           `json:"route_id"`
	VehicleID *int64          `json:"vehicle_id"`
}

type initiateResponse struct {
	PaymentID         int64                `json:"payment_id"`
	CheckoutRequestID string               `json:"checkout_request_id"`
	AccountReference  string               `json:"account_reference"`
	Status            models.PaymentStatus `json:"status"`
	VehicleID         *int64               `json:"vehicle_id,omitempty"`
	Message           string               `json:"message"`
}

// paymentView is the public shape of a payment. The status endpoint is
// unauthenticated, so the payer's phone is masked.
type paymentView struct {
	models.Payment
	Phone string `json:"phone"`
}

type statusResponse struct {
	Payment      paymentView                `json:"payment"`
	Notification *models.NotificationResult `json:"notification"`
	Ticket       string                     `json:"ticket,omitempty"`
}

func newStatusResponse(v services.StatusView) statusResponse {
	return statusResponse{
		Payment:      paymentView{Payment: v.Payment, Phone: utils.MaskPhone(v.Payment.Phone)},
		Notification: v.Notification,
		Ticket:       v.Ticket,
	}
}

// Initiate handles POST /api/payments/initiate.
func (h PaymentHandler) Initiate(c *gin.Context) {
	var req initiateRequest
	if !BindJSONOrError(c, &req) {
		return
	}

	p, err := h.Engine.Initiate(c.Request.Context(), services.InitiateInput{
		RouteID:   req.RouteID,
		Amount:    req.Amount,
		Phone:     req.Phone,
		VehicleID: req.VehicleID,
	})
	if err != nil {
		var details any
		if p.ID > 0 {
			details = gin.H{"payment_id": p.ID, "status": p.Status}
		}
		respondDomainError(c, err, details)
		return
	}

	c.JSON(http.StatusCreated, initiateResponse{
		PaymentID:         p.ID,
		CheckoutRequestID: p.CheckoutRequestID,
		AccountReference:  p.AccountReference,
		Status:            p.Status,
		VehicleID:         p.VehicleID,
		Message:           "Check your phone to complete the payment",
	})
}

// Status handles GET /api/payments/:id?refresh=true.
func (h PaymentHandler) Status(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	refresh := c.Query("refresh") == "true" || c.Query("refresh") == "1"

	view, err := h.Engine.Status(c.Request.Context(), id, refresh)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(view))
}

// Ticket handles GET /api/payments/:id/ticket and streams the PDF e-ticket.
func (h PaymentHandler) Ticket(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.Engine.Status(c.Request.Context(), id, false)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	pdf, filename, err := h.Tickets.RenderPDF(c.Request.Context(), view.Payment)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

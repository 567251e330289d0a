package events

import (
	"context"
	"strconv"
	"time"

	"transitpay/internal/domain/models"

	"github.com/shopspring/decimal"
)

const (
	TypePaymentCompleted = "payment.completed"
	TypePaymentFailed    = "payment.failed"
	TypeOccupancyUpdated = "occupancy.updated"
	TypeOccupancyReset   = "occupancy.reset"
)

// Event is the payload observers and downstream consumers receive.
type Event struct {
	Type       string                   `json:"type"`
	PaymentID  int64                    `json:"payment_id,omitempty"`
	RouteID    int64                    `json:"route_id,omitempty"`
	VehicleID  *int64                   `json:"vehicle_id,omitempty"`
	Amount     *decimal.Decimal         `json:"amount,omitempty"`
	Status     string                   `json:"status,omitempty"`
	Reason     string                   `json:"reason,omitempty"`
	Occupancy  *models.VehicleOccupancy `json:"occupancy,omitempty"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// Key groups events of one route on the same partition.
func (e Event) Key() string {
	if e.RouteID > 0 {
		return "route-" + strconv.FormatInt(e.RouteID, 10)
	}
	if e.VehicleID != nil {
		return "vehicle-" + strconv.FormatInt(*e.VehicleID, 10)
	}
	return e.Type
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PaymentEvent builds the terminal-transition event for a payment.
func PaymentEvent(p models.Payment, at time.Time) Event {
	typ := TypePaymentCompleted
	reason := ""
	if p.Status == models.PaymentFailed {
		typ = TypePaymentFailed
		if p.FailureReason != nil {
			reason = *p.FailureReason
		}
	}
	amount := p.Amount
	return Event{
		Type:       typ,
		PaymentID:  p.ID,
		RouteID:    p.RouteID,
		VehicleID:  p.VehicleID,
		Amount:     &amount,
		Status:     string(p.Status),
		Reason:     reason,
		OccurredAt: at,
	}
}

func OccupancyEvent(typ string, o models.VehicleOccupancy, at time.Time) Event {
	vid := o.VehicleID
	return Event{
		Type:       typ,
		RouteID:    o.RouteID,
		VehicleID:  &vid,
		Status:     string(o.Status),
		Occupancy:  &o,
		OccurredAt: at,
	}
}

// Fanout delivers to every publisher and returns the first error.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}


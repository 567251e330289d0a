package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"transitpay/internal/cache"
	"transitpay/internal/config"
	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
	"transitpay/internal/events"
	"transitpay/internal/gateway"
	"transitpay/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval     = 5 * time.Second
	DefaultRateLimitBackoff = 65 * time.Second

	receiptMetadataKey = "MpesaReceiptNumber"
)

type Allocator interface {
	SelectVehicleForRoute(ctx context.Context, routeID int64) (int64, bool, error)
	ApplyCompletedPayment(ctx context.Context, p models.Payment) (AllocationResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, p models.Payment, seated bool) models.NotificationResult
}

// ReconciliationService owns the pending -> completed|failed lifecycle of a fare payment.
// Every terminal transition goes through the store's conditional write, and only
// the caller that wins it runs allocation, notification and broadcast.
type ReconciliationService struct {
	Payments  PaymentStore
	Vehicles  VehicleLookup
	Gateway   gateway.PaymentGateway
	Allocator Allocator
	Notifier  Notifier
	Tickets   TicketService
	Cooldown  cache.CooldownStore
	Events    events.Publisher
	Settings  config.MpesaConfig

	PollInterval     time.Duration
	RateLimitBackoff time.Duration
	Now              func() time.Time
}

type InitiateInput struct {
	RouteID   int64
	Amount    decimal.Decimal
	Phone     string
	VehicleID *int64
}

type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomePending   Outcome = "pending"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// CallbackResult is the provider's asynchronous verdict on a push.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string
	Metadata          map[string]string
}

func (c CallbackResult) ReceiptNumber() string {
	return c.Metadata[receiptMetadataKey]
}

type StatusView struct {
	Payment      models.Payment             `json:"payment"`
	Notification *models.NotificationResult `json:"notification"`
	Ticket       string                     `json:"ticket,omitempty"`
}

// Initiate validates the request, records a pending payment and sends the STK push.
// Gateway failures are persisted on the payment and also returned.
func (s ReconciliationService) Initiate(ctx context.Context, in InitiateInput) (models.Payment, error) {
	reqID := utils.RequestIDFrom(ctx)

	phone, err := s.validate(in)
	if err != nil {
		return models.Payment{}, err
	}
	if err := s.checkRoute(ctx, in.RouteID); err != nil {
		return models.Payment{}, err
	}
	vehicleID, err := s.vehicleHint(ctx, in)
	if err != nil {
		return models.Payment{}, err
	}

	now := s.now()
	p := models.Payment{
		RouteID:          in.RouteID,
		VehicleID:        vehicleID,
		Amount:           in.Amount,
		Phone:            phone,
		Status:           models.PaymentPending,
		AccountReference: newAccountReference(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id, err := s.Payments.Create(ctx, p)
	if err != nil {
		return models.Payment{}, err
	}
	p.ID = id
	utils.LogEvent(reqID, "payments", "initiate", "pending payment recorded",
		zap.Int64("payment_id", id), zap.Int64("route_id", in.RouteID), zap.String("phone", utils.MaskPhone(phone)))

	if err := s.Settings.Validate(); err != nil {
		return s.failInitiate(ctx, p, err)
	}

	resp, err := s.Gateway.Push(ctx, gateway.PushRequest{
		Amount:      in.Amount,
		Phone:       phone,
		Reference:   p.AccountReference,
		Description: fmt.Sprintf("Fare route %d", in.RouteID),
		CallbackURL: s.Settings.CallbackURL,
	})
	if err != nil {
		return s.failInitiate(ctx, p, err)
	}
	if !resp.Accepted || resp.CheckoutRequestID == "" {
		return s.failInitiate(ctx, p, domain.GatewayError{Op: "push", Msg: "push not accepted"})
	}

	if err := s.storeCheckout(ctx, p.ID, resp); err != nil {
		// Without the correlation id neither callback nor poll can reach this row.
		return s.failInitiate(ctx, p, domain.InternalError{
			Msg: fmt.Sprintf("push accepted but correlation id %s not stored: %v", resp.CheckoutRequestID, err),
			Err: err,
		})
	}
	p.CheckoutRequestID = resp.CheckoutRequestID
	p.MerchantRequestID = resp.MerchantRequestID
	utils.LogEvent(reqID, "payments", "initiate", "push accepted",
		zap.Int64("payment_id", p.ID), zap.String("checkout_request_id", p.CheckoutRequestID))
	return p, nil
}

// storeCheckout writes the correlation ids, retrying once.
func (s ReconciliationService) storeCheckout(ctx context.Context, id int64, resp gateway.PushResponse) error {
	err := s.Payments.SetCheckout(ctx, id, resp.CheckoutRequestID, resp.MerchantRequestID, s.now())
	if err == nil {
		return nil
	}
	utils.LogError(utils.RequestIDFrom(ctx), "payments", "set_checkout", err,
		zap.Int64("payment_id", id), zap.String("checkout_request_id", resp.CheckoutRequestID))
	return s.Payments.SetCheckout(ctx, id, resp.CheckoutRequestID, resp.MerchantRequestID, s.now())
}

func (s ReconciliationService) validate(in InitiateInput) (string, error) {
	if in.RouteID <= 0 {
		return "", domain.ValidationError{Field: "route_id", Msg: "must be positive"}
	}
	if !in.Amount.IsPositive() {
		return "", domain.ValidationError{Field: "amount", Msg: "must be greater than zero"}
	}
	if in.VehicleID != nil && *in.VehicleID <= 0 {
		return "", domain.ValidationError{Field: "vehicle_id", Msg: "must be positive"}
	}
	return utils.NormalizePhone(in.Phone)
}

func (s ReconciliationService) checkRoute(ctx context.Context, routeID int64) error {
	if s.Vehicles == nil {
		return nil
	}
	ok, err := s.Vehicles.RouteExists(ctx, routeID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ValidationError{Field: "route_id", Msg: "unknown route"}
	}
	return nil
}

// vehicleHint honours a manual vehicle, otherwise asks the allocator.
// No free vehicle leaves the payment unassigned.
func (s ReconciliationService) vehicleHint(ctx context.Context, in InitiateInput) (*int64, error) {
	if in.VehicleID != nil {
		if s.Vehicles != nil {
			v, err := s.Vehicles.GetVehicle(ctx, *in.VehicleID)
			if domain.IsNotFound(err) {
				return nil, domain.ValidationError{Field: "vehicle_id", Msg: "unknown vehicle"}
			}
			if err != nil {
				return nil, err
			}
			if v.RouteID != in.RouteID {
				return nil, domain.ValidationError{Field: "vehicle_id", Msg: "vehicle does not serve this route"}
			}
		}
		id := *in.VehicleID
		return &id, nil
	}
	if s.Allocator == nil {
		return nil, nil
	}
	id, ok, err := s.Allocator.SelectVehicleForRoute(ctx, in.RouteID)
	if err != nil {
		return nil, err
	}
	if !ok {
		utils.LogEvent(utils.RequestIDFrom(ctx), "payments", "initiate", "all vehicles full, vehicle left unassigned", zap.Int64("route_id", in.RouteID))
		return nil, nil
	}
	return &id, nil
}

func (s ReconciliationService) failInitiate(ctx context.Context, p models.Payment, cause error) (models.Payment, error) {
	reason := cause.Error()
	if _, err := s.Payments.MarkFailed(ctx, p.ID, reason, s.now()); err != nil {
		utils.LogError(utils.RequestIDFrom(ctx), "payments", "mark_failed", err, zap.Int64("payment_id", p.ID))
	}
	p.Status = models.PaymentFailed
	p.FailureReason = &reason
	utils.LogError(utils.RequestIDFrom(ctx), "payments", "initiate", cause, zap.Int64("payment_id", p.ID))
	s.publish(ctx, events.PaymentEvent(p, s.now()))
	return p, cause
}

// OnCallback applies the provider's webhook verdict. Unknown or already
// reconciled correlation ids are ignored.
func (s ReconciliationService) OnCallback(ctx context.Context, cb CallbackResult) (Outcome, error) {
	reqID := utils.RequestIDFrom(ctx)
	checkoutID := strings.TrimSpace(cb.CheckoutRequestID)
	if checkoutID == "" {
		utils.LogEvent(reqID, "payments", "callback", "callback without checkout id ignored")
		return OutcomeIgnored, nil
	}

	p, ok, err := s.Payments.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !ok {
		utils.LogEvent(reqID, "payments", "callback", "unknown checkout id", zap.String("checkout_request_id", checkoutID))
		return OutcomeIgnored, nil
	}
	if p.Status.Terminal() {
		utils.LogEvent(reqID, "payments", "callback", "payment already reconciled",
			zap.Int64("payment_id", p.ID), zap.String("status", string(p.Status)))
		return OutcomeIgnored, nil
	}

	_, outcome, err := s.settle(ctx, p, cb.ResultCode, cb.ResultDesc, cb.ReceiptNumber(), "callback")
	return outcome, err
}

// PollAndReconcile asks the provider for a pending payment's result, at most
// once per cooldown window per correlation id. Gateway errors leave it pending.
func (s ReconciliationService) PollAndReconcile(ctx context.Context, p models.Payment) (models.Payment, error) {
	if p.Status.Terminal() || p.CheckoutRequestID == "" {
		return p, nil
	}
	reqID := utils.RequestIDFrom(ctx)
	key := cooldownKey(p.CheckoutRequestID)
	now := s.now()

	if s.Cooldown != nil && !s.Cooldown.Allow(key, now, s.pollInterval()) {
		return p, nil
	}

	res, err := s.Gateway.QueryStatus(ctx, p.CheckoutRequestID)
	if err != nil {
		if domain.IsRateLimited(err) {
			if s.Cooldown != nil {
				s.Cooldown.Extend(key, now.Add(s.rateLimitBackoff()))
			}
			utils.LogEvent(reqID, "payments", "poll", "gateway rate limited, backing off",
				zap.Int64("payment_id", p.ID), zap.Duration("backoff", s.rateLimitBackoff()))
			return p, nil
		}
		utils.LogError(reqID, "payments", "poll", err, zap.Int64("payment_id", p.ID))
		return p, nil
	}

	updated, _, err := s.settle(ctx, p, res.ResultCode, res.ResultDescription, res.ReceiptNumber, "poll")
	return updated, err
}

// Status returns the payment, refreshing it from the provider when asked.
func (s ReconciliationService) Status(ctx context.Context, paymentID int64, refresh bool) (StatusView, error) {
	if paymentID <= 0 {
		return StatusView{}, domain.ValidationError{Field: "id", Msg: "must be positive"}
	}
	p, err := s.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return StatusView{}, err
	}
	if refresh && p.Status == models.PaymentPending {
		p, err = s.PollAndReconcile(ctx, p)
		if err != nil {
			return StatusView{}, err
		}
	}
	return StatusView{
		Payment:      p,
		Notification: p.Notification,
		Ticket:       s.Tickets.Reference(p),
	}, nil
}

// ReconcileStale polls pushed payments that stayed pending longer than olderThan.
func (s ReconciliationService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	list, err := s.Payments.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range list {
		if ctx.Err() != nil {
			break
		}
		updated, err := s.PollAndReconcile(ctx, p)
		if err != nil {
			utils.LogError(utils.RequestIDFrom(ctx), "payments", "sweep", err, zap.Int64("payment_id", p.ID))
			continue
		}
		if updated.Status.Terminal() {
			settled++
		}
	}
	return settled, nil
}

// settle performs the conditional terminal write for a classified result.
func (s ReconciliationService) settle(ctx context.Context, p models.Payment, code, desc, receipt, source string) (models.Payment, Outcome, error) {
	reqID := utils.RequestIDFrom(ctx)
	now := s.now()

	switch gateway.Classify(code) {
	case gateway.ResultSuccess:
		won, err := s.Payments.MarkCompleted(ctx, p.ID, receipt, now)
		if err != nil {
			return p, OutcomeIgnored, err
		}
		if !won {
			utils.LogEvent(reqID, "payments", source, "terminal write lost, already reconciled", zap.Int64("payment_id", p.ID))
			return s.reload(ctx, p), OutcomeIgnored, nil
		}
		p.Status = models.PaymentCompleted
		p.ReceiptNumber = receipt
		p.UpdatedAt = now
		utils.LogEvent(reqID, "payments", source, "payment completed", zap.Int64("payment_id", p.ID), zap.String("receipt", receipt))
		return s.afterCompleted(context.WithoutCancel(ctx), p), OutcomeCompleted, nil

	case gateway.ResultFailure:
		reason := gateway.DescribeFailure(code, desc)
		won, err := s.Payments.MarkFailed(ctx, p.ID, reason, now)
		if err != nil {
			return p, OutcomeIgnored, err
		}
		if !won {
			utils.LogEvent(reqID, "payments", source, "terminal write lost, already reconciled", zap.Int64("payment_id", p.ID))
			return s.reload(ctx, p), OutcomeIgnored, nil
		}
		p.Status = models.PaymentFailed
		p.FailureReason = &reason
		p.UpdatedAt = now
		utils.LogEvent(reqID, "payments", source, "payment failed", zap.Int64("payment_id", p.ID), zap.String("result_code", code))
		s.publish(ctx, events.PaymentEvent(p, now))
		return p, OutcomeFailed, nil

	default:
		utils.LogEvent(reqID, "payments", source, "inconclusive result, still pending",
			zap.Int64("payment_id", p.ID), zap.String("result_code", code), zap.String("result_desc", desc))
		return p, OutcomePending, nil
	}
}

// afterCompleted runs the side effects owned by the winner of the terminal write.
// Their failures are logged and never undo the completion.
func (s ReconciliationService) afterCompleted(ctx context.Context, p models.Payment) models.Payment {
	reqID := utils.RequestIDFrom(ctx)

	seated := false
	if s.Allocator != nil {
		alloc, err := s.Allocator.ApplyCompletedPayment(ctx, p)
		if err != nil {
			utils.LogError(reqID, "payments", "allocate", err, zap.Int64("payment_id", p.ID))
		}
		if alloc.VehicleID != nil {
			p.VehicleID = alloc.VehicleID
		}
		seated = alloc.Applied
	}

	if s.Notifier != nil {
		res := s.Notifier.Notify(ctx, p, seated)
		p.Notification = &res
		if err := s.Payments.SaveNotification(ctx, p.ID, res); err != nil {
			utils.LogError(reqID, "payments", "save_notification", err, zap.Int64("payment_id", p.ID))
		}
	}

	s.publish(ctx, events.PaymentEvent(p, s.now()))
	return p
}

func (s ReconciliationService) reload(ctx context.Context, p models.Payment) models.Payment {
	current, err := s.Payments.GetByID(ctx, p.ID)
	if err != nil {
		return p
	}
	return current
}

func (s ReconciliationService) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		utils.LogError(utils.RequestIDFrom(ctx), "payments", "publish", err, zap.String("type", e.Type))
	}
}

func (s ReconciliationService) now() time.Time { return nowOr(s.Now) }

func (s ReconciliationService) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return DefaultPollInterval
}

func (s ReconciliationService) rateLimitBackoff() time.Duration {
	if s.RateLimitBackoff > 0 {
		return s.RateLimitBackoff
	}
	return DefaultRateLimitBackoff
}

func cooldownKey(checkoutID string) string { return "stk_query:" + checkoutID }

// newAccountReference fits the provider's 12 character AccountReference limit.
func newAccountReference() string {
	return "FARE" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

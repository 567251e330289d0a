package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
	"transitpay/internal/utils"

	"go.uber.org/zap"
)

const (
	ChannelPassenger = "passenger"
	ChannelDriver    = "driver"
)

type Message struct {
	Channel   string `json:"channel"`
	To        string `json:"to"`
	Body      string `json:"message"`
	PaymentID int64  `json:"payment_id"`
}

// NotificationSender delivers one message over WhatsApp, SMS or similar.
type NotificationSender interface {
	Send(ctx context.Context, msg Message) error
}

// NotificationService sends the passenger and driver confirmations for a completed payment.
type NotificationService struct {
	Sender   NotificationSender
	Vehicles VehicleLookup
	Tickets  TicketService
	Timeout  time.Duration
	Now      func() time.Time
}

var errNoDriverContact = errors.New("vehicle has no driver with a reachable phone")

// Notify runs both sends concurrently and returns their outcomes. It never fails.
// seated reports whether the payment took a seat; a full vehicle changes both messages.
func (s NotificationService) Notify(ctx context.Context, p models.Payment, seated bool) models.NotificationResult {
	res := models.NotificationResult{AttemptedAt: nowOr(s.Now)}
	ticket := s.Tickets.Reference(p)

	body := fmt.Sprintf("Payment of %s received. Receipt %s. Ticket %s.",
		utils.FormatKES(p.Amount), orDash(p.ReceiptNumber), ticket)
	if !seated {
		body += " No seat could be reserved, the vehicle is full. Show this receipt to the conductor."
	}
	passenger := Message{
		Channel:   ChannelPassenger,
		To:        p.Phone,
		PaymentID: p.ID,
		Body:      body,
	}

	driver, driverErr := s.driverMessage(ctx, p, ticket, seated)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res.Passenger = s.send(ctx, passenger)
	}()
	if driverErr == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Driver = s.send(ctx, driver)
		}()
	} else {
		res.Driver = models.ChannelResult{Error: driverErr.Error()}
	}
	wg.Wait()

	utils.LogEvent(utils.RequestIDFrom(ctx), "notification", "notify", "confirmations attempted",
		zap.Int64("payment_id", p.ID),
		zap.Bool("passenger_delivered", res.Passenger.Delivered),
		zap.Bool("driver_attempted", res.Driver.Attempted),
		zap.Bool("driver_delivered", res.Driver.Delivered),
	)
	return res
}

func (s NotificationService) send(ctx context.Context, msg Message) models.ChannelResult {
	out := models.ChannelResult{Attempted: true, Recipient: utils.MaskPhone(msg.To)}
	if s.Sender == nil {
		out.Error = domain.NotificationError{Channel: msg.Channel, Err: errors.New("no sender configured")}.Error()
		return out
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Sender.Send(sendCtx, msg); err != nil {
		nerr := domain.NotificationError{Channel: msg.Channel, Err: err}
		utils.LogError(utils.RequestIDFrom(ctx), "notification", "send_"+msg.Channel, nerr, zap.Int64("payment_id", msg.PaymentID))
		out.Error = nerr.Error()
		return out
	}
	out.Delivered = true
	return out
}

func (s NotificationService) driverMessage(ctx context.Context, p models.Payment, ticket string, seated bool) (Message, error) {
	if p.VehicleID == nil || s.Vehicles == nil {
		return Message{}, errNoDriverContact
	}
	v, err := s.Vehicles.GetVehicle(ctx, *p.VehicleID)
	if err != nil {
		return Message{}, err
	}
	if v.DriverID == nil {
		return Message{}, errNoDriverContact
	}
	d, ok, err := s.Vehicles.GetDriver(ctx, *v.DriverID)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, errNoDriverContact
	}
	phone, err := utils.NormalizePhone(d.Phone)
	if err != nil {
		return Message{}, errNoDriverContact
	}
	format := "New passenger for %s: %s paid %s. Ticket %s."
	if !seated {
		format = "Vehicle %s is full, passenger not seated: %s paid %s. Ticket %s."
	}
	return Message{
		Channel:   ChannelDriver,
		To:        phone,
		PaymentID: p.ID,
		Body:      fmt.Sprintf(format, orDash(v.PlateNumber), utils.MaskPhone(p.Phone), utils.FormatKES(p.Amount), ticket),
	}, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

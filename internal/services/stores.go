package services

import (
	"context"
	"time"

	"transitpay/internal/domain/models"
)

// PaymentStore is implemented by repositories.PaymentRepository.
type PaymentStore interface {
	Create(ctx context.Context, p models.Payment) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Payment, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (models.Payment, bool, error)
	SetCheckout(ctx context.Context, id int64, checkoutID, merchantID string, now time.Time) error
	MarkCompleted(ctx context.Context, id int64, receipt string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string, now time.Time) (bool, error)
	AssignVehicle(ctx context.Context, id, vehicleID int64, now time.Time) (bool, error)
	SaveNotification(ctx context.Context, id int64, n models.NotificationResult) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

// OccupancyStore is implemented by repositories.OccupancyRepository.
type OccupancyStore interface {
	EnsureRow(ctx context.Context, v models.Vehicle, now time.Time) error
	IncrementIfBelow(ctx context.Context, vehicleID int64, capacity int, now time.Time) (bool, error)
	GetByVehicle(ctx context.Context, vehicleID int64) (models.VehicleOccupancy, error)
	ListByRoute(ctx context.Context, routeID int64) ([]models.VehicleOccupancy, error)
	Reset(ctx context.Context, vehicleID int64, now time.Time) error
}

type VehicleLookup interface {
	GetVehicle(ctx context.Context, id int64) (models.Vehicle, error)
	GetDriver(ctx context.Context, id int64) (models.Driver, bool, error)
	RouteExists(ctx context.Context, routeID int64) (bool, error)
}

type TripLookup interface {
	OpenTripForVehicle(ctx context.Context, vehicleID int64) (models.Trip, bool, error)
	IncrementTrip(ctx context.Context, tripID int64, now time.Time) (bool, error)
}

// VehicleAssigner is the slice of PaymentStore the allocator needs.
type VehicleAssigner interface {
	GetByID(ctx context.Context, id int64) (models.Payment, error)
	AssignVehicle(ctx context.Context, id, vehicleID int64, now time.Time) (bool, error)
}

func nowOr(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}

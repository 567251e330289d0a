package services

import (
	"context"
	"fmt"
	"time"

	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
	"transitpay/internal/events"
	"transitpay/internal/utils"

	"go.uber.org/zap"
)

type OccupancyService struct {
	Occupancy OccupancyStore
	Vehicles  VehicleLookup
	Trips     TripLookup
	Payments  VehicleAssigner
	Events    events.Publisher
	Now       func() time.Time
}

// AllocationResult describes what ApplyCompletedPayment did. Applied is false
// when no vehicle had room; that is not an error.
type AllocationResult struct {
	VehicleID *int64                   `json:"vehicle_id,omitempty"`
	Applied   bool                     `json:"applied"`
	Reason    string                   `json:"reason,omitempty"`
	Occupancy *models.VehicleOccupancy `json:"occupancy,omitempty"`
}

// SelectVehicleForRoute picks the lowest-id vehicle on the route with a free seat.
// ok=false means every vehicle is full and the caller should ask for a manual vehicle.
func (s OccupancyService) SelectVehicleForRoute(ctx context.Context, routeID int64) (int64, bool, error) {
	list, err := s.Occupancy.ListByRoute(ctx, routeID)
	if err != nil {
		return 0, false, err
	}
	for _, o := range list {
		if o.HasRoom() {
			return o.VehicleID, true, nil
		}
	}
	return 0, false, nil
}

func (s OccupancyService) ApplyCompletedPayment(ctx context.Context, p models.Payment) (AllocationResult, error) {
	reqID := utils.RequestIDFrom(ctx)

	vehicleID, ok, err := s.resolveVehicle(ctx, p)
	if err != nil {
		return AllocationResult{}, err
	}
	if !ok {
		utils.LogEvent(reqID, "occupancy", "allocate", "no vehicle with free seats", zap.Int64("payment_id", p.ID), zap.Int64("route_id", p.RouteID))
		return AllocationResult{Reason: "no vehicle with free seats on route"}, nil
	}
	res := AllocationResult{VehicleID: &vehicleID}

	v, err := s.Vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return res, err
	}
	now := nowOr(s.Now)
	if err := s.Occupancy.EnsureRow(ctx, v, now); err != nil {
		return res, err
	}

	applied, err := s.Occupancy.IncrementIfBelow(ctx, v.ID, v.Capacity, now)
	if err != nil {
		return res, err
	}
	res.Applied = applied
	if !applied {
		res.Reason = "vehicle at capacity"
		utils.LogEvent(reqID, "occupancy", "allocate", "vehicle already full", zap.Int64("payment_id", p.ID), zap.Int64("vehicle_id", v.ID))
	} else {
		s.mirrorTrip(ctx, v.ID)
	}

	if snap, err := s.Occupancy.GetByVehicle(ctx, v.ID); err == nil {
		res.Occupancy = &snap
		if applied {
			s.publish(ctx, events.OccupancyEvent(events.TypeOccupancyUpdated, snap, now))
		}
	}
	return res, nil
}

// resolveVehicle returns the payment's vehicle, assigning one lazily when unset.
// If another writer assigned first, its choice wins.
func (s OccupancyService) resolveVehicle(ctx context.Context, p models.Payment) (int64, bool, error) {
	if p.VehicleID != nil {
		return *p.VehicleID, true, nil
	}
	vehicleID, ok, err := s.SelectVehicleForRoute(ctx, p.RouteID)
	if err != nil || !ok {
		return 0, false, err
	}
	won, err := s.Payments.AssignVehicle(ctx, p.ID, vehicleID, nowOr(s.Now))
	if err != nil {
		return 0, false, err
	}
	if won {
		return vehicleID, true, nil
	}
	current, err := s.Payments.GetByID(ctx, p.ID)
	if err != nil {
		return 0, false, err
	}
	if current.VehicleID == nil {
		return 0, false, domain.InternalError{Msg: fmt.Sprintf("vehicle assignment for payment %d lost", p.ID)}
	}
	return *current.VehicleID, true, nil
}

func (s OccupancyService) mirrorTrip(ctx context.Context, vehicleID int64) {
	if s.Trips == nil {
		return
	}
	trip, ok, err := s.Trips.OpenTripForVehicle(ctx, vehicleID)
	if err != nil {
		utils.LogError(utils.RequestIDFrom(ctx), "occupancy", "trip_lookup", err, zap.Int64("vehicle_id", vehicleID))
		return
	}
	if !ok {
		return
	}
	if _, err := s.Trips.IncrementTrip(ctx, trip.ID, nowOr(s.Now)); err != nil {
		utils.LogError(utils.RequestIDFrom(ctx), "occupancy", "trip_increment", err, zap.Int64("trip_id", trip.ID))
	}
}

func (s OccupancyService) Snapshot(ctx context.Context, vehicleID int64) (models.VehicleOccupancy, error) {
	if vehicleID <= 0 {
		return models.VehicleOccupancy{}, domain.ValidationError{Field: "vehicle_id", Msg: "must be positive"}
	}
	return s.Occupancy.GetByVehicle(ctx, vehicleID)
}

func (s OccupancyService) RouteSnapshot(ctx context.Context, routeID int64) ([]models.VehicleOccupancy, error) {
	if routeID <= 0 {
		return nil, domain.ValidationError{Field: "route_id", Msg: "must be positive"}
	}
	return s.Occupancy.ListByRoute(ctx, routeID)
}

// Reset zeroes a vehicle's count at the end of a run.
func (s OccupancyService) Reset(ctx context.Context, vehicleID int64) (models.VehicleOccupancy, error) {
	v, err := s.Vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return models.VehicleOccupancy{}, err
	}
	now := nowOr(s.Now)
	if err := s.Occupancy.EnsureRow(ctx, v, now); err != nil {
		return models.VehicleOccupancy{}, err
	}
	if err := s.Occupancy.Reset(ctx, v.ID, now); err != nil {
		return models.VehicleOccupancy{}, err
	}
	snap, err := s.Occupancy.GetByVehicle(ctx, v.ID)
	if err != nil {
		return models.VehicleOccupancy{}, err
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "occupancy", "reset", "occupancy reset", zap.Int64("vehicle_id", v.ID))
	s.publish(ctx, events.OccupancyEvent(events.TypeOccupancyReset, snap, now))
	return snap, nil
}

func (s OccupancyService) publish(ctx context.Context, e events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		utils.LogError(utils.RequestIDFrom(ctx), "occupancy", "publish", err, zap.String("type", e.Type))
	}
}

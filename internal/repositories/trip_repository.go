package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "transitpay/internal/db"
	"transitpay/internal/domain/models"
)

type TripRepository struct {
	DB *sql.DB
}

// OpenTripForVehicle returns the earliest trip still boarding passengers, if any.
func (r TripRepository) OpenTripForVehicle(ctx context.Context, vehicleID int64) (models.Trip, bool, error) {
	var (
		t      models.Trip
		status string
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, vehicle_id, capacity, current_occupancy, status, updated_at
		FROM trips
		WHERE vehicle_id=? AND status IN ('scheduled','boarding')
		ORDER BY id ASC
		LIMIT 1`, vehicleID).Scan(
		&t.ID, &t.VehicleID, &t.Capacity, &t.CurrentOccupancy, &status, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, false, nil
	}
	if err != nil {
		return models.Trip{}, false, fmt.Errorf("open trip for vehicle %d: %w", vehicleID, err)
	}
	t.Status = models.TripStatus(status)
	return t, true, nil
}

// IncrementTrip mirrors one boarding onto the trip, moving it to boarding or full.
func (r TripRepository) IncrementTrip(ctx context.Context, tripID int64, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE trips
		SET status = IF(current_occupancy + 1 >= capacity, 'full', 'boarding'),
		    current_occupancy = current_occupancy + 1,
		    updated_at = ?
		WHERE id=? AND status IN ('scheduled','boarding') AND current_occupancy < capacity`,
		now, tripID,
	)
	if err != nil {
		return false, fmt.Errorf("increment trip: %w", err)
	}
	return intdb.Affected(res)
}

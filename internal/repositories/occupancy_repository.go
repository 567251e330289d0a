package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "transitpay/internal/db"
	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
)

type OccupancyRepository struct {
	DB *sql.DB
}

// EnsureRow lazily creates the occupancy row for a vehicle; existing rows are untouched.
func (r OccupancyRepository) EnsureRow(ctx context.Context, v models.Vehicle, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO vehicle_occupancy (vehicle_id, driver_id, current_occupancy, occupancy_status, updated_at)
		VALUES (?,?,0,?,?)
		ON DUPLICATE KEY UPDATE vehicle_id=vehicle_id`,
		v.ID,
		intdb.Int64OrNil(v.DriverID),
		string(models.DeriveOccupancyStatus(0, v.Capacity)),
		now,
	)
	if err != nil {
		return fmt.Errorf("ensure occupancy row: %w", err)
	}
	return nil
}

// IncrementIfBelow adds one passenger only while the count is under capacity.
// occupancy_status is assigned first because MySQL evaluates SET left to right.
func (r OccupancyRepository) IncrementIfBelow(ctx context.Context, vehicleID int64, capacity int, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE vehicle_occupancy
		SET occupancy_status = IF(current_occupancy + 1 >= ?, 'full', 'available'),
		    current_occupancy = current_occupancy + 1,
		    updated_at = ?
		WHERE vehicle_id=? AND current_occupancy < ?`,
		capacity, now, vehicleID, capacity,
	)
	if err != nil {
		return false, fmt.Errorf("increment occupancy: %w", err)
	}
	return intdb.Affected(res)
}

// GetByVehicle joins the vehicle with its occupancy row; a missing row reads as empty.
func (r OccupancyRepository) GetByVehicle(ctx context.Context, vehicleID int64) (models.VehicleOccupancy, error) {
	o, err := scanOccupancy(r.DB.QueryRowContext(ctx, occupancySelect+` WHERE v.id=? LIMIT 1`, vehicleID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.VehicleOccupancy{}, domain.NotFoundError{Resource: "vehicle", Err: err}
	}
	if err != nil {
		return models.VehicleOccupancy{}, fmt.Errorf("get occupancy for vehicle %d: %w", vehicleID, err)
	}
	return o, nil
}

// ListByRoute returns every vehicle on the route ordered by id.
func (r OccupancyRepository) ListByRoute(ctx context.Context, routeID int64) ([]models.VehicleOccupancy, error) {
	rows, err := r.DB.QueryContext(ctx, occupancySelect+` WHERE v.route_id=? ORDER BY v.id ASC`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list occupancy for route %d: %w", routeID, err)
	}
	defer rows.Close()

	out := []models.VehicleOccupancy{}
	for rows.Next() {
		o, err := scanOccupancy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r OccupancyRepository) Reset(ctx context.Context, vehicleID int64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE vehicle_occupancy
		SET current_occupancy=0, occupancy_status='available', updated_at=?
		WHERE vehicle_id=?`, now, vehicleID)
	if err != nil {
		return fmt.Errorf("reset occupancy: %w", err)
	}
	return nil
}

const occupancySelect = `
		SELECT v.id,
		       v.route_id,
		       COALESCE(v.plate_number,''),
		       COALESCE(o.driver_id, v.driver_id),
		       v.capacity,
		       COALESCE(o.current_occupancy,0),
		       o.updated_at
		FROM vehicles v
		LEFT JOIN vehicle_occupancy o ON o.vehicle_id = v.id`

func scanOccupancy(row rowScanner) (models.VehicleOccupancy, error) {
	var (
		o         models.VehicleOccupancy
		driverID  sql.NullInt64
		updatedAt sql.NullTime
	)
	if err := row.Scan(
		&o.VehicleID,
		&o.RouteID,
		&o.PlateNumber,
		&driverID,
		&o.Capacity,
		&o.CurrentOccupancy,
		&updatedAt,
	); err != nil {
		return models.VehicleOccupancy{}, err
	}
	o.DriverID = intdb.NullInt64Ptr(driverID)
	o.UpdatedAt = intdb.NullTimePtr(updatedAt)
	o.Status = models.DeriveOccupancyStatus(o.CurrentOccupancy, o.Capacity)
	return o, nil
}

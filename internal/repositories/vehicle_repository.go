package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	intdb "transitpay/internal/db"
	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
)

// VehicleRepository is a read-only view over fleet tables owned by the admin service.
type VehicleRepository struct {
	DB *sql.DB
}

func (r VehicleRepository) GetVehicle(ctx context.Context, id int64) (models.Vehicle, error) {
	var (
		v        models.Vehicle
		driverID sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, route_id, COALESCE(plate_number,''), capacity, driver_id
		FROM vehicles WHERE id=? LIMIT 1`, id).Scan(
		&v.ID, &v.RouteID, &v.PlateNumber, &v.Capacity, &driverID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle", Err: err}
	}
	if err != nil {
		return models.Vehicle{}, fmt.Errorf("get vehicle %d: %w", id, err)
	}
	v.DriverID = intdb.NullInt64Ptr(driverID)
	return v, nil
}

func (r VehicleRepository) GetDriver(ctx context.Context, id int64) (models.Driver, bool, error) {
	var d models.Driver
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, COALESCE(name,''), COALESCE(phone,'')
		FROM drivers WHERE id=? LIMIT 1`, id).Scan(&d.ID, &d.Name, &d.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Driver{}, false, nil
	}
	if err != nil {
		return models.Driver{}, false, fmt.Errorf("get driver %d: %w", id, err)
	}
	return d, true, nil
}

func (r VehicleRepository) RouteExists(ctx context.Context, routeID int64) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE id=? LIMIT 1`, routeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check route %d: %w", routeID, err)
	}
	return true, nil
}

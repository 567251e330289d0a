package repositories

import (
	"context"
	"testing"
	"time"

	"transitpay/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOccupancyRepositoryIncrementBoundedByCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO vehicle_occupancy.*ON DUPLICATE KEY UPDATE").
		WithArgs(int64(5), nil, "available", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE vehicle_occupancy.*WHERE vehicle_id=\\? AND current_occupancy < \\?").
		WithArgs(14, now, int64(5), 14).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE vehicle_occupancy.*WHERE vehicle_id=\\? AND current_occupancy < \\?").
		WithArgs(14, now, int64(5), 14).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := OccupancyRepository{DB: db}
	if err := repo.EnsureRow(context.Background(), models.Vehicle{ID: 5, Capacity: 14}, now); err != nil {
		t.Fatalf("ensure row: %v", err)
	}
	ok, err := repo.IncrementIfBelow(context.Background(), 5, 14, now)
	if err != nil || !ok {
		t.Fatalf("increment should apply, ok=%v err=%v", ok, err)
	}
	ok, err = repo.IncrementIfBelow(context.Background(), 5, 14, now)
	if err != nil || ok {
		t.Fatalf("increment on full vehicle should be a no-op, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOccupancyRepositoryListByRouteDerivesStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "route_id", "plate_number", "driver_id", "capacity", "current_occupancy", "updated_at"}
	mock.ExpectQuery("FROM vehicles v\\s+LEFT JOIN vehicle_occupancy o.*WHERE v.route_id=\\? ORDER BY v.id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 3, "KDA 001A", 9, 14, 14, now).
			AddRow(2, 3, "KDA 002B", nil, 14, 0, nil))

	list, err := OccupancyRepository{DB: db}.ListByRoute(context.Background(), 3)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Status != models.OccupancyFull || list[0].HasRoom() {
		t.Fatalf("vehicle 1 should be full: %+v", list[0])
	}
	if list[1].Status != models.OccupancyAvailable || list[1].UpdatedAt != nil || list[1].DriverID != nil {
		t.Fatalf("vehicle 2 should be empty and available: %+v", list[1])
	}
}

func TestTripRepositoryOpenTripMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM trips").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vehicle_id", "capacity", "current_occupancy", "status", "updated_at"}))

	_, ok, err := TripRepository{DB: db}.OpenTripForVehicle(context.Background(), 5)
	if err != nil || ok {
		t.Fatalf("expected no open trip, ok=%v err=%v", ok, err)
	}
}

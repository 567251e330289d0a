package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Execer interface {
	QueryRower
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func HasTable(ctx context.Context, q QueryRower, table string) (bool, error) {
	var name sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		LIMIT 1`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return name.Valid && name.String != "", nil
}

func HasColumn(ctx context.Context, q QueryRower, table, column string) (bool, error) {
	var name sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name = ?
		  AND column_name = ?
		LIMIT 1`, table, column).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup column %s.%s: %w", table, column, err)
	}
	return name.Valid && name.String != "", nil
}

// Tables owned by this service. vehicles, drivers, routes and trips belong to
// the fleet admin and are only read (trips also receives occupancy mirrors).
var ownedTables = []struct {
	name string
	ddl  string
}{
	{
		name: "payments",
		ddl: `
		CREATE TABLE payments (
			id                  BIGINT AUTO_INCREMENT PRIMARY KEY,
			route_id            BIGINT NOT NULL,
			vehicle_id          BIGINT NULL,
			amount              DECIMAL(12,2) NOT NULL,
			phone               VARCHAR(20) NOT NULL,
			status              VARCHAR(16) NOT NULL DEFAULT 'pending',
			account_reference   VARCHAR(32) NULL,
			checkout_request_id VARCHAR(64) NULL,
			merchant_request_id VARCHAR(64) NULL,
			receipt_number      VARCHAR(32) NULL,
			failure_reason      VARCHAR(255) NULL,
			notification_status JSON NULL,
			created_at          DATETIME NOT NULL,
			updated_at          DATETIME NOT NULL,
			UNIQUE KEY uq_payments_checkout (checkout_request_id),
			KEY idx_payments_status_created (status, created_at)
		)`,
	},
	{
		name: "vehicle_occupancy",
		ddl: `
		CREATE TABLE vehicle_occupancy (
			vehicle_id        BIGINT PRIMARY KEY,
			driver_id         BIGINT NULL,
			current_occupancy INT NOT NULL DEFAULT 0,
			occupancy_status  VARCHAR(16) NOT NULL DEFAULT 'available',
			updated_at        DATETIME NOT NULL
		)`,
	},
}

// Columns added after the first release; older databases get them on boot.
var addedColumns = []struct {
	table, column, ddl string
}{
	{"payments", "notification_status", `ALTER TABLE payments ADD COLUMN notification_status JSON NULL`},
	{"payments", "merchant_request_id", `ALTER TABLE payments ADD COLUMN merchant_request_id VARCHAR(64) NULL`},
}

// EnsureSchema creates missing owned tables and backfills late columns.
// It never drops or alters existing columns.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, t := range ownedTables {
		ok, err := HasTable(ctx, db, t.name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}

	for _, c := range addedColumns {
		ok, err := HasColumn(ctx, db, c.table, c.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	intdb "transitpay/internal/db"
	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
)

type PaymentRepository struct {
	DB *sql.DB
}

const paymentColumns = `
		SELECT id,
		       route_id,
		       vehicle_id,
		       amount,
		       phone,
		       status,
		       COALESCE(account_reference,''),
		       COALESCE(checkout_request_id,''),
		       COALESCE(merchant_request_id,''),
		       COALESCE(receipt_number,''),
		       failure_reason,
		       notification_status,
		       created_at,
		       updated_at
		FROM payments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (models.Payment, error) {
	var (
		p         models.Payment
		vehicleID sql.NullInt64
		reason    sql.NullString
		notify    sql.NullString
		status    string
	)
	if err := row.Scan(
		&p.ID,
		&p.RouteID,
		&vehicleID,
		&p.Amount,
		&p.Phone,
		&status,
		&p.AccountReference,
		&p.CheckoutRequestID,
		&p.MerchantRequestID,
		&p.ReceiptNumber,
		&reason,
		&notify,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return models.Payment{}, err
	}
	p.Status = models.PaymentStatus(status)
	p.VehicleID = intdb.NullInt64Ptr(vehicleID)
	p.FailureReason = intdb.NullStringPtr(reason)
	if notify.Valid && notify.String != "" {
		var n models.NotificationResult
		if err := json.Unmarshal([]byte(notify.String), &n); err == nil {
			p.Notification = &n
		}
	}
	return p, nil
}

// Create inserts a pending payment and returns its id.
func (r PaymentRepository) Create(ctx context.Context, p models.Payment) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO payments (route_id, vehicle_id, amount, phone, status, account_reference, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		p.RouteID,
		intdb.Int64OrNil(p.VehicleID),
		p.Amount.StringFixed(2),
		p.Phone,
		string(models.PaymentPending),
		intdb.NullIfEmpty(p.AccountReference),
		p.CreatedAt,
		p.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return res.LastInsertId()
}

func (r PaymentRepository) GetByID(ctx context.Context, id int64) (models.Payment, error) {
	p, err := scanPayment(r.DB.QueryRowContext(ctx, paymentColumns+` WHERE id=? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, domain.NotFoundError{Resource: "payment", Err: err}
	}
	if err != nil {
		return models.Payment{}, fmt.Errorf("get payment %d: %w", id, err)
	}
	return p, nil
}

// GetByCheckoutID looks a payment up by the gateway correlation id.
// A missing row is reported through ok=false, not an error.
func (r PaymentRepository) GetByCheckoutID(ctx context.Context, checkoutID string) (models.Payment, bool, error) {
	p, err := scanPayment(r.DB.QueryRowContext(ctx, paymentColumns+` WHERE checkout_request_id=? LIMIT 1`, checkoutID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, false, nil
	}
	if err != nil {
		return models.Payment{}, false, fmt.Errorf("get payment by checkout id: %w", err)
	}
	return p, true, nil
}

// SetCheckout stores the correlation ids of an accepted push. It fails when the
// payment is missing or already terminal so the caller can record why.
func (r PaymentRepository) SetCheckout(ctx context.Context, id int64, checkoutID, merchantID string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET checkout_request_id=?, merchant_request_id=?, updated_at=?
		WHERE id=? AND status='pending'`,
		checkoutID, intdb.NullIfEmpty(merchantID), now, id,
	)
	if err != nil {
		return fmt.Errorf("set checkout ids: %w", err)
	}
	ok, err := intdb.Affected(res)
	if err != nil {
		return fmt.Errorf("set checkout ids: %w", err)
	}
	if !ok {
		return fmt.Errorf("set checkout ids: payment %d is not pending", id)
	}
	return nil
}

// MarkCompleted is the conditional terminal write. It reports false when
// another writer already moved the payment out of pending.
func (r PaymentRepository) MarkCompleted(ctx context.Context, id int64, receipt string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET status='completed', receipt_number=?, updated_at=?
		WHERE id=? AND status='pending'`,
		intdb.NullIfEmpty(receipt), now, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment completed: %w", err)
	}
	return intdb.Affected(res)
}

func (r PaymentRepository) MarkFailed(ctx context.Context, id int64, reason string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments
		SET status='failed', failure_reason=?, updated_at=?
		WHERE id=? AND status='pending'`,
		reason, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	return intdb.Affected(res)
}

// AssignVehicle sets vehicle_id once; it never overwrites an existing assignment.
func (r PaymentRepository) AssignVehicle(ctx context.Context, id, vehicleID int64, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE payments SET vehicle_id=?, updated_at=?
		WHERE id=? AND vehicle_id IS NULL`,
		vehicleID, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("assign vehicle: %w", err)
	}
	return intdb.Affected(res)
}

func (r PaymentRepository) SaveNotification(ctx context.Context, id int64, n models.NotificationResult) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, `UPDATE payments SET notification_status=? WHERE id=?`, string(raw), id); err != nil {
		return fmt.Errorf("save notification result: %w", err)
	}
	return nil
}

// ListStalePending returns pushed payments still pending that were created before the cutoff.
func (r PaymentRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, paymentColumns+`
		WHERE status='pending' AND checkout_request_id IS NOT NULL AND checkout_request_id <> '' AND created_at < ?
		ORDER BY id ASC
		LIMIT ?`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	defer rows.Close()

	out := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

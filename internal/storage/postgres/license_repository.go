package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"go.uber.org/zap"
)

const licenseColumns = `
	id, license_key, email, customer_name, status, license_type, max_devices,
	active_devices, product_id, payment_id, subscription_id, next_billing_date,
	updates_end_date, password_hash, password_set_at, last_login_at, firebase_uid,
	last_event_at, created_at, updated_at`

// usableAt mirrors License.IsUsable inside a WHERE clause; the placeholder is the reference time.
const usableAt = `(status IN ('active', 'trial') OR (status = 'cancelled' AND next_billing_date > %s))`

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) error {
	devices := lic.ActiveDevices
	if devices == nil {
		devices = []license.Device{}
	}
	devicesJSON, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("failed to encode devices: %w", err)
	}

	query := `
		INSERT INTO licenses (
			license_key, email, customer_name, status, license_type, max_devices,
			active_devices, product_id, payment_id, subscription_id, next_billing_date,
			updates_end_date, last_event_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		lic.LicenseKey,
		lic.Email,
		lic.CustomerName,
		lic.Status,
		lic.Type,
		lic.MaxDevices,
		string(devicesJSON),
		lic.ProductID,
		lic.PaymentID,
		lic.SubscriptionID,
		lic.NextBillingDate,
		lic.UpdatesEndDate,
		lic.LastEventAt,
	).Scan(&lic.ID, &lic.CreatedAt, &lic.UpdatedAt)

	if err != nil {
		switch constraint := uniqueConstraint(err); constraint {
		case "":
			r.logger.Error("Failed to create license in database", zap.Error(err))
			return fmt.Errorf("database error on create license: %w", err)
		case "licenses_license_key_key":
			r.logger.Warn("Attempted to create license with duplicate key")
			return ierr.ErrDuplicateKey
		default:
			r.logger.Warn("License for this purchase already exists", zap.String("constraint", constraint))
			return fmt.Errorf("%w: license for this purchase already exists", ierr.ErrConflict)
		}
	}
	return nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	return r.findOne(ctx, "license_key = $1", key)
}

func (r *LicenseRepository) FindByKeyAndEmail(ctx context.Context, key, email string) (*license.License, error) {
	return r.findOne(ctx, "license_key = $1 AND email = $2", key, email)
}

func (r *LicenseRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*license.License, error) {
	return r.findOne(ctx, "subscription_id = $1", subscriptionID)
}

func (r *LicenseRepository) FindByPaymentID(ctx context.Context, paymentID string) (*license.License, error) {
	return r.findOne(ctx, "payment_id = $1", paymentID)
}

func (r *LicenseRepository) FindByFirebaseUID(ctx context.Context, uid string) (*license.License, error) {
	return r.findOne(ctx, "firebase_uid = $1", uid)
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.License, int64, error) {
	var (
		conds []string
		args  []any
	)
	if params.Status != nil {
		args = append(args, *params.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Type != nil {
		args = append(args, *params.Type)
		conds = append(conds, fmt.Sprintf("license_type = $%d", len(args)))
	}
	if params.Email != nil {
		args = append(args, *params.Email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM licenses"+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count licenses", zap.Error(err))
		return nil, 0, fmt.Errorf("database error on count licenses: %w", err)
	}

	query := "SELECT" + licenseColumns + " FROM licenses" + where + " ORDER BY created_at DESC"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, 0, fmt.Errorf("database error on list licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*license.License, 0)
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			r.logger.Error("Failed to scan license row during list", zap.Error(err))
			return nil, 0, fmt.Errorf("database scan error during list: %w", err)
		}
		licenses = append(licenses, lic)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, 0, fmt.Errorf("database iteration error on list licenses: %w", err)
	}
	return licenses, total, nil
}

func (r *LicenseRepository) UpdateStatus(ctx context.Context, key string, status license.LicenseStatus) error {
	query := `UPDATE licenses SET status = $2, updated_at = now() WHERE license_key = $1`
	cmdTag, err := r.db.Exec(ctx, query, key, status)
	if err != nil {
		r.logger.Error("Failed to update license status", zap.Error(err))
		return fmt.Errorf("database error on update license status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ierr.ErrLicenseNotFound
	}
	return nil
}

func (r *LicenseRepository) AddDevice(ctx context.Context, key string, dev license.Device, now time.Time) (bool, error) {
	devJSON, err := json.Marshal([]license.Device{dev})
	if err != nil {
		return false, fmt.Errorf("failed to encode device: %w", err)
	}
	probe, err := json.Marshal([]map[string]string{{"hardwareId": dev.HardwareID}})
	if err != nil {
		return false, fmt.Errorf("failed to encode device probe: %w", err)
	}

	// The row lock taken by UPDATE re-evaluates the seat count after a concurrent
	// activation commits, so two requests can never both take the last seat.
	query := `
		UPDATE licenses
		SET active_devices = active_devices || $2::jsonb, updated_at = now()
		WHERE license_key = $1
		  AND jsonb_array_length(active_devices) < max_devices
		  AND NOT active_devices @> $3::jsonb
		  AND ` + fmt.Sprintf(usableAt, "$4")

	cmdTag, err := r.db.Exec(ctx, query, key, string(devJSON), string(probe), now)
	if err != nil {
		r.logger.Error("Failed to add device", zap.Error(err))
		return false, fmt.Errorf("database error on add device: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, key)
}

func (r *LicenseRepository) TouchDevice(ctx context.Context, key, hardwareID string, at time.Time) error {
	atJSON, err := json.Marshal(at)
	if err != nil {
		return fmt.Errorf("failed to encode timestamp: %w", err)
	}
	probe, err := json.Marshal([]map[string]string{{"hardwareId": hardwareID}})
	if err != nil {
		return fmt.Errorf("failed to encode device probe: %w", err)
	}

	query := `
		UPDATE licenses
		SET active_devices = (
			SELECT jsonb_agg(
				CASE WHEN d->>'hardwareId' = $2 THEN jsonb_set(d, '{lastUsedAt}', $3::jsonb) ELSE d END
				ORDER BY ord)
			FROM jsonb_array_elements(active_devices) WITH ORDINALITY AS e(d, ord)
		)
		WHERE license_key = $1 AND active_devices @> $4::jsonb
	`
	if _, err := r.db.Exec(ctx, query, key, hardwareID, string(atJSON), string(probe)); err != nil {
		r.logger.Warn("Failed to touch device", zap.Error(err))
		return fmt.Errorf("database error on touch device: %w", err)
	}
	return nil
}

func (r *LicenseRepository) RemoveDevice(ctx context.Context, key, deviceID string) (bool, error) {
	probe, err := json.Marshal([]map[string]string{{"deviceId": deviceID}})
	if err != nil {
		return false, fmt.Errorf("failed to encode device probe: %w", err)
	}

	query := `
		UPDATE licenses
		SET active_devices = COALESCE((
				SELECT jsonb_agg(d ORDER BY ord)
				FROM jsonb_array_elements(active_devices) WITH ORDINALITY AS e(d, ord)
				WHERE d->>'deviceId' <> $2
			), '[]'::jsonb),
			updated_at = now()
		WHERE license_key = $1 AND active_devices @> $3::jsonb
	`
	cmdTag, err := r.db.Exec(ctx, query, key, deviceID, string(probe))
	if err != nil {
		r.logger.Error("Failed to remove device", zap.Error(err))
		return false, fmt.Errorf("database error on remove device: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, key)
}

func (r *LicenseRepository) SetPasswordOnce(ctx context.Context, key, email, hash string, at time.Time) (bool, error) {
	query := `
		UPDATE licenses
		SET password_hash = $3, password_set_at = $4, updated_at = now()
		WHERE license_key = $1 AND email = $2 AND password_set_at IS NULL
	`
	return r.execMatched(ctx, "set password", query, key, email, hash, at)
}

func (r *LicenseRepository) ResetPassword(ctx context.Context, key, email, hash string, at time.Time) (bool, error) {
	query := `
		UPDATE licenses
		SET password_hash = $3, password_set_at = $4, updated_at = now()
		WHERE license_key = $1 AND email = $2
	`
	return r.execMatched(ctx, "reset password", query, key, email, hash, at)
}

func (r *LicenseRepository) RecordLogin(ctx context.Context, key string, at time.Time) error {
	ok, err := r.execMatched(ctx, "record login",
		`UPDATE licenses SET last_login_at = $2 WHERE license_key = $1`, key, at)
	if err != nil {
		return err
	}
	if !ok {
		return ierr.ErrLicenseNotFound
	}
	return nil
}

func (r *LicenseRepository) LinkFirebaseUID(ctx context.Context, key, uid string) error {
	ok, err := r.execMatched(ctx, "link identity",
		`UPDATE licenses SET firebase_uid = $2, updated_at = now() WHERE license_key = $1`, key, uid)
	if err != nil {
		if uniqueConstraint(err) == "licenses_firebase_uid_key" {
			return ierr.ErrIdentityLinked
		}
		return err
	}
	if !ok {
		return ierr.ErrLicenseNotFound
	}
	return nil
}

func (r *LicenseRepository) ApplyStateChange(ctx context.Context, key string, change license.StateChange, eventAt time.Time) (bool, error) {
	var requireStatus *string
	if change.RequireStatus != nil {
		s := string(*change.RequireStatus)
		requireStatus = &s
	}

	query := `
		UPDATE licenses
		SET status = $2,
			next_billing_date = CASE
				WHEN $3::boolean THEN NULL
				WHEN $4::timestamptz IS NOT NULL THEN $4::timestamptz
				ELSE next_billing_date
			END,
			last_event_at = $5,
			updated_at = now()
		WHERE license_key = $1
		  AND (last_event_at IS NULL OR last_event_at <= $5)
		  AND (NOT $6::boolean OR status <> 'blocked')
		  AND ($7::text IS NULL OR status = $7::text)
	`
	cmdTag, err := r.db.Exec(ctx, query,
		key,
		change.Status,
		change.EndGrace,
		change.NextBillingDate,
		eventAt,
		change.PreserveBlocked,
		requireStatus,
	)
	if err != nil {
		r.logger.Error("Failed to apply state change", zap.Error(err))
		return false, fmt.Errorf("database error on apply state change: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, key)
}

func (r *LicenseRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE licenses
		SET status = 'expired', updated_at = now()
		WHERE status = 'cancelled' AND next_billing_date <= $1
	`
	cmdTag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		r.logger.Error("Failed to expire lapsed licenses", zap.Error(err))
		return 0, fmt.Errorf("database error on expire lapsed: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *LicenseRepository) findOne(ctx context.Context, where string, args ...any) (*license.License, error) {
	row := r.db.QueryRow(ctx, "SELECT"+licenseColumns+" FROM licenses WHERE "+where, args...)
	lic, err := scanLicense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrLicenseNotFound
		}
		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}
	return lic, nil
}

func (r *LicenseRepository) execMatched(ctx context.Context, op, query string, args ...any) (bool, error) {
	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if uniqueConstraint(err) == "" {
			r.logger.Error("Failed to "+op, zap.Error(err))
		}
		return false, fmt.Errorf("database error on %s: %w", op, err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// ensureExists turns an unmatched conditional update into ErrLicenseNotFound when the row is missing.
func (r *LicenseRepository) ensureExists(ctx context.Context, key string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM licenses WHERE license_key = $1)`, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("database error on license lookup: %w", err)
	}
	if !exists {
		return ierr.ErrLicenseNotFound
	}
	return nil
}

func scanLicense(row pgx.Row) (*license.License, error) {
	var (
		lic     license.License
		devices []byte
	)
	err := row.Scan(
		&lic.ID,
		&lic.LicenseKey,
		&lic.Email,
		&lic.CustomerName,
		&lic.Status,
		&lic.Type,
		&lic.MaxDevices,
		&devices,
		&lic.ProductID,
		&lic.PaymentID,
		&lic.SubscriptionID,
		&lic.NextBillingDate,
		&lic.UpdatesEndDate,
		&lic.PasswordHash,
		&lic.PasswordSetAt,
		&lic.LastLoginAt,
		&lic.FirebaseUID,
		&lic.LastEventAt,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lic.ActiveDevices = []license.Device{}
	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &lic.ActiveDevices); err != nil {
			return nil, fmt.Errorf("failed to decode active devices: %w", err)
		}
	}
	return &lic, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"onboarding-gateway/internal/onboarding"
)

// PostgresOtpStore persists OTP challenges in PostgreSQL.
type PostgresOtpStore struct {
	db *sql.DB
}

func NewPostgresOtpStore(db *sql.DB) *PostgresOtpStore {
	return &PostgresOtpStore{db: db}
}

func (s *PostgresOtpStore) Create(ctx context.Context, o onboarding.Otp) error {
	query := `
		INSERT INTO onboarding_otp
			(id, process_id, identity_verification_id, code_digest, status, type,
			failed_attempts, total_attempts, error_detail, error_origin,
			created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.ProcessID, o.IdentityVerificationID, o.CodeDigest, o.Status, o.Type,
		o.FailedAttempts, o.TotalAttempts, o.ErrorDetail, o.ErrorOrigin,
		o.CreatedAt, o.ExpiresAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create otp: %w", err)
	}
	return nil
}

func (s *PostgresOtpStore) Update(ctx context.Context, o onboarding.Otp) error {
	query := `
		UPDATE onboarding_otp SET
			status = $2, failed_attempts = $3, total_attempts = $4, error_detail = $5,
			error_origin = $6, updated_at = $7, verified_at = $8, failed_at = $9
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		o.ID, o.Status, o.FailedAttempts, o.TotalAttempts, o.ErrorDetail, o.ErrorOrigin,
		o.UpdatedAt, o.VerifiedAt, o.FailedAt)
	if err != nil {
		return fmt.Errorf("update otp: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return onboarding.ErrOtpNotFound
	}
	return nil
}

func (s *PostgresOtpStore) FindNewestByProcessAndType(ctx context.Context, processID string, t onboarding.OtpType) (onboarding.Otp, error) {
	query := selectOtp + `
		WHERE process_id = $1 AND type = $2
		ORDER BY created_at DESC LIMIT 1
	`
	return scanOtp(s.db.QueryRowContext(ctx, query, processID, t))
}

func (s *PostgresOtpStore) CountFailedAttempts(ctx context.Context, processID string, t onboarding.OtpType) (int, error) {
	query := `
		SELECT COALESCE(SUM(failed_attempts), 0) FROM onboarding_otp
		WHERE process_id = $1 AND type = $2
	`
	var total int
	if err := s.db.QueryRowContext(ctx, query, processID, t).Scan(&total); err != nil {
		return 0, fmt.Errorf("count failed otp attempts: %w", err)
	}
	return total, nil
}

func (s *PostgresOtpStore) FindActiveIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM onboarding_otp
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`
	return queryIDs(ctx, s.db, query, onboarding.OtpActive, cutoff)
}

func (s *PostgresOtpStore) Terminate(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE onboarding_otp SET
			status = $1, error_detail = $2, error_origin = $3, updated_at = $4, failed_at = $4
		WHERE id = ANY($5) AND status = $6
	`
	res, err := s.db.ExecContext(ctx, query,
		onboarding.OtpFailed, onboarding.ErrorOtpExpired, onboarding.OriginOtpVerification,
		now, pq.Array(ids), onboarding.OtpActive)
	if err != nil {
		return 0, fmt.Errorf("terminate otps: %w", err)
	}
	return res.RowsAffected()
}

const selectOtp = `
	SELECT id, process_id, identity_verification_id, code_digest, status, type,
		failed_attempts, total_attempts, error_detail, error_origin,
		created_at, expires_at, updated_at, verified_at, failed_at
	FROM onboarding_otp
`

func scanOtp(row rowScanner) (onboarding.Otp, error) {
	var o onboarding.Otp
	err := row.Scan(&o.ID, &o.ProcessID, &o.IdentityVerificationID, &o.CodeDigest,
		&o.Status, &o.Type, &o.FailedAttempts, &o.TotalAttempts, &o.ErrorDetail,
		&o.ErrorOrigin, &o.CreatedAt, &o.ExpiresAt, &o.UpdatedAt, &o.VerifiedAt, &o.FailedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return onboarding.Otp{}, onboarding.ErrOtpNotFound
	}
	if err != nil {
		return onboarding.Otp{}, fmt.Errorf("scan otp: %w", err)
	}
	return o, nil
}

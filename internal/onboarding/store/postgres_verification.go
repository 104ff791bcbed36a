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

// PostgresVerificationStore persists identity verifications in PostgreSQL.
type PostgresVerificationStore struct {
	db *sql.DB
}

func NewPostgresVerificationStore(db *sql.DB) *PostgresVerificationStore {
	return &PostgresVerificationStore{db: db}
}

func (s *PostgresVerificationStore) Create(ctx context.Context, v onboarding.IdentityVerification) error {
	query := `
		INSERT INTO identity_verification
			(id, process_id, activation_id, user_id, phase, status, reject_reason,
			error_detail, error_origin, session_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.ProcessID, v.ActivationID, v.UserID, v.Phase, v.Status, v.RejectReason,
		v.ErrorDetail, v.ErrorOrigin, v.SessionInfo, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create identity verification: %w", err)
	}
	return nil
}

func (s *PostgresVerificationStore) Update(ctx context.Context, v onboarding.IdentityVerification) error {
	query := `
		UPDATE identity_verification SET
			phase = $2, status = $3, reject_reason = $4, error_detail = $5,
			error_origin = $6, session_info = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		v.ID, v.Phase, v.Status, v.RejectReason, v.ErrorDetail, v.ErrorOrigin,
		v.SessionInfo, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update identity verification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return onboarding.ErrVerificationNotFound
	}
	return nil
}

func (s *PostgresVerificationStore) FindByID(ctx context.Context, id string) (onboarding.IdentityVerification, error) {
	query := selectVerification + ` WHERE id = $1`
	return scanVerification(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresVerificationStore) FindNewestByProcessID(ctx context.Context, processID string) (onboarding.IdentityVerification, error) {
	query := selectVerification + ` WHERE process_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanVerification(s.db.QueryRowContext(ctx, query, processID))
}

func (s *PostgresVerificationStore) ListByProcessID(ctx context.Context, processID string) ([]onboarding.IdentityVerification, error) {
	query := selectVerification + ` WHERE process_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("list identity verifications: %w", err)
	}
	defer rows.Close()

	var out []onboarding.IdentityVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresVerificationStore) ListByPhaseStatus(ctx context.Context, pairs []PhaseStatus) ([]onboarding.IdentityVerification, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	phases := make([]string, 0, len(pairs))
	statuses := make([]string, 0, len(pairs))
	for _, ps := range pairs {
		phases = append(phases, string(ps.Phase))
		statuses = append(statuses, string(ps.Status))
	}
	// The pair arrays are zipped positionally by unnest.
	query := selectVerification + `
		WHERE (phase, status) IN (SELECT * FROM unnest($1::text[], $2::text[]))
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(phases), pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("list identity verifications by state: %w", err)
	}
	defer rows.Close()

	var out []onboarding.IdentityVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresVerificationStore) FindUnfinishedIDsByProcessIDs(ctx context.Context, processIDs []string) ([]string, error) {
	if len(processIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id FROM identity_verification
		WHERE process_id = ANY($1) AND phase <> $2
		ORDER BY id
	`
	return queryIDs(ctx, s.db, query, pq.Array(processIDs), onboarding.PhaseCompleted)
}

func (s *PostgresVerificationStore) FindUnfinishedIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM identity_verification
		WHERE phase <> $1 AND created_at < $2
		ORDER BY id
	`
	return queryIDs(ctx, s.db, query, onboarding.PhaseCompleted, cutoff)
}

func (s *PostgresVerificationStore) Terminate(ctx context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE identity_verification SET
			phase = $1, status = $2, error_detail = $3, error_origin = $4, updated_at = $5
		WHERE id = ANY($6) AND phase <> $1
	`
	res, err := s.db.ExecContext(ctx, query,
		onboarding.PhaseCompleted, onboarding.StatusFailed, errorDetail, origin, now, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("terminate identity verifications: %w", err)
	}
	return res.RowsAffected()
}

const selectVerification = `
	SELECT id, process_id, activation_id, user_id, phase, status, reject_reason,
		error_detail, error_origin, session_info, created_at, updated_at
	FROM identity_verification
`

func scanVerification(row rowScanner) (onboarding.IdentityVerification, error) {
	var v onboarding.IdentityVerification
	err := row.Scan(&v.ID, &v.ProcessID, &v.ActivationID, &v.UserID, &v.Phase, &v.Status,
		&v.RejectReason, &v.ErrorDetail, &v.ErrorOrigin, &v.SessionInfo, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return onboarding.IdentityVerification{}, onboarding.ErrVerificationNotFound
	}
	if err != nil {
		return onboarding.IdentityVerification{}, fmt.Errorf("scan identity verification: %w", err)
	}
	return v, nil
}

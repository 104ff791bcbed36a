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

// PostgresProcessStore persists onboarding processes in PostgreSQL.
type PostgresProcessStore struct {
	db *sql.DB
}

func NewPostgresProcessStore(db *sql.DB) *PostgresProcessStore {
	return &PostgresProcessStore{db: db}
}

func (s *PostgresProcessStore) Create(ctx context.Context, p onboarding.Process) error {
	query := `
		INSERT INTO onboarding_process
			(id, user_id, activation_id, status, error_detail, error_origin, error_score, activation_removed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.ActivationID, p.Status, p.ErrorDetail, p.ErrorOrigin,
		p.ErrorScore, p.ActivationRemoved, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create process: %w", err)
	}
	return nil
}

func (s *PostgresProcessStore) Update(ctx context.Context, p onboarding.Process) error {
	query := `
		UPDATE onboarding_process SET
			status = $2, error_detail = $3, error_origin = $4, error_score = $5,
			activation_removed = $6, updated_at = $7, finished_at = $8, failed_at = $9
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.Status, p.ErrorDetail, p.ErrorOrigin, p.ErrorScore,
		p.ActivationRemoved, p.UpdatedAt, p.FinishedAt, p.FailedAt)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return onboarding.ErrProcessNotFound
	}
	return nil
}

func (s *PostgresProcessStore) FindByID(ctx context.Context, id string) (onboarding.Process, error) {
	query := selectProcess + ` WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresProcessStore) FindByActivationID(ctx context.Context, activationID string) (onboarding.Process, error) {
	query := selectProcess + ` WHERE activation_id = $1 ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, activationID))
}

func (s *PostgresProcessStore) CountByUserCreatedAfter(ctx context.Context, userID string, after time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM onboarding_process WHERE user_id = $1 AND created_at > $2`
	var n int
	if err := s.db.QueryRowContext(ctx, query, userID, after).Scan(&n); err != nil {
		return 0, fmt.Errorf("count processes by user: %w", err)
	}
	return n, nil
}

func (s *PostgresProcessStore) FindIDsByStatusCreatedBefore(ctx context.Context, status onboarding.ProcessStatus, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM onboarding_process
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`
	return queryIDs(ctx, s.db, query, status, cutoff)
}

func (s *PostgresProcessStore) FindIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM onboarding_process
		WHERE status NOT IN ($1, $2) AND created_at < $3
		ORDER BY created_at
	`
	return queryIDs(ctx, s.db, query, onboarding.ProcessFinished, onboarding.ProcessFailed, cutoff)
}

func (s *PostgresProcessStore) Terminate(ctx context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE onboarding_process SET
			status = $1, error_detail = $2, error_origin = $3, updated_at = $4, failed_at = $4
		WHERE id = ANY($5) AND status NOT IN ($6, $7)
	`
	res, err := s.db.ExecContext(ctx, query,
		onboarding.ProcessFailed, errorDetail, origin, now, pq.Array(ids),
		onboarding.ProcessFinished, onboarding.ProcessFailed)
	if err != nil {
		return 0, fmt.Errorf("terminate processes: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresProcessStore) ListFailedWithActivation(ctx context.Context, limit int) ([]onboarding.Process, error) {
	query := selectProcess + `
		WHERE status = $1 AND activation_removed = false AND activation_id <> ''
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, onboarding.ProcessFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed processes: %w", err)
	}
	defer rows.Close()

	var out []onboarding.Process
	for rows.Next() {
		p, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresProcessStore) MarkActivationRemoved(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_process SET activation_removed = true WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark activation removed: %w", err)
	}
	return nil
}

const selectProcess = `
	SELECT id, user_id, activation_id, status, error_detail, error_origin, error_score,
		activation_removed, created_at, updated_at, finished_at, failed_at
	FROM onboarding_process
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresProcessStore) scanOne(row rowScanner) (onboarding.Process, error) {
	var p onboarding.Process
	err := row.Scan(&p.ID, &p.UserID, &p.ActivationID, &p.Status, &p.ErrorDetail,
		&p.ErrorOrigin, &p.ErrorScore, &p.ActivationRemoved, &p.CreatedAt, &p.UpdatedAt,
		&p.FinishedAt, &p.FailedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return onboarding.Process{}, onboarding.ErrProcessNotFound
	}
	if err != nil {
		return onboarding.Process{}, fmt.Errorf("scan process: %w", err)
	}
	return p, nil
}

func queryIDs(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

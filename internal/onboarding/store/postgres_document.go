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

// PostgresDocumentStore persists document verifications in PostgreSQL.
type PostgresDocumentStore struct {
	db *sql.DB
}

func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

func (s *PostgresDocumentStore) Create(ctx context.Context, d onboarding.DocumentVerification) error {
	query := `
		INSERT INTO document_verification
			(id, identity_verification_id, type, side, status, other_side_id, upload_id,
			verification_id, photo_id, verification_score, reject_reason, error_detail,
			error_origin, used_for_verification, original_document_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.IdentityVerificationID, d.Type, d.Side, d.Status, d.OtherSideID, d.UploadID,
		d.VerificationID, d.PhotoID, d.VerificationScore, d.RejectReason, d.ErrorDetail,
		d.ErrorOrigin, d.UsedForVerification, d.OriginalDocumentID, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document verification: %w", err)
	}
	return nil
}

func (s *PostgresDocumentStore) Update(ctx context.Context, d onboarding.DocumentVerification) error {
	query := `
		UPDATE document_verification SET
			status = $2, other_side_id = $3, upload_id = $4, verification_id = $5,
			photo_id = $6, verification_score = $7, reject_reason = $8, error_detail = $9,
			error_origin = $10, used_for_verification = $11, updated_at = $12
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Status, d.OtherSideID, d.UploadID, d.VerificationID, d.PhotoID,
		d.VerificationScore, d.RejectReason, d.ErrorDetail, d.ErrorOrigin,
		d.UsedForVerification, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document verification: %w", err)
	}
	return nil
}

func (s *PostgresDocumentStore) FindByID(ctx context.Context, id string) (onboarding.DocumentVerification, error) {
	query := selectDocument + ` WHERE id = $1`
	return scanDocument(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresDocumentStore) ListUsedForVerification(ctx context.Context, verificationID string) ([]onboarding.DocumentVerification, error) {
	query := selectDocument + `
		WHERE identity_verification_id = $1 AND used_for_verification = true
		ORDER BY created_at
	`
	return s.list(ctx, query, verificationID)
}

func (s *PostgresDocumentStore) ListByStatus(ctx context.Context, status onboarding.DocumentStatus) ([]onboarding.DocumentVerification, error) {
	query := selectDocument + ` WHERE status = $1 ORDER BY created_at`
	return s.list(ctx, query, status)
}

func (s *PostgresDocumentStore) FindUnfinishedIDsByVerificationIDs(ctx context.Context, verificationIDs []string) ([]string, error) {
	if len(verificationIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id FROM document_verification
		WHERE identity_verification_id = ANY($1) AND status = ANY($2)
		ORDER BY id
	`
	return queryIDs(ctx, s.db, query, pq.Array(verificationIDs), pq.Array(notFinishedDocumentStatuses()))
}

func (s *PostgresDocumentStore) FindUnfinishedIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM document_verification
		WHERE status = ANY($1) AND created_at < $2
		ORDER BY id
	`
	return queryIDs(ctx, s.db, query, pq.Array(notFinishedDocumentStatuses()), cutoff)
}

func (s *PostgresDocumentStore) Terminate(ctx context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE document_verification SET
			status = $1, error_detail = $2, error_origin = $3, updated_at = $4
		WHERE id = ANY($5) AND status = ANY($6)
	`
	res, err := s.db.ExecContext(ctx, query,
		onboarding.DocumentFailed, errorDetail, origin, now, pq.Array(ids),
		pq.Array(notFinishedDocumentStatuses()))
	if err != nil {
		return 0, fmt.Errorf("terminate document verifications: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresDocumentStore) list(ctx context.Context, query string, args ...any) ([]onboarding.DocumentVerification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list document verifications: %w", err)
	}
	defer rows.Close()

	var out []onboarding.DocumentVerification
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func notFinishedDocumentStatuses() []string {
	out := make([]string, 0, len(onboarding.DocumentStatusesNotFinished))
	for _, st := range onboarding.DocumentStatusesNotFinished {
		out = append(out, string(st))
	}
	return out
}

const selectDocument = `
	SELECT id, identity_verification_id, type, side, status, other_side_id, upload_id,
		verification_id, photo_id, verification_score, reject_reason, error_detail,
		error_origin, used_for_verification, original_document_id, created_at, updated_at
	FROM document_verification
`

func scanDocument(row rowScanner) (onboarding.DocumentVerification, error) {
	var d onboarding.DocumentVerification
	err := row.Scan(&d.ID, &d.IdentityVerificationID, &d.Type, &d.Side, &d.Status,
		&d.OtherSideID, &d.UploadID, &d.VerificationID, &d.PhotoID, &d.VerificationScore,
		&d.RejectReason, &d.ErrorDetail, &d.ErrorOrigin, &d.UsedForVerification,
		&d.OriginalDocumentID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return onboarding.DocumentVerification{}, onboarding.ErrVerificationNotFound
	}
	if err != nil {
		return onboarding.DocumentVerification{}, fmt.Errorf("scan document verification: %w", err)
	}
	return d, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"onboarding-gateway/internal/onboarding"
)

// PostgresResultStore persists immutable verification result snapshots.
type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(db *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{db: db}
}

func (s *PostgresResultStore) Create(ctx context.Context, r onboarding.DocumentResult) error {
	query := `
		INSERT INTO document_result
			(id, document_verification_id, phase, extracted_data, verification_result, reject_reasons, error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.DocumentVerificationID, r.Phase, r.ExtractedData, r.VerificationResult,
		pq.Array(r.RejectReasons), r.ErrorDetail, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) ListByDocument(ctx context.Context, documentVerificationID string) ([]onboarding.DocumentResult, error) {
	query := `
		SELECT id, document_verification_id, phase, extracted_data, verification_result, reject_reasons, error_detail, created_at
		FROM document_result
		WHERE document_verification_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, documentVerificationID)
	if err != nil {
		return nil, fmt.Errorf("list document results: %w", err)
	}
	defer rows.Close()

	var out []onboarding.DocumentResult
	for rows.Next() {
		var r onboarding.DocumentResult
		if err := rows.Scan(&r.ID, &r.DocumentVerificationID, &r.Phase, &r.ExtractedData, &r.VerificationResult,
			pq.Array(&r.RejectReasons), &r.ErrorDetail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresDocumentDataStore persists raw document payloads.
type PostgresDocumentDataStore struct {
	db *sql.DB
}

func NewPostgresDocumentDataStore(db *sql.DB) *PostgresDocumentDataStore {
	return &PostgresDocumentDataStore{db: db}
}

func (s *PostgresDocumentDataStore) Save(ctx context.Context, documentVerificationID, filename string, data []byte) error {
	query := `
		INSERT INTO document_data (document_verification_id, filename, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_verification_id) DO UPDATE SET
			filename = EXCLUDED.filename, data = EXCLUDED.data
	`
	_, err := s.db.ExecContext(ctx, query, documentVerificationID, filename, data, time.Now())
	if err != nil {
		return fmt.Errorf("save document data: %w", err)
	}
	return nil
}

func (s *PostgresDocumentDataStore) Find(ctx context.Context, documentVerificationID string) (string, []byte, error) {
	query := `SELECT filename, data FROM document_data WHERE document_verification_id = $1`
	var filename string
	var data []byte
	err := s.db.QueryRowContext(ctx, query, documentVerificationID).Scan(&filename, &data)
	if err == sql.ErrNoRows {
		return "", nil, onboarding.ErrVerificationNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("find document data: %w", err)
	}
	return filename, data, nil
}

func (s *PostgresDocumentDataStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_data WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete document data: %w", err)
	}
	return res.RowsAffected()
}

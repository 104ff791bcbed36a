package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the onboarding tables when they do not exist yet.
// Deployments with managed migrations can skip it; local runs and the
// integration tests rely on it.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS onboarding_process (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	activation_id      TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	error_detail       TEXT NOT NULL DEFAULT '',
	error_origin       TEXT NOT NULL DEFAULT '',
	error_score        INTEGER NOT NULL DEFAULT 0,
	activation_removed BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ,
	failed_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_process_user_created ON onboarding_process (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_process_activation ON onboarding_process (activation_id);
CREATE INDEX IF NOT EXISTS idx_process_status_created ON onboarding_process (status, created_at);

CREATE TABLE IF NOT EXISTS identity_verification (
	id            TEXT PRIMARY KEY,
	process_id    TEXT NOT NULL REFERENCES onboarding_process (id),
	activation_id TEXT NOT NULL DEFAULT '',
	user_id       TEXT NOT NULL DEFAULT '',
	phase         TEXT NOT NULL,
	status        TEXT NOT NULL,
	reject_reason TEXT NOT NULL DEFAULT '',
	error_detail  TEXT NOT NULL DEFAULT '',
	error_origin  TEXT NOT NULL DEFAULT '',
	session_info  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_process_created ON identity_verification (process_id, created_at);
CREATE INDEX IF NOT EXISTS idx_verification_phase_status ON identity_verification (phase, status);

CREATE TABLE IF NOT EXISTS document_verification (
	id                       TEXT PRIMARY KEY,
	identity_verification_id TEXT NOT NULL REFERENCES identity_verification (id),
	type                     TEXT NOT NULL,
	side                     TEXT NOT NULL DEFAULT '',
	status                   TEXT NOT NULL,
	other_side_id            TEXT NOT NULL DEFAULT '',
	upload_id                TEXT NOT NULL DEFAULT '',
	verification_id          TEXT NOT NULL DEFAULT '',
	photo_id                 TEXT NOT NULL DEFAULT '',
	verification_score       INTEGER NOT NULL DEFAULT 0,
	reject_reason            TEXT NOT NULL DEFAULT '',
	error_detail             TEXT NOT NULL DEFAULT '',
	error_origin             TEXT NOT NULL DEFAULT '',
	used_for_verification    BOOLEAN NOT NULL DEFAULT false,
	original_document_id     TEXT NOT NULL DEFAULT '',
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_verification_used ON document_verification (identity_verification_id, used_for_verification);
CREATE INDEX IF NOT EXISTS idx_document_status_created ON document_verification (status, created_at);

CREATE TABLE IF NOT EXISTS onboarding_otp (
	id                       TEXT PRIMARY KEY,
	process_id               TEXT NOT NULL REFERENCES onboarding_process (id),
	identity_verification_id TEXT NOT NULL DEFAULT '',
	code_digest              BYTEA NOT NULL,
	status                   TEXT NOT NULL,
	type                     TEXT NOT NULL,
	failed_attempts          INTEGER NOT NULL DEFAULT 0,
	total_attempts           INTEGER NOT NULL DEFAULT 0,
	error_detail             TEXT NOT NULL DEFAULT '',
	error_origin             TEXT NOT NULL DEFAULT '',
	created_at               TIMESTAMPTZ NOT NULL,
	expires_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL,
	verified_at              TIMESTAMPTZ,
	failed_at                TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_otp_process_type_created ON onboarding_otp (process_id, type, created_at);
CREATE INDEX IF NOT EXISTS idx_otp_status_created ON onboarding_otp (status, created_at);

CREATE TABLE IF NOT EXISTS document_result (
	id                       TEXT PRIMARY KEY,
	document_verification_id TEXT NOT NULL REFERENCES document_verification (id),
	phase                    TEXT NOT NULL,
	extracted_data           TEXT NOT NULL DEFAULT '',
	verification_result      TEXT NOT NULL DEFAULT '',
	reject_reasons           TEXT[] NOT NULL DEFAULT '{}',
	error_detail             TEXT NOT NULL DEFAULT '',
	created_at               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_result_document ON document_result (document_verification_id, created_at);

CREATE TABLE IF NOT EXISTS document_data (
	document_verification_id TEXT PRIMARY KEY REFERENCES document_verification (id),
	filename                 TEXT NOT NULL,
	data                     BYTEA NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL
);
`

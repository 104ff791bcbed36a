package store

import "database/sql"

// PostgresStores bundles the postgres-backed stores over one pool.
func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Processes:     NewPostgresProcessStore(db),
		Verifications: NewPostgresVerificationStore(db),
		Documents:     NewPostgresDocumentStore(db),
		Otps:          NewPostgresOtpStore(db),
		Results:       NewPostgresResultStore(db),
		DocumentData:  NewPostgresDocumentDataStore(db),
	}
}

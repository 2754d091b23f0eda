package auth

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// APIKeyStore validates presented API keys against bcrypt hashes. Keys
// are never stored or logged in plaintext once registered.
type APIKeyStore struct {
	db *sql.DB
}

const apiKeySchemaSQL = `
CREATE TABLE IF NOT EXISTS api_keys (
	label     TEXT PRIMARY KEY,
	hash      TEXT NOT NULL,
	principal TEXT NOT NULL
);
`

// NewAPIKeyStore opens (creating if absent) the API-key table in the
// shared SQLite file.
func NewAPIKeyStore(dbPath string) (*APIKeyStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open api key db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(apiKeySchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create api key schema: %w", err)
	}
	return &APIKeyStore{db: db}, nil
}

func (s *APIKeyStore) Close() error { return s.db.Close() }

// Register hashes and stores a new API key under label, bound to
// principal for downstream ProviderPolicy matching.
func (s *APIKeyStore) Register(label, rawKey, principal string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash api key: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO api_keys (label, hash, principal) VALUES (?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET hash = excluded.hash, principal = excluded.principal`,
		label, string(hash), principal,
	)
	return err
}

// Validate checks rawKey against every registered hash in constant time
// per comparison (bcrypt.CompareHashAndPassword is itself constant-time
// in the comparison step) and returns the bound principal on success.
func (s *APIKeyStore) Validate(rawKey string) (principal string, ok bool) {
	rows, err := s.db.Query(`SELECT hash, principal FROM api_keys`)
	if err != nil {
		return "", false
	}
	defer rows.Close()

	for rows.Next() {
		var hash, p string
		if err := rows.Scan(&hash, &p); err != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)) == nil {
			return p, true
		}
	}
	return "", false
}

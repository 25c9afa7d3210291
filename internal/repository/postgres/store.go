// Package postgres implements the service-layer repository interfaces
// against PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"database/sql"

	"github.com/lib/pq"
)

// Store implements the repository contracts of the extraction, review, and
// reminder services over one database handle. Methods are grouped by table
// across this package's files.
type Store struct{ db *sql.DB }

// NewStore creates a Postgres-backed store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

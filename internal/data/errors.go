package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job record does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobAlreadyExists is returned when a job insert collides on id.
	ErrJobAlreadyExists = errors.New("job already exists")
	// ErrPortfolioNotFound is returned when a user has no portfolio accounts.
	ErrPortfolioNotFound = errors.New("portfolio not found")
	// ErrInstrumentNotFound is returned when an instrument symbol is unknown.
	ErrInstrumentNotFound = errors.New("instrument not found")
)

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

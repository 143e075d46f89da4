package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/bluewing/auth-core/repositories"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(kind string, key interface{}) error {
	return fmt.Errorf("%w: %s %v", repositories.ErrNotFound, kind, key)
}

// expectAffected turns a zero-row write into ErrNotFound
func expectAffected(result sql.Result, kind string, key interface{}) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound(kind, key)
	}
	return nil
}

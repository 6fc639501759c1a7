package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
var (
	// ErrNotFound indicates the requested snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrTransactionConflict indicates concurrent writers touched the same
	// record. Callers may retry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrInvalidName is returned for empty snapshot names.
	ErrInvalidName = errors.New("invalid snapshot name")
)

// wrapQueryError maps known SurrealDB query errors onto sentinels.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
	}
	return err
}

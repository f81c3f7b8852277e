package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/surrealdb/surrealdb.go"
)

// ErrTransactionConflict indicates concurrent writers touched the same
// records. Appends retry on it.
var ErrTransactionConflict = errors.New("transaction conflict")

// errConversationMissing is thrown by queries that require the
// conversation record.
const errConversationMissing = "conversation not found"

// wrapQueryError maps known SurrealDB query errors onto sentinel errors.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, errConversationMissing) {
			return fmt.Errorf("%w: %s", store.ErrNotFound, msg)
		}
		if strings.Contains(msg, "Transaction conflict") || strings.Contains(msg, "already contains") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}

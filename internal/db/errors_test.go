package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
)

func TestWrapQueryError(t *testing.T) {
	assert.NoError(t, wrapQueryError(nil))

	missing := fmt.Errorf("query: %w", &surrealdb.QueryError{Message: "An error occurred: conversation not found"})
	assert.ErrorIs(t, wrapQueryError(missing), store.ErrNotFound)

	conflict := &surrealdb.QueryError{Message: "Transaction conflict: Resource busy"}
	assert.ErrorIs(t, wrapQueryError(conflict), ErrTransactionConflict)

	dup := &surrealdb.QueryError{Message: "Database index `message_order` already contains [conversation:x, 3]"}
	assert.ErrorIs(t, wrapQueryError(dup), ErrTransactionConflict)

	other := errors.New("connection reset")
	assert.Equal(t, other, wrapQueryError(other))
}

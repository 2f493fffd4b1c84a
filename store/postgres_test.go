package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"policyqa/types"
)

func TestClassifySaveError(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	err := classifySaveError(unique, "c1")
	assert.ErrorIs(t, err, types.ErrDuplicateChunk)
	assert.Contains(t, err.Error(), "c1")

	wrapped := fmt.Errorf("exec: %w", unique)
	assert.ErrorIs(t, classifySaveError(wrapped, "c1"), types.ErrDuplicateChunk)
}

func TestClassifySaveErrorPassesThroughNonUniqueFailures(t *testing.T) {
	notNull := &pgconn.PgError{Code: "23502", Message: "null value in column"}
	err := classifySaveError(notNull, "c1")
	assert.NotErrorIs(t, err, types.ErrDuplicateChunk)
	assert.ErrorIs(t, err, notNull)

	dropped := errors.New("connection reset by peer")
	err = classifySaveError(dropped, "c2")
	assert.NotErrorIs(t, err, types.ErrDuplicateChunk)
	assert.ErrorIs(t, err, dropped)
}

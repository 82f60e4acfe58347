// Package tx defines the transaction port repositories commit through.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction: rollback on error, commit otherwise.
// Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager also supports read-only transactions.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

package importer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run describes one finished import, successful or aborted.
type Run struct {
	ID         uuid.UUID
	Entity     string
	Options    Options
	Result     *Result
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Journal keeps a history of import runs. A failing Record is logged and does
// not change the outcome of the run.
type Journal interface {
	Record(ctx context.Context, run Run) error
}

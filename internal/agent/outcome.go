package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/thelocalai/thelocalai/internal/chat"
)

// Outcome is one item delivered on the harness queue. The set of
// variants is closed: Result, Error, and ModelList. Only the first two
// belong to the single-flight request lifecycle; ModelList items share
// the queue but never touch the processing flag.
type Outcome interface {
	isOutcome()
}

// Result carries a completed chat reply.
type Result struct {
	ID      uuid.UUID
	Res     *chat.ChatResult
	Elapsed time.Duration
}

// Error carries a failed chat request.
type Error struct {
	ID  uuid.UUID
	Err error
}

// ModelList carries a model-catalog refresh. Err is set when the
// catalog could not be loaded; a refresh failure is rendered but never
// clears the processing flag.
type ModelList struct {
	Models []string
	Err    error
}

func (Result) isOutcome()    {}
func (Error) isOutcome()     {}
func (ModelList) isOutcome() {}

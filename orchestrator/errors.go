package orchestrator

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned by Submit when a model round-trip fails or
// times out. The conversation is left unmodified.
var ErrModelUnavailable = errors.New("model backend unavailable")

// BudgetExceededError is returned by Submit when the resolve loop exhausts
// its round budget without the model producing a terminal answer. It is a
// soft failure carrying the tool-call trace accumulated before the abort;
// nothing is committed.
type BudgetExceededError struct {
	Rounds int
	Trace  []ToolCallRecord
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("no terminal answer after %d rounds (%d tool calls)", e.Rounds, len(e.Trace))
}

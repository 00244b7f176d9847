// Package session manages per-session conversation history for the
// orchestrator. A Store hands out Sessions keyed by opaque session key;
// each Session owns one conversation and the turn lock that serializes
// concurrent submissions against it.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/stewardlabs/steward/core/protocol"
)

// Store tracks conversations keyed by session key. Implementations must be
// safe for concurrent use; sessions for distinct keys never block one another.
type Store interface {
	// Get returns the session for key, creating it on first access.
	Get(key string) Session
	// Clear resets the conversation for key. Unknown keys are a no-op.
	// Clear does not wait on the session's turn lock: a turn already in
	// flight commits its messages after the reset. Callers that need the
	// reset to win must Acquire the session first.
	Clear(key string)
}

// Session holds one ordered conversation and its turn lock. History mutation
// is not commutative, so callers must hold the turn lock (Acquire/Release)
// for the full duration of a turn, including every outbound call it makes.
type Session interface {
	// Key returns the opaque session key.
	Key() string
	// Acquire blocks until the per-session turn lock is held, or until ctx
	// is done.
	Acquire(ctx context.Context) error
	// Release releases the turn lock.
	Release()
	// Append adds messages to the conversation and evicts the oldest
	// entries beyond the retention cap, FIFO.
	Append(msgs ...protocol.Message)
	// Messages returns a defensive copy of the retained conversation.
	Messages() []protocol.Message
	// Window returns a defensive copy of the most recent messages supplied
	// to the model per turn.
	Window() []protocol.Message
	// Len reports the retained conversation length.
	Len() int
	// Clear resets the conversation.
	Clear()
}

// NewKey generates an opaque session key: a random 128-bit token in UUID form.
func NewKey() string {
	return uuid.NewString()
}

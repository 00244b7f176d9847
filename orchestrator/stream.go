package orchestrator

import (
	"context"
	"strings"

	"github.com/stewardlabs/steward/core/protocol"
	"github.com/stewardlabs/steward/gateway"
	"github.com/stewardlabs/steward/observability"
	"github.com/stewardlabs/steward/session"
)

// EventKind discriminates delivery events.
type EventKind string

const (
	EventStatus  EventKind = "status"
	EventContent EventKind = "content"
	EventDone    EventKind = "done"
)

// Event is one delivery event of a turn's answer stream. Consumers read
// events in emission order until Done.
type Event struct {
	Kind    EventKind
	Status  string // tools invoked this turn, for EventStatus
	Content string // one text fragment, for EventContent
}

// stream is the multiplexer for the final answer turn. It relays deltas from
// the already-open completion stream outward in order and commits the
// accumulated turn to the session just before emitting done. Any failure or
// cancellation before that point discards the turn: commits are all or
// nothing. Releases the session's turn lock on exit.
func (o *Orchestrator) stream(ctx context.Context, sess session.Session, t *turn, deltas <-chan gateway.Delta, events chan<- Event) {
	defer sess.Release()
	defer close(events)

	o.emit(ctx, EventStreamStart, observability.LevelVerbose, map[string]any{
		"session": sess.Key(),
		"rounds":  t.rounds,
		"tools":   len(t.invoked),
	})

	if !o.send(ctx, sess, events, Event{Kind: EventStatus, Status: strings.Join(t.invoked, ", ")}) {
		return
	}

	var answer strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			o.emit(ctx, EventTurnError, observability.LevelError, map[string]any{
				"session": sess.Key(),
				"error":   delta.Err.Error(),
			})
			return
		}
		if !o.send(ctx, sess, events, Event{Kind: EventContent, Content: delta.Content}) {
			return
		}
		answer.WriteString(delta.Content)
	}
	if ctx.Err() != nil {
		o.cancelled(ctx, sess)
		return
	}

	sess.Append(append(t.pending, protocol.NewMessage(protocol.RoleAssistant, answer.String()))...)

	o.emit(ctx, EventTurnCommit, observability.LevelInfo, map[string]any{
		"session":       sess.Key(),
		"rounds":        t.rounds,
		"tools":         t.invoked,
		"answer_length": answer.Len(),
	})

	o.send(ctx, sess, events, Event{Kind: EventDone})
}

// send delivers one event to the consumer, reporting false when the consumer
// is gone. A false return aborts the turn uncommitted.
func (o *Orchestrator) send(ctx context.Context, sess session.Session, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		o.cancelled(ctx, sess)
		return false
	}
}

func (o *Orchestrator) cancelled(ctx context.Context, sess session.Session) {
	o.emit(ctx, EventStreamCancelled, observability.LevelInfo, map[string]any{
		"session": sess.Key(),
	})
}

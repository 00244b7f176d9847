package orchestrator

import "github.com/stewardlabs/steward/observability"

// Observability event types emitted during a turn.
const (
	EventTurnStart       observability.EventType = "turn.start"
	EventTurnRound       observability.EventType = "turn.round"
	EventToolCall        observability.EventType = "turn.tool.call"
	EventToolComplete    observability.EventType = "turn.tool.complete"
	EventStreamStart     observability.EventType = "turn.stream.start"
	EventStreamCancelled observability.EventType = "turn.stream.cancelled"
	EventTurnCommit      observability.EventType = "turn.commit"
	EventTurnError       observability.EventType = "turn.error"
)

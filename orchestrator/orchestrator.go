// Package orchestrator implements the tool-augmented dialogue loop: given a
// user utterance it repeatedly queries the model gateway, dispatches any tool
// calls the model requests, and once the model reaches a terminal answer it
// relays the answer's token stream outward while committing the turn's
// messages to the session store only after the stream completes.
//
//	o := orchestrator.New(&cfg, gw, store, registry)
//	events, err := o.Submit(ctx, sessionKey, "List my VMs")
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/stewardlabs/steward/core/protocol"
	"github.com/stewardlabs/steward/gateway"
	"github.com/stewardlabs/steward/observability"
	"github.com/stewardlabs/steward/session"
	"github.com/stewardlabs/steward/tools"
)

// Gateway abstracts the model backend for testability. The production
// implementation is *gateway.Client.
type Gateway interface {
	Complete(ctx context.Context, msgs []protocol.Message, specs []protocol.Tool, temperature float32) (*gateway.Completion, error)
	Stream(ctx context.Context, msgs []protocol.Message, temperature float32) (<-chan gateway.Delta, error)
}

// Executor abstracts tool listing and dispatch. The production implementation
// is *tools.Registry.
type Executor interface {
	Specs() []protocol.Tool
	Execute(ctx context.Context, call protocol.ToolCall) tools.Result
}

// ToolCallRecord is one entry in a turn's tool invocation trace.
type ToolCallRecord struct {
	protocol.ToolCall
	Round   int    // Resolve round in which the call occurred.
	Result  string // Tool execution output.
	IsError bool   // Whether execution reported a failure.
}

// Option configures an Orchestrator after construction.
type Option func(*Orchestrator)

// WithObserver overrides the default NoopObserver.
func WithObserver(o observability.Observer) Option {
	return func(orc *Orchestrator) { orc.observer = o }
}

// Orchestrator drives turns against the model gateway, one per session at a
// time. Safe for concurrent use across sessions.
type Orchestrator struct {
	gateway  Gateway
	store    session.Store
	executor Executor
	observer observability.Observer
	cfg      Config
}

// New creates an Orchestrator over the given gateway, session store, and tool
// executor.
func New(cfg *Config, gw Gateway, store session.Store, executor Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:  gw,
		store:    store,
		executor: executor,
		observer: observability.NewNoopObserver(),
		cfg:      *cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// turn is the transient state of one Submit invocation: message deltas not
// yet committed, the invoked tool names in emission order, and the trace.
// Discarded when the turn ends; never shared across sessions.
type turn struct {
	window  []protocol.Message
	pending []protocol.Message
	invoked []string
	trace   []ToolCallRecord
	rounds  int
}

// Submit runs one turn for the session identified by key. It blocks through
// the tool-resolution rounds (holding the session's turn lock) and then
// returns the delivery event stream for the final answer: one status event,
// zero or more content deltas, and a terminal done event. The turn's messages
// are committed to the session atomically just before done; if ctx is
// cancelled mid-stream nothing is committed and the channel closes without a
// done event.
//
// Returns ErrModelUnavailable if a model round-trip fails, including opening
// the answer stream, and a *BudgetExceededError if the loop exhausts its
// round budget; in both cases the conversation is left unmodified.
func (o *Orchestrator) Submit(ctx context.Context, key, utterance string) (<-chan Event, error) {
	sess := o.store.Get(key)
	if err := sess.Acquire(ctx); err != nil {
		return nil, err
	}

	t, err := o.resolve(ctx, sess, utterance)
	if err != nil {
		sess.Release()
		return nil, err
	}

	// The answer stream opens here rather than in the delivery goroutine so
	// a backend failure is a Submit error, not a silently closed channel.
	deltas, err := o.gateway.Stream(ctx, o.buildMessages(t), o.cfg.AnswerTemperature)
	if err != nil {
		o.emit(ctx, EventTurnError, observability.LevelError, map[string]any{
			"session": sess.Key(),
			"error":   err.Error(),
		})
		sess.Release()
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	events := make(chan Event)
	go o.stream(ctx, sess, t, deltas, events)
	return events, nil
}

// Clear resets the conversation for the given session key.
func (o *Orchestrator) Clear(key string) {
	o.store.Clear(key)
}

// resolve drives the bounded resolve-then-respond rounds until the model
// signals a terminal answer. Tool calls within one model turn execute
// sequentially in emission order: later calls may depend on conversational
// framing established by earlier ones, and the next round needs all results
// present.
func (o *Orchestrator) resolve(ctx context.Context, sess session.Session, utterance string) (*turn, error) {
	t := &turn{
		window:  sess.Window(),
		pending: []protocol.Message{protocol.NewMessage(protocol.RoleUser, utterance)},
	}

	o.emit(ctx, EventTurnStart, observability.LevelInfo, map[string]any{
		"session":          sess.Key(),
		"utterance_length": len(utterance),
		"window":           len(t.window),
	})

	for round := 1; round <= o.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.rounds = round

		o.emit(ctx, EventTurnRound, observability.LevelVerbose, map[string]any{
			"session": sess.Key(),
			"round":   round,
		})

		comp, err := o.gateway.Complete(ctx, o.buildMessages(t), o.executor.Specs(), o.cfg.DecisionTemperature)
		if err != nil {
			o.emit(ctx, EventTurnError, observability.LevelError, map[string]any{
				"session": sess.Key(),
				"error":   err.Error(),
			})
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}

		if len(comp.ToolCalls) > 0 {
			t.pending = append(t.pending, protocol.Message{
				Role:      protocol.RoleAssistant,
				Content:   comp.Content,
				ToolCalls: comp.ToolCalls,
			})
			o.dispatch(ctx, sess, t, round, comp.ToolCalls)
			continue
		}

		if comp.FinishReason.Terminal() {
			return t, nil
		}

		// Ambiguous: no tool calls and no terminal finish reason. Record the
		// assistant turn and keep looping.
		t.pending = append(t.pending, protocol.NewMessage(protocol.RoleAssistant, comp.Content))
	}

	o.emit(ctx, EventTurnError, observability.LevelWarning, map[string]any{
		"session": sess.Key(),
		"error":   "round budget exceeded",
		"rounds":  o.cfg.MaxRounds,
	})
	return nil, &BudgetExceededError{Rounds: o.cfg.MaxRounds, Trace: t.trace}
}

func (o *Orchestrator) dispatch(ctx context.Context, sess session.Session, t *turn, round int, calls []protocol.ToolCall) {
	for _, call := range calls {
		o.emit(ctx, EventToolCall, observability.LevelVerbose, map[string]any{
			"session": sess.Key(),
			"round":   round,
			"tool":    call.Name,
		})

		result := o.executor.Execute(ctx, call)

		t.pending = append(t.pending, protocol.Message{
			Role:       protocol.RoleTool,
			Content:    result.Content,
			ToolCallID: call.ID,
		})
		t.invoked = append(t.invoked, call.Name)
		t.trace = append(t.trace, ToolCallRecord{
			ToolCall: call,
			Round:    round,
			Result:   result.Content,
			IsError:  result.IsError,
		})

		o.emit(ctx, EventToolComplete, observability.LevelVerbose, map[string]any{
			"session": sess.Key(),
			"round":   round,
			"tool":    call.Name,
			"error":   result.IsError,
		})
	}
}

// buildMessages assembles the model request history: the fixed system prompt,
// the session's retained window, and the turn's uncommitted working set.
func (o *Orchestrator) buildMessages(t *turn) []protocol.Message {
	msgs := make([]protocol.Message, 0, len(t.window)+len(t.pending)+1)
	if o.cfg.SystemPrompt != "" {
		msgs = append(msgs, protocol.NewMessage(protocol.RoleSystem, o.cfg.SystemPrompt))
	}
	msgs = append(msgs, t.window...)
	msgs = append(msgs, t.pending...)
	return msgs
}

func (o *Orchestrator) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	o.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "orchestrator",
		Data:      data,
	})
}

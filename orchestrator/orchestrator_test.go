package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stewardlabs/steward/core/protocol"
	"github.com/stewardlabs/steward/gateway"
	"github.com/stewardlabs/steward/orchestrator"
	"github.com/stewardlabs/steward/session"
	"github.com/stewardlabs/steward/tools"
)

// --- Test helpers ---

// scriptedGateway returns canned completions on successive Complete calls and
// canned deltas from Stream, recording every request for assertions.
type scriptedGateway struct {
	mu          sync.Mutex
	completions []*gateway.Completion
	errs        []error
	repeatLast  bool
	requests    [][]protocol.Message

	deltas    []string
	streamCh  chan gateway.Delta // overrides deltas when set
	streamErr error              // fails Stream when set
}

func (g *scriptedGateway) Complete(_ context.Context, msgs []protocol.Message, _ []protocol.Tool, _ float32) (*gateway.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, msgs)
	i := len(g.requests) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	if i >= len(g.completions) {
		if g.repeatLast && len(g.completions) > 0 {
			return g.completions[len(g.completions)-1], nil
		}
		return nil, errors.New("no more responses configured")
	}
	return g.completions[i], nil
}

func (g *scriptedGateway) Stream(_ context.Context, _ []protocol.Message, _ float32) (<-chan gateway.Delta, error) {
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	if g.streamCh != nil {
		return g.streamCh, nil
	}
	ch := make(chan gateway.Delta)
	go func() {
		defer close(ch)
		for _, d := range g.deltas {
			ch <- gateway.Delta{Content: d}
		}
	}()
	return ch, nil
}

func toolCallResponse(calls ...protocol.ToolCall) *gateway.Completion {
	return &gateway.Completion{ToolCalls: calls, FinishReason: gateway.FinishToolCalls}
}

func finalResponse(content string) *gateway.Completion {
	return &gateway.Completion{Content: content, FinishReason: gateway.FinishStop}
}

// stubExecutor records invocation order and serves canned results.
type stubExecutor struct {
	mu      sync.Mutex
	specs   []protocol.Tool
	results map[string]tools.Result
	invoked []string
}

func (e *stubExecutor) Specs() []protocol.Tool {
	return e.specs
}

func (e *stubExecutor) Execute(_ context.Context, call protocol.ToolCall) tools.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invoked = append(e.invoked, call.Name)
	if res, ok := e.results[call.Name]; ok {
		return res
	}
	return tools.Result{Content: "ok"}
}

func (e *stubExecutor) invocations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.invoked...)
}

func newTestOrchestrator(t *testing.T, gw orchestrator.Gateway, exec orchestrator.Executor) (*orchestrator.Orchestrator, session.Store) {
	t.Helper()
	sessCfg := session.DefaultConfig()
	store, err := session.New(&sessCfg)
	if err != nil {
		t.Fatalf("session.New() failed: %v", err)
	}
	cfg := orchestrator.DefaultConfig()
	return orchestrator.New(&cfg, gw, store, exec), store
}

// collect drains the event stream with a watchdog.
func collect(t *testing.T, events <-chan orchestrator.Event) []orchestrator.Event {
	t.Helper()
	var out []orchestrator.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close in time")
		}
	}
}

func assembled(events []orchestrator.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Kind == orchestrator.EventContent {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

// --- Tests ---

func TestSubmit_DirectAnswer(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{finalResponse("decision content, discarded")},
		deltas:      []string{"I can query ", "your cloud resources."},
	}
	exec := &stubExecutor{}
	o, store := newTestOrchestrator(t, gw, exec)

	events, err := o.Submit(context.Background(), "s1", "What can you do?")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	got := collect(t, events)

	if len(exec.invocations()) != 0 {
		t.Errorf("executor invoked %v, want none", exec.invocations())
	}
	if got[0].Kind != orchestrator.EventStatus || got[0].Status != "" {
		t.Errorf("first event = %+v, want empty status", got[0])
	}
	if last := got[len(got)-1]; last.Kind != orchestrator.EventDone {
		t.Errorf("last event = %+v, want done", last)
	}
	if text := assembled(got); text != "I can query your cloud resources." {
		t.Errorf("assembled answer = %q", text)
	}

	msgs := store.Get("s1").Messages()
	if len(msgs) != 2 {
		t.Fatalf("conversation has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != protocol.RoleUser || msgs[1].Role != protocol.RoleAssistant {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "I can query your cloud resources." {
		t.Errorf("committed answer = %q, want the streamed text", msgs[1].Content)
	}
}

func TestSubmit_ToolDispatchThenAnswer(t *testing.T) {
	call := protocol.ToolCall{ID: "call_1", Name: "list_compute_instances", Arguments: "{}"}
	gw := &scriptedGateway{
		completions: []*gateway.Completion{
			toolCallResponse(call),
			finalResponse("You have 2 instances."),
		},
		deltas: []string{"You have ", "2 instances."},
	}
	exec := &stubExecutor{
		specs:   []protocol.Tool{{Name: "list_compute_instances"}},
		results: map[string]tools.Result{"list_compute_instances": {Content: "Found 2 compute instance(s)"}},
	}
	o, store := newTestOrchestrator(t, gw, exec)

	events, err := o.Submit(context.Background(), "s1", "List my VMs")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	got := collect(t, events)

	if got[0].Kind != orchestrator.EventStatus || got[0].Status != "list_compute_instances" {
		t.Errorf("status event = %+v, want the invoked tool named before any content", got[0])
	}

	msgs := store.Get("s1").Messages()
	if len(msgs) != 4 {
		t.Fatalf("conversation has %d messages, want 4", len(msgs))
	}
	wantRoles := []protocol.Role{protocol.RoleUser, protocol.RoleAssistant, protocol.RoleTool, protocol.RoleAssistant}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, role)
		}
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant message tool calls = %+v", msgs[1].ToolCalls)
	}
	if msgs[2].ToolCallID != "call_1" || msgs[2].Content != "Found 2 compute instance(s)" {
		t.Errorf("tool message = %+v", msgs[2])
	}
	if msgs[3].Content != "You have 2 instances." {
		t.Errorf("final answer = %q", msgs[3].Content)
	}
}

func TestSubmit_ToolCallOrdering(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{
			toolCallResponse(
				protocol.ToolCall{ID: "a", Name: "tool_a", Arguments: "{}"},
				protocol.ToolCall{ID: "b", Name: "tool_b", Arguments: "{}"},
			),
			finalResponse("done"),
		},
		deltas: []string{"done"},
	}
	exec := &stubExecutor{results: map[string]tools.Result{
		"tool_a": {Content: "result a"},
		"tool_b": {Content: "result b"},
	}}
	o, store := newTestOrchestrator(t, gw, exec)

	events, err := o.Submit(context.Background(), "s1", "use both tools")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	collect(t, events)

	invoked := exec.invocations()
	if len(invoked) != 2 || invoked[0] != "tool_a" || invoked[1] != "tool_b" {
		t.Errorf("invocation order = %v, want [tool_a tool_b]", invoked)
	}

	msgs := store.Get("s1").Messages()
	// user, assistant(2 calls), tool a, tool b, assistant(final)
	if len(msgs) != 5 {
		t.Fatalf("conversation has %d messages, want 5", len(msgs))
	}
	if msgs[2].ToolCallID != "a" || msgs[3].ToolCallID != "b" {
		t.Errorf("tool message order = %s, %s, want a, b", msgs[2].ToolCallID, msgs[3].ToolCallID)
	}
}

func TestSubmit_UnknownToolContinues(t *testing.T) {
	// A real registry without the requested tool: the unknown-tool notice
	// must flow back as a tool message and the loop must keep going.
	registry := tools.NewRegistry()
	gw := &scriptedGateway{
		completions: []*gateway.Completion{
			toolCallResponse(protocol.ToolCall{ID: "c1", Name: "drop_database", Arguments: "{}"}),
			finalResponse("I cannot do that."),
		},
		deltas: []string{"I cannot do that."},
	}
	o, store := newTestOrchestrator(t, gw, registry)

	events, err := o.Submit(context.Background(), "s1", "drop the database")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	got := collect(t, events)

	if last := got[len(got)-1]; last.Kind != orchestrator.EventDone {
		t.Errorf("last event = %+v, want done", last)
	}
	msgs := store.Get("s1").Messages()
	if len(msgs) != 4 {
		t.Fatalf("conversation has %d messages, want 4", len(msgs))
	}
	if !strings.Contains(msgs[2].Content, "unknown tool") {
		t.Errorf("tool message %q does not carry the unknown-tool notice", msgs[2].Content)
	}
}

func TestSubmit_IterationBudget(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{
			toolCallResponse(protocol.ToolCall{ID: "c", Name: "flip", Arguments: "{}"}),
		},
		repeatLast: true,
	}
	exec := &stubExecutor{}
	o, store := newTestOrchestrator(t, gw, exec)

	_, err := o.Submit(context.Background(), "s1", "loop forever")

	var budgetErr *orchestrator.BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("Submit() error = %v, want BudgetExceededError", err)
	}
	cfg := orchestrator.DefaultConfig()
	if budgetErr.Rounds != cfg.MaxRounds {
		t.Errorf("rounds = %d, want %d", budgetErr.Rounds, cfg.MaxRounds)
	}
	if len(gw.requests) != cfg.MaxRounds {
		t.Errorf("model called %d times, want exactly %d", len(gw.requests), cfg.MaxRounds)
	}
	if len(budgetErr.Trace) != cfg.MaxRounds {
		t.Errorf("trace has %d records, want %d", len(budgetErr.Trace), cfg.MaxRounds)
	}
	if store.Get("s1").Len() != 0 {
		t.Error("budget failure committed messages")
	}

	// The turn lock must have been released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.Get("s1").Acquire(ctx); err != nil {
		t.Errorf("session still locked after budget failure: %v", err)
	} else {
		store.Get("s1").Release()
	}
}

func TestSubmit_ModelUnavailable(t *testing.T) {
	gw := &scriptedGateway{errs: []error{errors.New("connection refused")}}
	o, store := newTestOrchestrator(t, gw, &stubExecutor{})

	_, err := o.Submit(context.Background(), "s1", "hello")
	if !errors.Is(err, orchestrator.ErrModelUnavailable) {
		t.Fatalf("Submit() error = %v, want ErrModelUnavailable", err)
	}
	if store.Get("s1").Len() != 0 {
		t.Error("failed turn committed messages")
	}
}

func TestSubmit_StreamOpenFailure(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{finalResponse("answer")},
		repeatLast:  true,
		streamErr:   errors.New("connection refused"),
	}
	o, store := newTestOrchestrator(t, gw, &stubExecutor{})

	events, err := o.Submit(context.Background(), "s1", "hello")
	if !errors.Is(err, orchestrator.ErrModelUnavailable) {
		t.Fatalf("Submit() error = %v, want ErrModelUnavailable", err)
	}
	if events != nil {
		t.Error("failed Submit() returned an event channel")
	}
	if store.Get("s1").Len() != 0 {
		t.Error("failed turn committed messages")
	}

	// Lock released: the next turn on the same session runs normally.
	gw.streamErr = nil
	gw.deltas = []string{"answer"}

	events, err = o.Submit(context.Background(), "s1", "hello again")
	if err != nil {
		t.Fatalf("Submit() after recovery failed: %v", err)
	}
	evs := collect(t, events)
	if len(evs) == 0 || evs[len(evs)-1].Kind != orchestrator.EventDone {
		t.Fatalf("expected done event after recovery, got %v", evs)
	}
	if store.Get("s1").Len() != 2 {
		t.Errorf("expected 2 committed messages after recovery, got %d", store.Get("s1").Len())
	}
}

func TestSubmit_AmbiguousResponseContinues(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{
			{Content: "thinking...", FinishReason: gateway.FinishNone},
			finalResponse("final"),
		},
		deltas: []string{"final"},
	}
	o, store := newTestOrchestrator(t, gw, &stubExecutor{})

	events, err := o.Submit(context.Background(), "s1", "hmm")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	collect(t, events)

	msgs := store.Get("s1").Messages()
	// user, intermediate assistant, final assistant
	if len(msgs) != 3 {
		t.Fatalf("conversation has %d messages, want 3", len(msgs))
	}
	if msgs[1].Content != "thinking..." {
		t.Errorf("intermediate assistant = %q", msgs[1].Content)
	}
}

func TestSubmit_CancellationDiscardsTurn(t *testing.T) {
	streamCh := make(chan gateway.Delta)
	gw := &scriptedGateway{
		completions: []*gateway.Completion{finalResponse("")},
		streamCh:    streamCh,
	}
	o, store := newTestOrchestrator(t, gw, &stubExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := o.Submit(ctx, "s1", "stream then vanish")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	// Consume the status event and one delta, then disconnect.
	if ev := <-events; ev.Kind != orchestrator.EventStatus {
		t.Fatalf("first event = %+v, want status", ev)
	}
	streamCh <- gateway.Delta{Content: "partial "}
	if ev := <-events; ev.Kind != orchestrator.EventContent {
		t.Fatalf("second event = %+v, want content", ev)
	}
	cancel()
	close(streamCh)

	for ev := range events {
		if ev.Kind == orchestrator.EventDone {
			t.Error("done event emitted after cancellation")
		}
	}
	if got := store.Get("s1").Len(); got != 0 {
		t.Errorf("cancelled turn committed %d messages, want 0", got)
	}

	// Round trip: the session must be usable as if the turn never happened.
	acquireCtx, acquireCancel := context.WithTimeout(context.Background(), time.Second)
	defer acquireCancel()
	if err := store.Get("s1").Acquire(acquireCtx); err != nil {
		t.Errorf("session still locked after cancellation: %v", err)
	} else {
		store.Get("s1").Release()
	}
}

func TestSubmit_SameSessionSerialized(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{finalResponse("one"), finalResponse("two")},
		deltas:      []string{"answer"},
	}
	o, store := newTestOrchestrator(t, gw, &stubExecutor{})

	first, err := o.Submit(context.Background(), "s1", "first")
	if err != nil {
		t.Fatalf("first Submit() failed: %v", err)
	}

	secondDone := make(chan []orchestrator.Event, 1)
	go func() {
		events, err := o.Submit(context.Background(), "s1", "second")
		if err != nil {
			t.Errorf("second Submit() failed: %v", err)
			secondDone <- nil
			return
		}
		secondDone <- collect(t, events)
	}()

	select {
	case <-secondDone:
		t.Fatal("second Submit() completed while first turn still streaming")
	case <-time.After(50 * time.Millisecond):
	}

	collect(t, first)
	select {
	case <-secondDone:
	case <-time.After(5 * time.Second):
		t.Fatal("second Submit() never proceeded after first committed")
	}

	if got := store.Get("s1").Len(); got != 4 {
		t.Errorf("conversation has %d messages after two turns, want 4", got)
	}
}

func TestSubmit_WindowBoundsModelHistory(t *testing.T) {
	sessCfg := session.Config{Retain: 20, Window: 4}
	store, err := session.New(&sessCfg)
	if err != nil {
		t.Fatalf("session.New() failed: %v", err)
	}
	sess := store.Get("s1")
	for i := 0; i < 15; i++ {
		sess.Append(protocol.NewMessage(protocol.RoleUser, "old"))
	}

	gw := &scriptedGateway{
		completions: []*gateway.Completion{finalResponse("ok")},
		deltas:      []string{"ok"},
	}
	cfg := orchestrator.DefaultConfig()
	o := orchestrator.New(&cfg, gw, store, &stubExecutor{})

	events, err := o.Submit(context.Background(), "s1", "new question")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	collect(t, events)

	// system + window(4) + current user = 6, regardless of the 15 retained.
	req := gw.requests[0]
	if len(req) != 6 {
		t.Fatalf("model received %d messages, want 6", len(req))
	}
	if req[0].Role != protocol.RoleSystem {
		t.Errorf("first message role = %s, want system", req[0].Role)
	}
	if last := req[len(req)-1]; last.Role != protocol.RoleUser || last.Content != "new question" {
		t.Errorf("last message = %+v, want the current utterance", last)
	}
}

func TestClear(t *testing.T) {
	gw := &scriptedGateway{
		completions: []*gateway.Completion{finalResponse("a"), finalResponse("b")},
		deltas:      []string{"x"},
	}
	o, store := newTestOrchestrator(t, gw, &stubExecutor{})

	events, err := o.Submit(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	collect(t, events)

	o.Clear("s1")
	if got := store.Get("s1").Len(); got != 0 {
		t.Fatalf("Clear() left %d messages", got)
	}

	// A subsequent turn behaves as if the session were new.
	events, err = o.Submit(context.Background(), "s1", "again")
	if err != nil {
		t.Fatalf("Submit() after Clear() failed: %v", err)
	}
	collect(t, events)
	if got := store.Get("s1").Len(); got != 2 {
		t.Errorf("conversation has %d messages, want 2", got)
	}
}

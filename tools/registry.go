// Package tools provides the closed catalog of invocable tools and the
// executor that dispatches model-issued tool calls against it.
//
// The catalog is populated once at process start; at runtime it is read-only.
// Execution follows a soft-failure contract: an unknown tool name, arguments
// that do not satisfy the declared schema, or a handler error all produce a
// normal Result whose content describes the problem, never an error to the
// caller. The model reacts to the failure text on its next turn.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stewardlabs/steward/core/protocol"
)

// Handler is the function signature for tool implementations.
// Handlers receive the request context and JSON-encoded arguments that have
// already been validated against the tool's parameter schema.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is the tool execution output that feeds back into the next model
// turn. IsError signals to the model that the invocation failed.
type Result struct {
	Content string
	IsError bool
}

type entry struct {
	tool    protocol.Tool
	schema  *jsonschema.Schema
	handler Handler
}

// Registry maps tool names to handlers and holds the specs advertised to the
// model. Specs are returned in registration order so the model sees a stable
// catalog across turns. Thread-safe for concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool to the registry, compiling its parameter schema.
// Returns ErrEmptyName for a nameless tool, ErrAlreadyExists for a duplicate,
// or a compile error for an invalid schema.
func (r *Registry) Register(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	schema, err := compileSchema(tool)
	if err != nil {
		return fmt.Errorf("tool %s: %w", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, schema: schema, handler: handler}
	r.order = append(r.order, tool.Name)
	return nil
}

// Resolve retrieves a handler by tool name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// Specs returns the definitions of all registered tools in registration order.
func (r *Registry) Specs() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]protocol.Tool, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.entries[name].tool)
	}
	return specs
}

// Execute dispatches a tool call to its registered handler and always returns
// a Result. Unknown tools, schema-invalid arguments, and handler errors fold
// into an IsError Result rather than propagating; every call yields content
// the orchestrator can append as a tool message.
func (r *Registry) Execute(ctx context.Context, call protocol.ToolCall) Result {
	r.mu.RLock()
	e, exists := r.entries[call.Name]
	r.mu.RUnlock()

	if !exists {
		return Result{
			Content: fmt.Sprintf("unknown tool: %s", call.Name),
			IsError: true,
		}
	}

	args := json.RawMessage(call.Arguments)
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return Result{
			Content: fmt.Sprintf("invalid arguments for tool %s: %v", call.Name, err),
			IsError: true,
		}
	}
	if err := e.schema.Validate(decoded); err != nil {
		return Result{
			Content: fmt.Sprintf("arguments for tool %s do not match its schema: %v", call.Name, err),
			IsError: true,
		}
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return Result{
			Content: fmt.Sprintf("tool %s failed: %v", call.Name, err),
			IsError: true,
		}
	}
	return result
}

func compileSchema(tool protocol.Tool) (*jsonschema.Schema, error) {
	params := tool.Parameters
	if params == nil {
		params = map[string]any{"type": "object"}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameter schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	url := tool.Name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add parameter schema: %w", err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return schema, nil
}

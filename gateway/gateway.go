// Package gateway is the model gateway: it builds chat-completion requests
// against an OpenAI-compatible backend (vLLM) and exposes a single-shot call
// for tool-decision turns and a streaming call for the final answer turn.
//
// The gateway separates content from tool calls structurally but does not
// interpret model output beyond that; deciding what a response means is the
// orchestrator's job.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stewardlabs/steward/core/protocol"
)

// FinishReason is the backend's indication of why generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishNone      FinishReason = ""
)

// Terminal reports whether the reason marks a final answer rather than a
// request for further action.
func (f FinishReason) Terminal() bool {
	return f == FinishStop || f == FinishLength
}

// Completion is the structured result of a single-shot model round-trip.
type Completion struct {
	Content      string
	ToolCalls    []protocol.ToolCall
	FinishReason FinishReason
}

// Delta is one element of a streaming completion: an incremental text
// fragment, or the error that ended the stream early. The delta sequence is
// finite and not restartable.
type Delta struct {
	Content string
	Err     error
}

// Client talks to one OpenAI-compatible chat-completion backend.
// Safe for concurrent use.
type Client struct {
	api *openai.Client
	cfg Config
}

// New creates a Client from configuration.
func New(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gateway: model name is required")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL

	return &Client{
		api: openai.NewClientWithConfig(apiCfg),
		cfg: *cfg,
	}, nil
}

// Complete performs one blocking round-trip with the tool catalog attached.
// Used for tool-decision turns; temperature is a per-call policy knob and is
// pinned to zero by the default orchestrator configuration.
func (c *Client) Complete(ctx context.Context, msgs []protocol.Message, specs []protocol.Tool, temperature float32) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.requestTimeout())
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toAPIMessages(msgs),
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if len(specs) > 0 {
		req.Tools = toAPITools(specs)
		req.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("backend returned no choices")
	}

	choice := resp.Choices[0]
	return &Completion{
		Content:      choice.Message.Content,
		ToolCalls:    fromAPIToolCalls(choice.Message.ToolCalls),
		FinishReason: FinishReason(choice.FinishReason),
	}, nil
}

// Stream opens a streaming completion for the final, tool-free answer turn
// and returns its delta sequence. The channel closes when the backend signals
// end of stream or the context is cancelled; an early failure arrives as a
// Delta carrying Err.
func (c *Client) Stream(ctx context.Context, msgs []protocol.Message, temperature float32) (<-chan Delta, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toAPIMessages(msgs),
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}

	deltas := make(chan Delta)
	go func() {
		defer close(deltas)
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case deltas <- Delta{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case deltas <- Delta{Content: content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return deltas, nil
}

func toAPIMessages(msgs []protocol.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		converted = append(converted, m)
	}
	return converted
}

func toAPITools(specs []protocol.Tool) []openai.Tool {
	converted := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return converted
}

func fromAPIToolCalls(calls []openai.ToolCall) []protocol.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	converted := make([]protocol.ToolCall, 0, len(calls))
	for _, call := range calls {
		converted = append(converted, protocol.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return converted
}

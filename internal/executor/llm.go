package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"durableagent/internal/capabilities"
	"durableagent/internal/llmprovider"
	"durableagent/internal/session"
)

// LLMExecutor drives a llmprovider.Provider's streaming chunk producer,
// accumulating deltas into content/tool_calls and publishing a
// stream_chunk per chunk and a stream_end on completion — the same
// "consume channel, accumulate into blocks, broadcast per chunk, finalize
// on completion" shape as meridian's
// TurnExecutor.processDelta/handleCompletion
// (internal/service/llm/turn_executor.go), adapted from turn blocks to the
// spec's message/tool-call accumulation.
type LLMExecutor struct {
	Providers       *llmprovider.Registry
	DefaultProvider string
	DefaultModel    string
	Stream          session.EventStream
	Temperature     float64

	// Pricing resolves a per-call cost from token usage. Nil is valid:
	// calls are then unpriced (CostDelta stays whatever the provider's
	// own Metadata.CostDelta carries, typically zero for mock providers).
	Pricing *capabilities.Registry
}

func (e *LLMExecutor) Execute(ctx context.Context, task session.QueuedTask, state *session.Session) (*session.ExecutionResult, error) {
	newState := state.Clone()
	var events []session.Event

	provider, ok := e.Providers.Get(e.DefaultProvider)
	if !ok {
		return nil, fmt.Errorf("llm executor: no provider registered for %q", e.DefaultProvider)
	}

	if err := publish(ctx, e.Stream, task.SessionID, &session.Event{
		Type: session.EventStreamStart, StepIndex: task.StepIndex, Timestamp: nowMillis(),
	}, &events); err != nil {
		return nil, err
	}

	req := llmprovider.Request{
		Messages:    newState.Messages,
		Model:       e.DefaultModel,
		Provider:    e.DefaultProvider,
		Temperature: e.Temperature,
	}
	ch, err := provider.StreamResponse(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm executor: start stream: %w", err)
	}

	var fullContent string
	var toolCalls []session.ToolCall
	var meta *llmprovider.Metadata

	for evt := range ch {
		if evt.Error != nil {
			errEvt := newEvent(session.EventError, task.StepIndex, map[string]string{
				"phase": "call_llm", "error": evt.Error.Error(),
			})
			_ = publish(ctx, e.Stream, task.SessionID, &errEvt, &events)
			return &session.ExecutionResult{Events: events, NewState: newState}, fmt.Errorf("llm executor: stream fault: %w", evt.Error)
		}
		if evt.Delta != nil {
			if evt.Delta.ChunkType == llmprovider.ChunkToolCalls {
				toolCalls = append(toolCalls, evt.Delta.ToolCalls...)
			} else {
				fullContent += evt.Delta.Content
			}
			chunkEvt := newEvent(session.EventStreamChunk, task.StepIndex, map[string]interface{}{
				"chunk_type":   evt.Delta.ChunkType,
				"content":      evt.Delta.Content,
				"full_content": fullContent,
				"tool_calls":   evt.Delta.ToolCalls,
			})
			if err := publish(ctx, e.Stream, task.SessionID, &chunkEvt, &events); err != nil {
				return nil, err
			}
		}
		if evt.Metadata != nil {
			meta = evt.Metadata
		}
	}

	if meta == nil {
		meta = &llmprovider.Metadata{FinalContent: fullContent, ToolCalls: toolCalls}
	}

	endEvt := newEvent(session.EventStreamEnd, task.StepIndex, map[string]interface{}{
		"final_content": meta.FinalContent,
		"tool_calls":    meta.ToolCalls,
		"reasoning":     meta.Reasoning,
		"grounding":     meta.Grounding,
		"image_list":    meta.ImageList,
	})
	if err := publish(ctx, e.Stream, task.SessionID, &endEvt, &events); err != nil {
		return nil, err
	}

	newState.Messages = append(newState.Messages, session.Message{
		Role:      session.RoleAssistant,
		Content:   meta.FinalContent,
		ToolCalls: meta.ToolCalls,
	})
	costDelta := meta.CostDelta
	if e.Pricing != nil {
		if pricing, ok := e.Pricing.GetModelPricing(e.DefaultProvider, e.DefaultModel); ok {
			costDelta = pricing.EstimateCost(meta.Usage.PromptTokens, meta.Usage.CompletionTokens)
		}
	}
	newState.Cost.Total += costDelta
	newState.Usage.PromptTokens += meta.Usage.PromptTokens
	newState.Usage.CompletionTokens += meta.Usage.CompletionTokens
	newState.Usage.TotalTokens += meta.Usage.TotalTokens

	payload := LLMResultPayload{
		Result:       meta.FinalContent,
		ToolCalls:    meta.ToolCalls,
		HasToolCalls: len(meta.ToolCalls) > 0,
	}
	payloadBytes, _ := json.Marshal(payload)

	return &session.ExecutionResult{
		Events:   events,
		NewState: newState,
		NextContext: &session.RuntimeContext{
			Phase:   session.PhaseLLMResult,
			Payload: payloadBytes,
			Session: session.SessionSnapshot{
				StepCount:    newState.StepCount,
				MessageCount: len(newState.Messages),
				Status:       newState.Status,
			},
		},
	}, nil
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
)

// AnthropicLLM implements ports.LLMPort against the Claude Messages API,
// using the official SDK's streaming accumulator instead of hand-rolled
// SSE parsing.
type AnthropicLLM struct {
	client anthropic.Client
	model  string
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &AnthropicLLM{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (l *AnthropicLLM) Name() string { return "anthropic-llm" }

// Stream drives one Messages.NewStreaming call, forwarding text deltas
// as they arrive and emitting a FunctionCall chunk per tool_use block
// once the accumulated message is known to be complete.
func (l *AnthropicLLM) Stream(ctx context.Context, messages []frame.Message, tools []ports.ToolSchema, onChunk func(ports.LLMChunk) error) error {
	var system string
	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case frame.RoleSystem:
			system = m.Content
		case frame.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case frame.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case frame.RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(l.model),
		MaxTokens: 1024,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters["properties"]},
			},
		})
	}

	stream := l.client.Messages.NewStreaming(ctx, params)
	var accumulated anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := accumulated.Accumulate(event); err != nil {
			return fmt.Errorf("anthropic: accumulate stream event: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if err := onChunk(ports.LLMChunk{Text: text.Text}); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic: stream: %w", err)
	}

	finish := "stop"
	for _, block := range accumulated.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			args, _ := json.Marshal(tu.Input)
			finish = "tool_calls"
			if err := onChunk(ports.LLMChunk{
				FunctionCall: &ports.FunctionCall{ID: tu.ID, Name: tu.Name, Arguments: string(args)},
			}); err != nil {
				return err
			}
		}
	}
	return onChunk(ports.LLMChunk{FinishReason: finish})
}

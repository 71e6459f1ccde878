package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
)

// OpenAILLM implements ports.LLMPort over the Chat Completions streaming
// API, accumulating fragmented tool-call deltas by index the way the
// SDK's own examples do.
type OpenAILLM struct {
	client openai.Client
	model  string
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (l *OpenAILLM) Name() string { return "openai-llm" }

func (l *OpenAILLM) Stream(ctx context.Context, messages []frame.Message, tools []ports.ToolSchema, onChunk func(ports.LLMChunk) error) error {
	var msgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case frame.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case frame.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case frame.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case frame.RoleTool:
			msgs = append(msgs, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(l.model),
		Messages: msgs,
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}

	stream := l.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	type toolAccum struct {
		id, name, args string
	}
	accum := map[int64]*toolAccum{}

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if err := onChunk(ports.LLMChunk{Text: choice.Delta.Content}); err != nil {
				return err
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			cur, ok := accum[tc.Index]
			if !ok {
				cur = &toolAccum{}
				accum[tc.Index] = cur
			}
			if tc.ID != "" {
				cur.id = tc.ID
			}
			if tc.Function.Name != "" {
				cur.name = tc.Function.Name
			}
			cur.args += tc.Function.Arguments
		}

		if choice.FinishReason == "tool_calls" {
			for _, tc := range accum {
				if err := onChunk(ports.LLMChunk{
					FunctionCall: &ports.FunctionCall{ID: tc.id, Name: tc.name, Arguments: tc.args},
				}); err != nil {
					return err
				}
			}
		}
		if choice.FinishReason != "" {
			if err := onChunk(ports.LLMChunk{FinishReason: choice.FinishReason}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

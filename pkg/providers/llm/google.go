package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
)

// GoogleLLM implements ports.LLMPort over the Gemini API via the
// official genai SDK's streaming content iterator.
type GoogleLLM struct {
	client *genai.Client
	model  string
}

func NewGoogleLLM(apiKey string, model string) (*GoogleLLM, error) {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &GoogleLLM{client: client, model: model}, nil
}

func (l *GoogleLLM) Name() string { return "google-llm" }

func (l *GoogleLLM) Stream(ctx context.Context, messages []frame.Message, tools []ports.ToolSchema, onChunk func(ports.LLMChunk) error) error {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case frame.RoleSystem:
			system = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}, Role: "user"}
		case frame.RoleUser:
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: m.Content}}, Role: "user"})
		case frame.RoleAssistant:
			contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: m.Content}}, Role: "model"})
		case frame.RoleTool:
			var result map[string]any
			if err := json.Unmarshal([]byte(m.Content), &result); err != nil || result == nil {
				result = map[string]any{"result": m.Content}
			}
			contents = append(contents, &genai.Content{
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{Name: m.ToolCallID, Response: result}}},
				Role:  "user",
			})
		}
	}

	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	for _, t := range tools {
		cfg.Tools = append(cfg.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertSchema(t.Parameters),
			}},
		})
	}

	finish := "stop"
	for resp, err := range l.client.Models.GenerateContentStream(ctx, l.model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("google: stream: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				if err := onChunk(ports.LLMChunk{Text: part.Text}); err != nil {
					return err
				}
			}
			if part.FunctionCall != nil {
				finish = "tool_calls"
				args, _ := json.Marshal(part.FunctionCall.Args)
				if err := onChunk(ports.LLMChunk{
					FunctionCall: &ports.FunctionCall{ID: part.FunctionCall.ID, Name: part.FunctionCall.Name, Arguments: string(args)},
				}); err != nil {
					return err
				}
			}
		}
	}
	return onChunk(ports.LLMChunk{FinishReason: finish})
}

func convertSchema(params map[string]any) *genai.Schema {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var s genai.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

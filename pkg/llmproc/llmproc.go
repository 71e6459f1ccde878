// Package llmproc implements the LLM Processor of spec.md §4.8: prompt
// assembly, streaming generation, the function-calling loop, and
// sentence-segmented forwarding to TTS with tag extraction.
package llmproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/internal/metrics"
	"github.com/callcore-ai/callcore/pkg/fsm"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
	"github.com/callcore-ai/callcore/pkg/tools"
)

// maxToolCallDepth is the safety cap of spec.md §4.8: "no fixed call-depth
// limit beyond a safety cap (default 4)".
const maxToolCallDepth = 4

const metaPrompt = `You are a real-time voice agent. Speak naturally, in short
spoken sentences, never use markdown or bullet points. If the caller asks to
end the call, include the literal token [END_CALL] at the end of your
response. If the caller must be transferred to a human, include [TRANSFER].
To send touch-tone digits, include [DTMF:digits].`

// Outcome is returned after a generation completes, describing any
// scheduled side effects the Orchestrator must carry out once TTS drains.
type Outcome struct {
	ShouldHangup   bool
	ShouldTransfer bool
	DTMFDigits     string
}

// Processor drives one call's conversation_history against an LLMPort,
// with tool execution wired through a Registry and FSM transitions for
// ToolExecuting.
type Processor struct {
	port          ports.LLMPort
	registry      *tools.Registry
	fsmGate       *fsm.FSM
	log           logging.Logger
	systemPrompt  string
	contextWindow int
	dynamicVars   map[string]string

	history []frame.Message
}

// New builds an LLM processor. systemPrompt and contextWindow come from
// the call's resolved AgentConfig.
func New(port ports.LLMPort, registry *tools.Registry, fsmGate *fsm.FSM, systemPrompt string, contextWindow int, dynamicVars map[string]string, log logging.Logger) *Processor {
	if log == nil {
		log = logging.NoOp{}
	}
	if contextWindow <= 0 {
		contextWindow = 20
	}
	return &Processor{
		port:          port,
		registry:      registry,
		fsmGate:       fsmGate,
		log:           log,
		systemPrompt:  substituteVars(systemPrompt, dynamicVars),
		contextWindow: contextWindow,
		dynamicVars:   dynamicVars,
	}
}

// History returns a copy of the append-only conversation history.
func (p *Processor) History() []frame.Message {
	out := make([]frame.Message, len(p.history))
	copy(out, p.history)
	return out
}

// AppendUserTurn appends a user message to history, e.g. the filtered
// TextFrame produced by the STT processor.
func (p *Processor) AppendUserTurn(text string) {
	p.history = append(p.history, frame.Message{Role: frame.RoleUser, Content: text})
}

// Generate drives one full turn: prompt assembly, streaming, sentence
// segmentation, the function-call loop, and the post-stream tag
// extraction. onSentence is called for each TTS-ready TextFrame.
// Returns the turn's Outcome once the stream (and any tool re-invocation
// chain) is exhausted or cancelled.
func (p *Processor) Generate(ctx context.Context, onSentence func(frame.TextFrame)) (Outcome, error) {
	var outcome Outcome

	for depth := 0; ; depth++ {
		if depth > maxToolCallDepth {
			p.history = append(p.history, frame.Message{
				Role:    frame.RoleAssistant,
				Content: "I'm having trouble completing that request right now.",
			})
			metrics.Errors.WithLabelValues("llmproc", "tool_depth_exceeded").Inc()
			return outcome, nil
		}

		messages := p.assemblePrompt()
		seg := newSegmenter()
		var pendingCall *ports.FunctionCall
		var fullText strings.Builder

		err := p.port.Stream(ctx, messages, p.registry.Schemas(), func(chunk ports.LLMChunk) error {
			if chunk.FunctionCall != nil {
				pendingCall = chunk.FunctionCall
				return nil
			}
			if chunk.Text != "" {
				fullText.WriteString(chunk.Text)
				for _, sentence := range seg.feed(chunk.Text) {
					p.emitSentence(sentence, &outcome, onSentence)
				}
			}
			return nil
		})

		if ctx.Err() != nil {
			// Cancellation: flush remainder, mark interrupted, preserve context.
			if rest := seg.flush(); rest != "" {
				p.emitSentence(rest, &outcome, onSentence)
			}
			text := fullText.String()
			if text == "" {
				text = "[INTERRUPTED]"
			} else {
				text = "[INTERRUPTED] " + text
			}
			p.history = append(p.history, frame.Message{Role: frame.RoleAssistant, Content: text})
			return outcome, ctx.Err()
		}
		if err != nil {
			metrics.Errors.WithLabelValues("llmproc", "generation_failed").Inc()
			return outcome, fmt.Errorf("llmproc: generation failed: %w", err)
		}

		if pendingCall == nil {
			if rest := seg.flush(); rest != "" {
				p.emitSentence(rest, &outcome, onSentence)
			}
			p.history = append(p.history, frame.Message{Role: frame.RoleAssistant, Content: fullText.String()})
			return outcome, nil
		}

		// Function call: record the call marker, execute, re-invoke.
		p.history = append(p.history, frame.Message{
			Role:    frame.RoleAssistant,
			Content: fmt.Sprintf("[TOOL_CALL: %s]", pendingCall.Name),
		})
		p.fsmGate.Transition(frame.StateToolExecuting)

		resp := p.registry.Execute(ctx, tools.Request{
			Tool: pendingCall.Name,
			Args: json.RawMessage(pendingCall.Arguments),
		})
		resultJSON, _ := json.Marshal(resp)

		p.history = append(p.history, frame.Message{
			Role:       frame.RoleTool,
			Content:    string(resultJSON),
			ToolCallID: pendingCall.ID,
		})
		p.fsmGate.Transition(frame.StateProcessing)
	}
}

// emitSentence strips control tags from a flushed sentence, records
// their side effects on outcome, and — if anything remains — forwards
// it downstream.
func (p *Processor) emitSentence(sentence string, outcome *Outcome, onSentence func(frame.TextFrame)) {
	cleaned := stripTags(sentence, outcome)
	if strings.TrimSpace(cleaned) == "" {
		return
	}
	onSentence(frame.TextFrame{Text: cleaned, Role: frame.RoleAssistant})
}

func (p *Processor) assemblePrompt() []frame.Message {
	out := make([]frame.Message, 0, p.contextWindow+1)
	out = append(out, frame.Message{Role: frame.RoleSystem, Content: metaPrompt + "\n\n" + p.systemPrompt})

	hist := p.history
	if len(hist) > p.contextWindow {
		hist = hist[len(hist)-p.contextWindow:]
	}
	out = append(out, hist...)
	return out
}

func substituteVars(prompt string, vars map[string]string) string {
	if len(vars) == 0 {
		return prompt
	}
	for k, v := range vars {
		prompt = strings.ReplaceAll(prompt, "{"+k+"}", v)
	}
	return prompt
}

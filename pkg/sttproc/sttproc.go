// Package sttproc adapts ports.STTPort into a pipeline stage (spec.md
// §4.10): filters echo and blacklisted/impact-noise recognitions before
// a clean TextFrame ever reaches the LLM, and refreshes the idle timer
// on every recognition.
package sttproc

import (
	"context"
	"strings"
	"sync"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/internal/metrics"
	"github.com/callcore-ai/callcore/pkg/controlchannel"
	"github.com/callcore-ai/callcore/pkg/fsm"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
	"github.com/callcore-ai/callcore/pkg/vad"
)

// defaultStopWords mirrors spec.md §4.10's example set; callers may
// extend it via WithStopWords.
var defaultStopWords = map[string]struct{}{
	"espera": {}, "para": {}, "stop": {}, "wait": {}, "alto": {},
}

// Processor wraps one call's STTPort and applies the blacklist/VAD/echo
// filtering chain to every final recognition before emitting a
// TextFrame downstream.
type Processor struct {
	port   ports.STTPort
	fsm    *fsm.FSM
	cc     *controlchannel.ControlChannel
	log    logging.Logger
	profile   *vad.Profile
	blacklist *vad.Blacklist
	minCharsBlacklist int

	interruptionThresholdChars int
	stopWords                  map[string]struct{}

	mu              sync.Mutex
	lastInteraction func()
	turnMaxRMS      float64
}

// Option configures a Processor at construction.
type Option func(*Processor)

func WithStopWords(words []string) Option {
	return func(p *Processor) {
		set := make(map[string]struct{}, len(defaultStopWords)+len(words))
		for w := range defaultStopWords {
			set[w] = struct{}{}
		}
		for _, w := range words {
			set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
		p.stopWords = set
	}
}

func WithInterruptionThreshold(chars int) Option {
	return func(p *Processor) { p.interruptionThresholdChars = chars }
}

// New builds an STT processor bound to one call's port, FSM and control
// channel. onInteraction is invoked on every partial or final
// recognition to reset the idle timer.
func New(port ports.STTPort, fsmGate *fsm.FSM, cc *controlchannel.ControlChannel, blacklist []string, onInteraction func(), log logging.Logger, opts ...Option) *Processor {
	if log == nil {
		log = logging.NoOp{}
	}
	p := &Processor{
		port:                       port,
		fsm:                        fsmGate,
		cc:                         cc,
		log:                        log,
		profile:                    vad.New(),
		blacklist:                  vad.NewBlacklist(blacklist),
		minCharsBlacklist:          6,
		interruptionThresholdChars: 15,
		stopWords:                  defaultStopWords,
		lastInteraction:            onInteraction,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NoteTurnRMS records the max RMS observed for the turn currently being
// transcribed, used by the VAD filter's impact-noise/too-quiet rules.
func (p *Processor) NoteTurnRMS(rms float64) {
	p.mu.Lock()
	if rms > p.turnMaxRMS {
		p.turnMaxRMS = rms
	}
	p.mu.Unlock()
	p.profile.Update(rms)
}

// resetTurn clears the accumulated turn RMS once a recognition (final
// or discarded) has been resolved.
func (p *Processor) resetTurn() {
	p.mu.Lock()
	p.turnMaxRMS = 0
	p.mu.Unlock()
}

// Start begins streaming audio from the port and returns the channel to
// feed raw audio into. onTextFrame receives accepted, filtered
// TextFrames for the downstream LLM stage.
func (p *Processor) Start(ctx context.Context, lang string, onTextFrame func(frame.TextFrame)) (chan<- []byte, error) {
	return p.port.StreamTranscribe(ctx, lang, func(transcript string, isFinal bool) error {
		if p.lastInteraction != nil {
			p.lastInteraction()
		}
		if !isFinal {
			return nil
		}
		defer p.resetTurn()

		p.mu.Lock()
		turnRMS := p.turnMaxRMS
		p.mu.Unlock()

		if p.blacklist.Contains(transcript) {
			metrics.Errors.WithLabelValues("sttproc", "blacklisted").Inc()
			p.log.Debug("sttproc: dropped blacklisted phrase", "text", transcript)
			return nil
		}

		if drop, reason := p.profile.ShouldFilter(transcript, turnRMS, p.minCharsBlacklist); drop {
			p.log.Debug("sttproc: dropped by vad filter", "reason", reason, "text", transcript)
			return nil
		}

		if p.fsm.State() == frame.StateSpeaking && p.isLikelyEcho(transcript) {
			p.log.Debug("sttproc: dropped as echo during playback", "text", transcript)
			return nil
		}

		onTextFrame(frame.TextFrame{Text: transcript, Role: frame.RoleUser})
		if p.fsm.CanInterrupt() {
			p.cc.Send(frame.ControlSignal{Kind: frame.ControlInterrupt, Text: transcript}, nil)
		}
		return nil
	})
}

// isLikelyEcho implements spec.md §4.10's short-utterance-while-speaking
// heuristic: short text that isn't a recognized stop word, while the bot
// is Speaking, is treated as a TTS echo rather than a real interruption.
func (p *Processor) isLikelyEcho(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if runeLen(trimmed) >= p.interruptionThresholdChars {
		return false
	}
	_, isStopWord := p.stopWords[strings.ToLower(trimmed)]
	return !isStopWord
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

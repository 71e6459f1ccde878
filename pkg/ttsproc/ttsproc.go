// Package ttsproc implements the TTS Processor of spec.md §4.9: SSML
// assembly from VoiceConfig, the can_speak() gate, and handoff to the
// AudioManager.
package ttsproc

import (
	"context"
	"fmt"
	"time"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/pkg/agentconfig"
	"github.com/callcore-ai/callcore/pkg/audiomanager"
	"github.com/callcore-ai/callcore/pkg/codec"
	"github.com/callcore-ai/callcore/pkg/fsm"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
)

// Processor wraps a TTSPort, gating every emission on the call's FSM
// and forwarding decoded PCM to the AudioManager's pacing queue.
type Processor struct {
	port    ports.TTSPort
	fsmGate *fsm.FSM
	am      *audiomanager.AudioManager
	voice   agentconfig.VoiceConfig
	lang    string
	format  audiomanager.Format
	pacing  time.Duration
	log     logging.Logger

	onChunkSent func([]int16)
}

// OnChunkSent registers a callback invoked with every decoded PCM chunk
// handed to the AudioManager, letting the Session feed its echo
// suppressor the exact audio the caller may hear played back.
func (p *Processor) OnChunkSent(fn func([]int16)) {
	p.onChunkSent = fn
}

// New builds a TTS processor bound to one call's port, FSM, and
// AudioManager. format selects telephony mulaw vs. browser linear16
// decoding of the port's returned audio bytes.
func New(port ports.TTSPort, fsmGate *fsm.FSM, am *audiomanager.AudioManager, voice agentconfig.VoiceConfig, lang string, format audiomanager.Format, pacingMs int, log logging.Logger) *Processor {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Processor{
		port:    port,
		fsmGate: fsmGate,
		am:      am,
		voice:   voice,
		lang:    lang,
		format:  format,
		pacing:  time.Duration(pacingMs) * time.Millisecond,
		log:     log,
	}
}

// Speak synthesizes text and streams it to the AudioManager. At entry it
// proceeds only if CanSpeak() holds or the FSM is already Speaking; each
// streamed chunk is then dropped once the FSM has left Speaking, so a
// barge-in that races synthesis still suppresses ghost audio.
func (p *Processor) Speak(ctx context.Context, f frame.TextFrame) error {
	state := p.fsmGate.State()
	if state != frame.StateSpeaking && !p.fsmGate.CanSpeak() {
		p.log.Debug("ttsproc: dropped, cannot speak", "text", f.Text)
		return nil
	}
	if state != frame.StateSpeaking {
		p.fsmGate.Transition(frame.StateSpeaking)
	}

	ssml := buildSSML(f.Text, p.voice, p.lang)

	err := p.port.StreamSynthesize(ctx, ssml, p.voice.Name, p.lang, func(chunk []byte) error {
		if p.fsmGate.State() != frame.StateSpeaking {
			// Barge-in flipped the FSM out of Speaking mid-stream; stop
			// emitting but let the port finish draining its own buffers.
			return nil
		}
		pcm := decodeChunk(p.format, chunk)
		p.am.SendChunked(pcm)
		if p.onChunkSent != nil {
			p.onChunkSent(pcm)
		}
		if p.pacing > 0 {
			select {
			case <-time.After(p.pacing):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ttsproc: synthesis failed: %w", err)
	}
	return nil
}

func decodeChunk(format audiomanager.Format, chunk []byte) []int16 {
	if format == audiomanager.FormatMulawTelephony {
		return codec.UlawToLinear16(chunk)
	}
	out := make([]int16, len(chunk)/2)
	for i := range out {
		out[i] = int16(chunk[2*i]) | int16(chunk[2*i+1])<<8
	}
	return out
}

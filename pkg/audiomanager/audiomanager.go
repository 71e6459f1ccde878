// Package audiomanager implements outbound audio pacing (spec.md §4.3):
// buffers synthesized audio, emits fixed-size frames on a 20ms cadence,
// overlays an optional background loop, and clears on barge-in. The
// stream loop is a single cooperative goroutine driven by a monotonic
// deadline, matching the teacher's goroutine+channel concurrency idiom.
package audiomanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/pkg/codec"
	"github.com/callcore-ai/callcore/pkg/transport"
)

const (
	tickInterval   = 20 * time.Millisecond
	telephonyFrame = 160 // 20ms @ 8kHz G.711, 1 byte/sample
	bgGain         = 0.15
)

// Format selects the outbound encoding AudioManager mixes and sends.
type Format string

const (
	FormatMulawTelephony Format = "mulaw"
	FormatLinear16Browser Format = "linear16"
)

// AudioManager paces one call's outbound audio. FSM gating (can_speak)
// is the TTS processor's responsibility, decided before it ever calls
// SendChunked; AudioManager itself only paces and mixes.
type AudioManager struct {
	transport transport.AudioTransport
	format    Format
	log       logging.Logger

	mu         sync.Mutex
	queue      [][]byte // pending TTS chunks, already in output sample format
	background []int16  // decoded background loop, linear PCM
	bgPos      int

	isSpeaking atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an AudioManager bound to one call's transport.
func New(tr transport.AudioTransport, format Format, log logging.Logger) *AudioManager {
	if log == nil {
		log = logging.NoOp{}
	}
	return &AudioManager{transport: tr, format: format, log: log, done: make(chan struct{})}
}

// SendChunked enqueues linear16 PCM for paced transmission. For
// telephony it is encoded to mulaw and split here into 160-byte (20ms @
// 8kHz) frames, the last one zero-padded; for browser it is queued as one
// whole blob. The stream loop sends one queued entry per tick.
func (m *AudioManager) SendChunked(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.format == FormatMulawTelephony {
		encoded := codec.Linear16ToUlaw(pcm)
		for off := 0; off < len(encoded); off += telephonyFrame {
			end := off + telephonyFrame
			if end > len(encoded) {
				end = len(encoded)
			}
			frame := make([]byte, telephonyFrame)
			copy(frame, encoded[off:end])
			m.queue = append(m.queue, frame)
		}
	} else {
		blob := make([]byte, len(pcm)*2)
		for i, s := range pcm {
			blob[2*i] = byte(s)
			blob[2*i+1] = byte(s >> 8)
		}
		m.queue = append(m.queue, blob)
	}
	m.isSpeaking.Store(true)
}

// ClearQueue drops all pending frames (barge-in).
func (m *AudioManager) ClearQueue() {
	m.mu.Lock()
	m.queue = nil
	m.mu.Unlock()
	m.isSpeaking.Store(false)
}

// SetBackground installs an already payload-decoded background loop
// buffer. Pass nil to disable background mixing.
func (m *AudioManager) SetBackground(pcm []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.background = pcm
	m.bgPos = 0
}

// IsSpeaking reports whether the bot is currently emitting audio
// (flips true on enqueue, false once the queue drains after the last
// frame).
func (m *AudioManager) IsSpeaking() bool {
	return m.isSpeaking.Load()
}

// Start launches the cooperative stream loop.
func (m *AudioManager) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.streamLoop(loopCtx)
}

// Stop cancels the stream loop and waits for it to exit.
func (m *AudioManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// streamLoop is the hardest part of AudioManager: it targets a 20ms
// cadence using a monotonic deadline rather than sleep-drift
// accumulation, so jitter from one iteration never compounds into the
// next. Each iteration pops one pending chunk (non-blocking), mixes in
// one chunk of background loop at unity-vs-0.15 gain with saturation,
// encodes, and sends; absent both sources it emits silence to keep the
// carrier's jitter buffer primed.
func (m *AudioManager) streamLoop(ctx context.Context) {
	defer close(m.done)

	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.transport.SendAudio(ctx, m.nextFrame()); err != nil {
			m.log.Warn("audiomanager: send failed, exiting stream loop", "error", err)
			return
		}

		next = next.Add(tickInterval)
		sleep := time.Until(next)
		if sleep < 0 {
			// fell behind; resync instead of accumulating drift
			next = time.Now()
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// nextFrame computes the frame to send this tick: a dequeued TTS chunk
// mixed with one chunk of background loop, or pure background, or
// silence. It also flips isSpeaking false once the queue has drained.
func (m *AudioManager) nextFrame() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ttsChunk []byte
	if len(m.queue) > 0 {
		ttsChunk = m.queue[0]
		m.queue = m.queue[1:]
		if len(m.queue) == 0 {
			m.isSpeaking.Store(false)
		}
	}

	needed := frameSampleCount(m.format)
	bg := m.nextBackgroundChunk(needed)

	if ttsChunk == nil && bg == nil {
		return silenceFrame(m.format, needed)
	}
	if ttsChunk == nil {
		return encodeFrame(m.format, bg)
	}
	if bg == nil {
		return ttsChunk
	}

	ttsPCM := decodeFrame(m.format, ttsChunk)
	scaledBg := codec.Scale(bg, bgGain)
	mixed := codec.AddSaturating(ttsPCM, scaledBg)
	return encodeFrame(m.format, mixed)
}

func (m *AudioManager) nextBackgroundChunk(n int) []int16 {
	if len(m.background) == 0 || n == 0 {
		return nil
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = m.background[m.bgPos]
		m.bgPos = (m.bgPos + 1) % len(m.background)
	}
	return out
}

func frameSampleCount(f Format) int {
	if f == FormatMulawTelephony {
		return telephonyFrame
	}
	// 20ms @ 16kHz browser PCM
	return 320
}

func silenceFrame(f Format, n int) []byte {
	if f == FormatMulawTelephony {
		// 0xFF is silence in mu-law per spec.md §4.8's "hold audio" note.
		out := make([]byte, n)
		for i := range out {
			out[i] = 0xFF
		}
		return out
	}
	return make([]byte, n*2)
}

func decodeFrame(f Format, data []byte) []int16 {
	if f == FormatMulawTelephony {
		return codec.UlawToLinear16(data)
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return out
}

func encodeFrame(f Format, pcm []int16) []byte {
	if f == FormatMulawTelephony {
		return codec.Linear16ToUlaw(pcm)
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

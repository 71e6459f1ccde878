// Package orchestrator implements the per-call coordinator of spec.md
// §4.11: it loads config, wires ports into a pipeline, and owns the FSM,
// control loop, and idle monitor for one live call. It also holds the
// process-wide ConnectionManager registry (§5).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/internal/metrics"
	"github.com/callcore-ai/callcore/pkg/agentconfig"
	"github.com/callcore-ai/callcore/pkg/audiomanager"
	"github.com/callcore-ai/callcore/pkg/audiopipeline"
	"github.com/callcore-ai/callcore/pkg/codec"
	"github.com/callcore-ai/callcore/pkg/controlchannel"
	"github.com/callcore-ai/callcore/pkg/dialer"
	"github.com/callcore-ai/callcore/pkg/fsm"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/llmproc"
	"github.com/callcore-ai/callcore/pkg/pipeline"
	"github.com/callcore-ai/callcore/pkg/ports"
	"github.com/callcore-ai/callcore/pkg/sttproc"
	"github.com/callcore-ai/callcore/pkg/tools"
	"github.com/callcore-ai/callcore/pkg/transport"
	"github.com/callcore-ai/callcore/pkg/ttsproc"
	"golang.org/x/sync/errgroup"
)

// controlLoopTick is spec.md §4.11's wait(timeout=1s) control-loop cadence.
const controlLoopTick = time.Second

// idleMonitorTick is spec.md §4.11's idle-monitor polling cadence.
const idleMonitorTick = time.Second

// Deps bundles one call's collaborators — ports, repositories, and the
// carrier transport — handed to NewSession. Every field besides
// Transport, STT, LLM, and TTS is optional; nil repositories degrade
// their step to a no-op per spec.md §4.11's best-effort language.
type Deps struct {
	STT       ports.STTPort
	LLM       ports.LLMPort
	TTS       ports.TTSPort
	Tools     *tools.Registry
	Transport transport.AudioTransport
	Format    audiomanager.Format

	ConfigRepo     ports.ConfigRepository
	CallRepo       ports.CallRepository
	TranscriptRepo ports.TranscriptRepository
	CRMRepo        ports.CRMRepository

	// Telnyx, when set, lets in-call [TRANSFER]/[DTMF:…] outcomes act on
	// the live call via its call_control_id (Params.CallControlID).
	Telnyx *dialer.TelnyxClient

	Log logging.Logger
}

// Params identifies one call and the carrier it arrived on.
type Params struct {
	SessionID     string
	AgentID       string
	Carrier       agentconfig.Carrier
	PhoneNumber   string
	CallControlID string
}

// Session is the per-call coordinator: it owns the FSM, control channel,
// pipeline, AudioManager, and the idle/control-loop goroutines for
// exactly one live call.
type Session struct {
	deps   Deps
	params Params
	cfg    agentconfig.AgentConfig
	log    logging.Logger

	fsmGate *fsm.FSM
	cc      *controlchannel.ControlChannel
	pl      *pipeline.Pipeline
	am      *audiomanager.AudioManager
	llm     *llmproc.Processor
	tts     *ttsproc.Processor
	stt     *sttproc.Processor
	frameVAD *audiopipeline.RMSVAD
	echo    *audiopipeline.EchoSuppressor

	callID   string
	crmNotes string

	events chan Event

	startTime time.Time

	mu              sync.Mutex
	lastInteraction time.Time
	idleRetries     int
	sttAudio        chan<- []byte
	turnCancel      context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	stopOnce sync.Once
}

// NewSession builds an unstarted Session. Call Start to run spec.md
// §4.11's ordered startup steps.
func NewSession(deps Deps, params Params) *Session {
	log := deps.Log
	if log == nil {
		log = logging.NoOp{}
	}
	return &Session{
		deps:     deps,
		params:   params,
		log:      log,
		fsmGate:  fsm.New(log),
		cc:       controlchannel.New(),
		frameVAD: audiopipeline.NewRMSVAD(0.02, 2*time.Second),
		echo:     audiopipeline.NewEchoSuppressor(),
		events:   make(chan Event, 256),
	}
}

// Events returns the Session's notification stream, closed once Stop
// completes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// ID returns the session identifier given at construction.
func (s *Session) ID() string {
	return s.params.SessionID
}

// Start runs spec.md §4.11's nine ordered startup steps. A failure to
// load the agent's config is fatal; CRM lookup and call-record creation
// are best-effort and never fail Start.
func (s *Session) Start(ctx context.Context) error {
	if s.ctx != nil {
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startTime = time.Now()
	s.lastInteraction = s.startTime

	// 1. Load config, apply carrier overlay.
	if s.deps.ConfigRepo == nil {
		return fmt.Errorf("%w: no config repository configured", ErrConfigLoad)
	}
	raw, err := s.deps.ConfigRepo.Get(s.ctx, s.params.AgentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	base, err := agentconfig.Load(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	if err := agentconfig.Validate(base); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	s.cfg = agentconfig.Merge(base, s.params.Carrier)
	if err := agentconfig.Validate(s.cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}

	// 2. Best-effort CRM lookup.
	if s.deps.CRMRepo != nil && s.params.PhoneNumber != "" {
		crmCtx, err := s.deps.CRMRepo.Lookup(s.ctx, s.params.PhoneNumber)
		if err != nil {
			s.log.Warn("orchestrator: crm lookup failed", "sessionID", s.params.SessionID, "error", err)
			metrics.Errors.WithLabelValues("orchestrator", "crm_lookup").Inc()
		} else if crmCtx.Found {
			s.crmNotes = crmCtx.Notes
		}
	}

	// 3. Best-effort call-record creation.
	if s.deps.CallRepo != nil {
		id, err := s.deps.CallRepo.CreateCall(s.ctx, ports.CallRecord{
			SessionID:  s.params.SessionID,
			ClientType: string(s.params.Carrier),
			StartTime:  s.startTime,
			Status:     "active",
		})
		if err != nil {
			s.log.Warn("orchestrator: create call record failed", "sessionID", s.params.SessionID, "error", err)
			metrics.Errors.WithLabelValues("orchestrator", "create_call").Inc()
		} else {
			s.callID = id
		}
	}

	// 4. Build pipeline: wire ports, pass the FSM into the LLM processor and
	// the FSM + control channel into the STT processor.
	dynamicVars := map[string]string{
		"phone_number": s.params.PhoneNumber,
		"crm_notes":    s.crmNotes,
	}
	s.am = audiomanager.New(s.deps.Transport, s.deps.Format, s.log)
	s.llm = llmproc.New(s.deps.LLM, s.deps.Tools, s.fsmGate, s.cfg.SystemPrompt, s.cfg.ContextWindow, dynamicVars, s.log)
	s.tts = ttsproc.New(s.deps.TTS, s.fsmGate, s.am, s.cfg.Voice, s.cfg.Language, s.deps.Format, s.cfg.VoicePacingMs, s.log)
	s.tts.OnChunkSent(func(pcm []int16) { s.echo.RecordPlayedAudio(pcmToBytes(pcm)) })
	s.stt = sttproc.New(s.deps.STT, s.fsmGate, s.cc, s.cfg.Blacklist, s.noteInteraction, s.log,
		sttproc.WithStopWords(s.cfg.StopWords),
		sttproc.WithInterruptionThreshold(s.cfg.InterruptionThreshold),
	)

	llmStage := pipeline.NewStage("llm", s.handleLLMFrame, s.log)
	ttsStage := pipeline.NewStage("tts", s.handleTTSFrame, s.log)
	s.pl = pipeline.New(llmStage, ttsStage)

	// 5. Start pipeline.
	s.pl.Start(s.ctx)

	// 6. Start AudioManager.
	s.am.Start(s.ctx)

	// 7. Greeting.
	if s.cfg.GreetingEnabled && s.cfg.GreetingText != "" {
		s.appendTranscript(frame.RoleAssistant, s.cfg.GreetingText)
		s.pl.Stage("tts").Push(s.ctx, frame.TextFrame{Text: s.cfg.GreetingText, Role: frame.RoleAssistant})
	}

	sttAudio, err := s.stt.Start(s.ctx, s.cfg.Language, s.onUserTextFrame)
	if err != nil {
		s.cancel()
		return fmt.Errorf("orchestrator: start stt: %w", err)
	}
	s.mu.Lock()
	s.sttAudio = sttAudio
	s.mu.Unlock()

	// 8. Start control loop.
	// 9. Start idle monitor.
	// Fanned out through an errgroup so Stop's fan-in (group.Wait) blocks
	// until both have observed cancellation before tearing down the
	// pipeline and AudioManager underneath them.
	s.group = &errgroup.Group{}
	s.group.Go(s.controlLoop)
	s.group.Go(s.idleMonitor)

	metrics.CallsActive.Inc()
	metrics.CallsTotal.WithLabelValues(string(s.params.Carrier)).Inc()
	s.log.Info("orchestrator: session started", "sessionID", s.params.SessionID, "agentID", s.params.AgentID)
	return nil
}

// PushAudio feeds one inbound raw audio chunk (carrier-native format)
// into the frame-level VAD/echo filter before forwarding it to STT.
func (s *Session) PushAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	pcm := decodeInbound(s.deps.Format, chunk)
	cleaned := s.echo.RemoveEchoRealtime(pcmToBytes(pcm))

	event := s.frameVAD.Process(cleaned)
	s.stt.NoteTurnRMS(s.frameVAD.LastRMS())

	if event != nil && event.Type == audiopipeline.SpeechStart {
		if s.fsmGate.CanInterrupt() {
			s.cc.Send(frame.ControlSignal{Kind: frame.ControlInterrupt, Reason: "frame_vad_speech_start"}, nil)
		}
		s.emit(EventUserSpeaking, nil)
	}

	s.mu.Lock()
	ch := s.sttAudio
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- cleaned:
	default:
	}
}

// noteInteraction resets the idle timer; passed to sttproc as its
// onInteraction hook and called on every partial or final recognition.
func (s *Session) noteInteraction() {
	s.mu.Lock()
	s.lastInteraction = time.Now()
	s.idleRetries = 0
	s.mu.Unlock()
}

// onUserTextFrame is sttproc's onTextFrame callback: it persists the
// transcript line (best-effort) and enters it into the pipeline.
func (s *Session) onUserTextFrame(tf frame.TextFrame) {
	s.appendTranscript(tf.Role, tf.Text)
	s.emit(EventTranscriptFinal, tf.Text)
	s.pl.Stage("llm").Push(s.ctx, tf)
}

func (s *Session) appendTranscript(role frame.Role, text string) {
	if s.deps.TranscriptRepo == nil || s.callID == "" {
		return
	}
	if err := s.deps.TranscriptRepo.Append(s.ctx, ports.TranscriptEntry{
		CallID:    s.callID,
		Role:      role,
		Content:   text,
		Timestamp: time.Now(),
	}); err != nil {
		s.log.Warn("orchestrator: transcript append failed", "sessionID", s.params.SessionID, "error", err)
	}
}

// handleLLMFrame is the pipeline's "llm" stage handler: it runs one full
// conversational turn and forwards each ready sentence to the "tts" stage.
func (s *Session) handleLLMFrame(ctx context.Context, f any, emit func(any)) error {
	tf, ok := f.(frame.TextFrame)
	if !ok || tf.Role != frame.RoleUser {
		return nil
	}

	s.llm.AppendUserTurn(tf.Text)
	s.fsmGate.Transition(frame.StateProcessing)
	s.emit(EventBotThinking, nil)

	turnCtx, turnCancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.turnCancel = turnCancel
	s.mu.Unlock()
	defer func() {
		turnCancel()
		s.mu.Lock()
		s.turnCancel = nil
		s.mu.Unlock()
	}()

	stageStart := time.Now()
	outcome, err := s.llm.Generate(turnCtx, func(sentence frame.TextFrame) {
		s.appendTranscript(sentence.Role, sentence.Text)
		s.emit(EventBotResponse, sentence.Text)
		emit(sentence)
	})
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(stageStart).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		metrics.Errors.WithLabelValues("orchestrator", "llm_generate").Inc()
		s.emit(EventError, err.Error())
		return err
	}

	s.applyOutcome(outcome)
	return nil
}

// handleTTSFrame is the pipeline's "tts" stage handler: it synthesizes
// and paces one sentence of audio.
func (s *Session) handleTTSFrame(ctx context.Context, f any, emit func(any)) error {
	tf, ok := f.(frame.TextFrame)
	if !ok {
		return nil
	}
	s.emit(EventBotSpeaking, tf.Text)
	stageStart := time.Now()
	err := s.tts.Speak(ctx, tf)
	metrics.StageDuration.WithLabelValues("tts").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("orchestrator", "tts_speak").Inc()
		s.emit(EventError, err.Error())
		return err
	}
	return nil
}

// applyOutcome carries out the side effects an LLM turn scheduled via
// its control tags (spec.md §4.8): DTMF and transfer act immediately
// through the Telnyx client when one is wired; hangup waits for the
// AudioManager to finish draining so the caller hears the final sentence.
func (s *Session) applyOutcome(out llmproc.Outcome) {
	if out.DTMFDigits != "" {
		if s.deps.Telnyx == nil || s.params.CallControlID == "" {
			s.log.Warn("orchestrator: dtmf requested but no telnyx call control wired", "sessionID", s.params.SessionID)
		} else if err := s.deps.Telnyx.SendDTMF(s.ctx, s.params.CallControlID, out.DTMFDigits); err != nil {
			s.log.Warn("orchestrator: send dtmf failed", "sessionID", s.params.SessionID, "error", err)
		}
	}

	if out.ShouldTransfer {
		switch {
		case s.deps.Telnyx == nil || s.params.CallControlID == "":
			s.log.Warn("orchestrator: transfer requested but no telnyx call control wired", "sessionID", s.params.SessionID)
		case s.cfg.TransferTo == "":
			s.log.Warn("orchestrator: transfer requested but agent config has no transfer_to", "sessionID", s.params.SessionID)
		default:
			if err := s.deps.Telnyx.Transfer(s.ctx, s.params.CallControlID, s.cfg.TransferTo); err != nil {
				s.log.Warn("orchestrator: transfer failed", "sessionID", s.params.SessionID, "error", err)
			}
		}
	}

	if out.ShouldHangup {
		go s.hangupAfterDrain()
	}
}

// hangupAfterDrain waits up to 5s for the AudioManager to finish
// speaking the final sentence before stopping the Session, per spec.md
// §4.8's "arrange hangup after TTS drains".
func (s *Session) hangupAfterDrain() {
	deadline := time.Now().Add(5 * time.Second)
	for s.am.IsSpeaking() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop("end_call")
}

// controlLoop implements spec.md §4.11's control loop: wait(timeout=1s)
// on the ControlChannel, acting on INTERRUPT/CANCEL/CLEAR/EMERGENCY_STOP.
// It returns nil on every exit path — Stop's errgroup.Wait fan-in needs
// this goroutine to actually return, so EMERGENCY_STOP triggers Stop on
// a separate goroutine rather than calling it inline.
func (s *Session) controlLoop() error {
	for {
		ctx, cancel := context.WithTimeout(s.ctx, controlLoopTick)
		sig, _, ok := s.cc.Wait(ctx)
		cancel()
		if s.ctx.Err() != nil {
			return nil
		}
		if !ok {
			continue
		}

		switch sig.Kind {
		case frame.ControlInterrupt:
			if s.fsmGate.CanInterrupt() {
				bargeStart := time.Now()
				s.fsmGate.Transition(frame.StateInterrupted)
				s.am.ClearQueue()
				s.pl.ClearAll()
				_ = s.deps.TTS.Abort()
				s.mu.Lock()
				if s.turnCancel != nil {
					s.turnCancel()
				}
				s.mu.Unlock()
				metrics.BargeInLatency.Observe(time.Since(bargeStart).Seconds())
				s.fsmGate.Transition(frame.StateListening)
				s.emit(EventInterrupted, sig.Text)
			}
		case frame.ControlCancel, frame.ControlClear:
			s.pl.ClearAll()
			s.am.ClearQueue()
		case frame.ControlEmergencyStop:
			go s.Stop("emergency_stop")
			return nil
		}
	}
}

// idleMonitor implements spec.md §4.11's idle monitor: every 1s, stop on
// max_duration; otherwise, while the bot isn't speaking, emit an idle
// warning once idle_timeout has elapsed, up to inactivity_max_retries.
func (s *Session) idleMonitor() error {
	ticker := time.NewTicker(idleMonitorTick)
	defer ticker.Stop()

	maxDuration := time.Duration(s.cfg.MaxDurationSeconds) * time.Second
	idleTimeout := time.Duration(s.cfg.IdleTimeoutSeconds) * time.Second

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(s.startTime) > maxDuration {
				go s.Stop("max_duration_exceeded")
				return nil
			}

			if s.am.IsSpeaking() {
				continue
			}

			s.mu.Lock()
			idleFor := time.Since(s.lastInteraction)
			s.mu.Unlock()

			if idleFor <= idleTimeout {
				continue
			}

			s.mu.Lock()
			s.idleRetries++
			retries := s.idleRetries
			s.mu.Unlock()

			if retries > s.cfg.InactivityMaxRetries {
				go s.Stop("idle_timeout")
				return nil
			}
			s.emit(EventIdleWarning, retries)
			s.noteInteraction()
		}
	}
}

// Stop runs spec.md §4.11's ordered stop steps exactly once: cancel idle
// monitor and control loop, stop pipeline, stop AudioManager, update the
// call record, update CRM status, close the transport.
func (s *Session) Stop(reason string) {
	s.stopOnce.Do(func() {
		s.log.Info("orchestrator: session stopping", "sessionID", s.params.SessionID, "reason", reason)

		if s.cancel != nil {
			s.cancel()
		}
		if s.group != nil {
			_ = s.group.Wait()
		}

		if s.pl != nil {
			s.pl.Stop()
		}
		if s.am != nil {
			s.am.Stop()
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if s.deps.CallRepo != nil && s.callID != "" {
			if err := s.deps.CallRepo.EndCall(stopCtx, s.callID, reason, nil); err != nil {
				s.log.Warn("orchestrator: end call record failed", "sessionID", s.params.SessionID, "error", err)
			}
		}
		if s.deps.CRMRepo != nil && s.params.PhoneNumber != "" {
			if err := s.deps.CRMRepo.UpdateStatus(stopCtx, s.params.PhoneNumber, reason); err != nil {
				s.log.Warn("orchestrator: crm status update failed", "sessionID", s.params.SessionID, "error", err)
			}
		}
		if s.deps.Transport != nil {
			_ = s.deps.Transport.Close()
		}

		metrics.CallsActive.Dec()
		s.emit(EventEnded, reason)
		close(s.events)
	})
}

func (s *Session) emit(t EventType, data any) {
	select {
	case s.events <- Event{Type: t, SessionID: s.params.SessionID, Data: data}:
	default:
		s.log.Warn("orchestrator: event channel full, dropping event", "sessionID", s.params.SessionID, "type", t)
	}
}

func decodeInbound(format audiomanager.Format, chunk []byte) []int16 {
	if format == audiomanager.FormatMulawTelephony {
		return codec.UlawToLinear16(chunk)
	}
	out := make([]int16, len(chunk)/2)
	for i := range out {
		out[i] = int16(chunk[2*i]) | int16(chunk[2*i+1])<<8
	}
	return out
}

func pcmToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

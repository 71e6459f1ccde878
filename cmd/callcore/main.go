// Command callcore runs the voice-agent orchestrator process: a
// telephony and browser WebSocket server fronting the per-call Session
// pipeline, with a Prometheus /metrics endpoint alongside it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/pkg/agentconfig"
	"github.com/callcore-ai/callcore/pkg/audiomanager"
	"github.com/callcore-ai/callcore/pkg/dialer"
	"github.com/callcore-ai/callcore/pkg/orchestrator"
	"github.com/callcore-ai/callcore/pkg/ports"
	llmProvider "github.com/callcore-ai/callcore/pkg/providers/llm"
	sttProvider "github.com/callcore-ai/callcore/pkg/providers/stt"
	ttsProvider "github.com/callcore-ai/callcore/pkg/providers/tts"
	"github.com/callcore-ai/callcore/pkg/repository"
	"github.com/callcore-ai/callcore/pkg/tools"
	"github.com/callcore-ai/callcore/pkg/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	appLog := logging.NewZerolog(envOr("LOG_LEVEL", "info"))

	deps, err := buildDeps(appLog)
	if err != nil {
		appLog.Error("callcore: failed to build dependencies", "error", err)
		os.Exit(1)
	}

	cm := orchestrator.NewConnectionManager()
	srv := &server{deps: deps, cm: cm, log: appLog}

	mux := http.NewServeMux()
	mux.HandleFunc("/voice/inbound", srv.handleInboundCall)
	mux.HandleFunc("/ws/telephony/twilio", srv.handleTelephony(transport.CarrierTwilio))
	mux.HandleFunc("/ws/telephony/telnyx", srv.handleTelephony(transport.CarrierTelnyx))
	mux.HandleFunc("/ws/browser", srv.handleBrowser)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := ":" + envOr("PORT", "8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		appLog.Info("callcore: listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("callcore: server error", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	appLog.Info("callcore: shutting down", "reason", "signal")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cm.StopAll("server_shutdown")
	_ = httpServer.Shutdown(shutdownCtx)
}

// server wires inbound WebSocket connections into orchestrator Sessions.
type server struct {
	deps orchestrator.Deps
	cm   *orchestrator.ConnectionManager
	log  logging.Logger
}

// handleInboundCall answers Twilio's incoming-call webhook with TwiML
// that connects the call to the telephony media-stream WebSocket above.
func (s *server) handleInboundCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.log.Warn("callcore: failed to parse inbound call webhook", "error", err)
	}
	from := r.FormValue("From")
	to := r.FormValue("To")
	callSID := r.FormValue("CallSid")
	s.log.Info("callcore: inbound call", "from", from, "to", to, "call_sid", callSID)

	scheme := "wss"
	wsURL := fmt.Sprintf("%s://%s/ws/telephony/twilio?phone_number=%s", scheme, r.Host, url.QueryEscape(from))

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s">
            <Parameter name="callSid" value="%s"/>
            <Parameter name="caller" value="%s"/>
        </Stream>
    </Connect>
</Response>`, wsURL, callSID, from)

	w.Header().Set("Content-Type", "application/xml")
	if _, err := w.Write([]byte(twiml)); err != nil {
		s.log.Error("callcore: failed to write TwiML", "error", err)
	}
}

func (s *server) handleTelephony(carrier transport.TelephonyCarrier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("callcore: telephony upgrade failed", "error", err)
			return
		}

		agentID := r.URL.Query().Get("agent_id")
		phoneNumber := r.URL.Query().Get("phone_number")
		callControlID := r.URL.Query().Get("call_control_id")

		tr := transport.NewTelephonyTransport(conn, carrier, s.log)
		params := orchestrator.Params{
			SessionID:     uuid.NewString(),
			AgentID:       agentID,
			Carrier:       carrierToConfig(carrier),
			PhoneNumber:   phoneNumber,
			CallControlID: callControlID,
		}
		s.runSession(r.Context(), tr, params, audiomanager.FormatMulawTelephony)
	}
}

func (s *server) handleBrowser(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("callcore: browser upgrade failed", "error", err)
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	tr := transport.NewBrowserTransport(conn, s.log)
	params := orchestrator.Params{
		SessionID: uuid.NewString(),
		AgentID:   agentID,
		Carrier:   agentconfig.CarrierBrowser,
	}
	s.runSession(r.Context(), tr, params, audiomanager.FormatLinear16Browser)
}

func (s *server) runSession(ctx context.Context, tr transport.AudioTransport, params orchestrator.Params, format audiomanager.Format) {
	deps := s.deps
	deps.Transport = tr
	deps.Format = format

	sess := orchestrator.NewSession(deps, params)
	s.cm.Register(params.SessionID, sess)

	if err := sess.Start(ctx); err != nil {
		s.log.Error("callcore: session failed to start", "session_id", params.SessionID, "error", err)
		tr.Close()
		return
	}

	go func() {
		for ev := range sess.Events() {
			s.log.Debug("callcore: session event", "session_id", params.SessionID, "type", ev.Type)
		}
	}()

	for frm := range tr.Inbound() {
		switch frm.Type {
		case transport.InboundMedia:
			sess.PushAudio(frm.Audio)
		case transport.InboundStop, transport.InboundError:
			sess.Stop("transport_closed")
		}
	}
}

func carrierToConfig(c transport.TelephonyCarrier) agentconfig.Carrier {
	if c == transport.CarrierTelnyx {
		return agentconfig.CarrierTelnyx
	}
	return agentconfig.CarrierPhone
}

// buildDeps constructs the shared, process-wide Deps template: STT/LLM/
// TTS ports, repositories, and the Telnyx client, selected by env vars
// the way the teacher's cmd/agent/main.go does. Transport and Format are
// filled in per-connection by runSession.
func buildDeps(log logging.Logger) (orchestrator.Deps, error) {
	stt, err := buildSTT()
	if err != nil {
		return orchestrator.Deps{}, err
	}
	llm, err := buildLLM()
	if err != nil {
		return orchestrator.Deps{}, err
	}

	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		return orchestrator.Deps{}, errors.New("LOKUTOR_API_KEY must be set")
	}
	tts := ttsProvider.NewLokutorTTS(lokutorKey)

	configRepo, callRepo, transcriptRepo, crmRepo, err := buildRepositories(log)
	if err != nil {
		return orchestrator.Deps{}, err
	}

	var telnyxClient *dialer.TelnyxClient
	if apiKey := os.Getenv("TELNYX_API_KEY"); apiKey != "" {
		telnyxClient = dialer.NewTelnyxClient(apiKey, os.Getenv("TELNYX_CONNECTION_ID"), log)
	}

	return orchestrator.Deps{
		STT:            stt,
		LLM:            llm,
		TTS:            tts,
		Tools:          tools.NewRegistry(),
		ConfigRepo:     configRepo,
		CallRepo:       callRepo,
		TranscriptRepo: transcriptRepo,
		CRMRepo:        crmRepo,
		Telnyx:         telnyxClient,
		Log:            log,
	}, nil
}

func buildSTT() (ports.STTPort, error) {
	name := envOr("STT_PROVIDER", "groq")
	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY must be set for openai STT")
		}
		return sttProvider.NewOpenAISTT(key, envOr("OPENAI_STT_MODEL", "whisper-1")), nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, errors.New("DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		return sttProvider.NewDeepgramSTT(key), nil
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return nil, errors.New("ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		return sttProvider.NewAssemblyAISTT(key), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, errors.New("GROQ_API_KEY must be set for groq STT")
		}
		return sttProvider.NewGroqSTT(key, envOr("GROQ_STT_MODEL", "whisper-large-v3-turbo")), nil
	}
}

func buildLLM() (ports.LLMPort, error) {
	name := envOr("LLM_PROVIDER", "anthropic")
	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAILLM(key, os.Getenv("OPENAI_LLM_MODEL")), nil
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, errors.New("GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogleLLM(key, os.Getenv("GOOGLE_LLM_MODEL"))
	case "anthropic":
		fallthrough
	default:
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, errors.New("ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropicLLM(key, os.Getenv("ANTHROPIC_LLM_MODEL")), nil
	}
}

// buildRepositories wires Postgres-backed repositories when DATABASE_URL
// is set, falling back to the in-memory store (seeded with
// CALLCORE_DEV_AGENT_CONFIG if present) for local development.
func buildRepositories(log logging.Logger) (ports.ConfigRepository, ports.CallRepository, ports.TranscriptRepository, ports.CRMRepository, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		mem := repository.NewInMemory()
		if raw := os.Getenv("CALLCORE_DEV_AGENT_CONFIG"); raw != "" {
			data, err := os.ReadFile(raw)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("callcore: read dev agent config: %w", err)
			}
			cfg, err := agentconfig.Load(data)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("callcore: parse dev agent config: %w", err)
			}
			mem.SetConfig(cfg.AgentID, data)
		}
		log.Warn("callcore: DATABASE_URL not set, using in-memory repositories")
		return mem, mem, mem, mem, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("callcore: connect to postgres: %w", err)
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("callcore: migrate schema: %w", err)
	}

	return repository.NewPostgresConfigRepository(pool),
		repository.NewPostgresCallRepository(pool),
		repository.NewPostgresTranscriptRepository(pool),
		repository.NewPostgresCRMRepository(pool),
		nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package agentconfig holds the AgentConfig record and its three
// per-carrier overlays, per spec.md §3/§9: a typed base record plus
// optional CarrierOverride records, merged at call start into an
// immutable call-local view. The persisted record is never mutated.
package agentconfig

import (
	"os"

	"gopkg.in/yaml.v3"
)

// VoiceConfig is the immutable voice value object from spec.md §3.
// Invariants are enforced in Validate, not at construction, since the
// zero value must still decode cleanly from YAML.
type VoiceConfig struct {
	Name        string  `yaml:"name" validate:"required"`
	Rate        float64 `yaml:"rate" validate:"gte=0.5,lte=2.0"`
	PitchHz     float64 `yaml:"pitch_hz" validate:"gte=-100,lte=100"`
	Volume      int     `yaml:"volume" validate:"gte=0,lte=100"`
	Style       string  `yaml:"style"`
	StyleDegree float64 `yaml:"style_degree" validate:"gte=0.01,lte=2.0"`
}

// AgentConfig is the base record of behavior knobs, shared across
// carriers unless overridden.
type AgentConfig struct {
	AgentID                 string        `yaml:"agent_id" validate:"required"`
	SystemPrompt            string        `yaml:"system_prompt" validate:"required"`
	GreetingEnabled         bool          `yaml:"greeting_enabled"`
	GreetingText            string        `yaml:"greeting_text"`
	DynamicVariables        bool          `yaml:"dynamic_variables"`
	ContextWindow           int           `yaml:"context_window" validate:"gt=0"`
	Voice                   VoiceConfig   `yaml:"voice"`
	Language                string        `yaml:"language" validate:"required"`
	InitialSilenceTimeoutMs int           `yaml:"initial_silence_timeout_ms" validate:"gt=0"`
	SilenceTimeoutMs        int           `yaml:"silence_timeout_ms" validate:"gt=0"`
	IdleTimeoutSeconds      int           `yaml:"idle_timeout_seconds" validate:"gt=0"`
	InactivityMaxRetries    int           `yaml:"inactivity_max_retries" validate:"gte=0"`
	MaxDurationSeconds      int           `yaml:"max_duration_seconds" validate:"gt=0"`
	InterruptionThreshold   int           `yaml:"interruption_threshold" validate:"gte=0"`
	MinWordsToInterrupt     int           `yaml:"min_words_to_interrupt" validate:"gte=1"`
	StopWords               []string      `yaml:"stop_words"`
	Blacklist               []string      `yaml:"blacklist"`
	VoicePacingMs           int           `yaml:"voice_pacing_ms" validate:"gte=0"`
	RateLimitTelnyx         float64       `yaml:"rate_limit_telnyx" validate:"gte=0"`
	Tools                   []string      `yaml:"tools"`
	ToolFallbackPhrase      string        `yaml:"tool_fallback_phrase"`
	TransferTo              string        `yaml:"transfer_to"`

	Browser *CarrierOverride `yaml:"browser"`
	Phone   *CarrierOverride `yaml:"phone"`
	Telnyx  *CarrierOverride `yaml:"telnyx"`
}

// CarrierOverride holds any subset of AgentConfig fields a carrier wants
// to replace. Pointer/zero-value fields mean "not overridden" — see
// Merge for the exact semantics.
type CarrierOverride struct {
	SystemPrompt            *string      `yaml:"system_prompt"`
	GreetingEnabled         *bool        `yaml:"greeting_enabled"`
	GreetingText            *string      `yaml:"greeting_text"`
	ContextWindow           *int         `yaml:"context_window"`
	Voice                   *VoiceConfig `yaml:"voice"`
	Language                *string      `yaml:"language"`
	InitialSilenceTimeoutMs *int         `yaml:"initial_silence_timeout_ms"`
	SilenceTimeoutMs        *int         `yaml:"silence_timeout_ms"`
	IdleTimeoutSeconds      *int         `yaml:"idle_timeout_seconds"`
	MaxDurationSeconds      *int         `yaml:"max_duration_seconds"`
	InterruptionThreshold   *int         `yaml:"interruption_threshold"`
	MinWordsToInterrupt     *int         `yaml:"min_words_to_interrupt"`
	VoicePacingMs           *int         `yaml:"voice_pacing_ms"`
	RateLimitTelnyx         *float64     `yaml:"rate_limit_telnyx"`
	TransferTo              *string      `yaml:"transfer_to"`
}

// Carrier identifies which overlay to apply at call start.
type Carrier string

const (
	CarrierBrowser Carrier = "browser"
	CarrierPhone   Carrier = "phone"
	CarrierTelnyx  Carrier = "telnyx"
)

// Load reads and decodes an AgentConfig from YAML bytes, applying env
// overrides for fields commonly tuned per-deployment. The returned value
// has not been validated; call Validate before use.
func Load(data []byte) (AgentConfig, error) {
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AgentConfig{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *AgentConfig) {
	if v := os.Getenv("CALLCORE_SYSTEM_PROMPT"); v != "" {
		cfg.SystemPrompt = v
	}
	if v := os.Getenv("CALLCORE_LANGUAGE"); v != "" {
		cfg.Language = v
	}
}

// Merge applies the overlay for carrier onto a copy of base, producing an
// immutable call-local AgentConfig. Any non-nil overlay field replaces
// the base field; the persisted base is never mutated. Nested overlays
// (Browser/Phone/Telnyx) are cleared on the returned copy since a
// call-local config has no further overlay to apply.
func Merge(base AgentConfig, carrier Carrier) AgentConfig {
	out := base
	out.Browser, out.Phone, out.Telnyx = nil, nil, nil

	var ov *CarrierOverride
	switch carrier {
	case CarrierBrowser:
		ov = base.Browser
	case CarrierPhone:
		ov = base.Phone
	case CarrierTelnyx:
		ov = base.Telnyx
	}
	if ov == nil {
		return out
	}

	if ov.SystemPrompt != nil {
		out.SystemPrompt = *ov.SystemPrompt
	}
	if ov.GreetingEnabled != nil {
		out.GreetingEnabled = *ov.GreetingEnabled
	}
	if ov.GreetingText != nil {
		out.GreetingText = *ov.GreetingText
	}
	if ov.ContextWindow != nil {
		out.ContextWindow = *ov.ContextWindow
	}
	if ov.Voice != nil {
		out.Voice = *ov.Voice
	}
	if ov.Language != nil {
		out.Language = *ov.Language
	}
	if ov.InitialSilenceTimeoutMs != nil {
		out.InitialSilenceTimeoutMs = *ov.InitialSilenceTimeoutMs
	}
	if ov.SilenceTimeoutMs != nil {
		out.SilenceTimeoutMs = *ov.SilenceTimeoutMs
	}
	if ov.IdleTimeoutSeconds != nil {
		out.IdleTimeoutSeconds = *ov.IdleTimeoutSeconds
	}
	if ov.MaxDurationSeconds != nil {
		out.MaxDurationSeconds = *ov.MaxDurationSeconds
	}
	if ov.InterruptionThreshold != nil {
		out.InterruptionThreshold = *ov.InterruptionThreshold
	}
	if ov.MinWordsToInterrupt != nil {
		out.MinWordsToInterrupt = *ov.MinWordsToInterrupt
	}
	if ov.VoicePacingMs != nil {
		out.VoicePacingMs = *ov.VoicePacingMs
	}
	if ov.RateLimitTelnyx != nil {
		out.RateLimitTelnyx = *ov.RateLimitTelnyx
	}
	if ov.TransferTo != nil {
		out.TransferTo = *ov.TransferTo
	}
	return out
}

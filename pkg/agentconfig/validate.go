package agentconfig

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	v            *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		v = validator.New()
	})
	return v
}

// Validate runs struct-tag validation over cfg (and its nested
// VoiceConfig) and returns a combined error describing every violation,
// applied once per AgentConfig load and once per merged call-local
// overlay, per SPEC_FULL.md §2.
func Validate(cfg AgentConfig) error {
	if err := instance().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("agentconfig: %d validation error(s): %w", len(verrs), err)
		}
		return fmt.Errorf("agentconfig: %w", err)
	}
	return nil
}

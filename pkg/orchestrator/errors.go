package orchestrator

import "errors"

var (
	// ErrConfigLoad wraps a failure to load or decode the agent's
	// persisted configuration — fatal to Start, unlike the best-effort
	// CRM lookup and call-record creation steps.
	ErrConfigLoad = errors.New("orchestrator: failed to load agent config")

	// ErrAlreadyStarted guards against starting a Session twice.
	ErrAlreadyStarted = errors.New("orchestrator: session already started")

	// ErrNotStarted reports an operation on a Session whose Start has not
	// run; no Session method in this package currently returns it.
	ErrNotStarted = errors.New("orchestrator: session not started")
)

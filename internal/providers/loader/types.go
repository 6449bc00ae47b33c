package loader

import (
	"errors"
	"time"
)

var (
	ErrNotText      = errors.New("app bundle is not text")
	ErrNoEntryPoint = errors.New("app defines no start entry point")
	ErrInterrupted  = errors.New("app execution interrupted")
	ErrPanic        = errors.New("app execution panicked")
	ErrClosed       = errors.New("app is closed")
)

// appFilename names the compiled bundle in stack traces.
const appFilename = "app.js"

// startedMessage is what a start entry point reports when it has nothing to say.
const startedMessage = "Success"

// Config defines loader configuration
type Config struct {
	Timeout          time.Duration // Load and initialize limit, on top of the caller's context
	StartTimeout     time.Duration // Limit for each start call
	InfoTimeout      time.Duration // Limit for each getInfo call
	MaxCallStackSize int           // Maximum JS call stack depth
	EnableConsole    bool          // Route console.* to the host logger
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		StartTimeout:     5 * time.Second,
		InfoTimeout:      2 * time.Second,
		MaxCallStackSize: 1024,
		EnableConsole:    true,
	}
}

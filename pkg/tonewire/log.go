package tonewire

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var diagnostics atomic.Bool

func init() {
	diagnostics.Store(true)
}

// SetLogging turns diagnostic logging of every instance on or off. It is safe
// to call at any time and has no effect on encoding or decoding.
func SetLogging(enabled bool) {
	diagnostics.Store(enabled)
}

func LoggingEnabled() bool {
	return diagnostics.Load()
}

type diagnosticsHook struct{}

func (diagnosticsHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if !diagnostics.Load() {
		e.Discard()
	}
}

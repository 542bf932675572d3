package observability

import (
	"time"

	"github.com/danmuck/geminid/internal/gemini"
	"github.com/rs/zerolog"
)

// Exchange summarizes one completed request/response cycle.
type Exchange struct {
	Remote   string
	Request  string
	Target   string
	Status   gemini.Status
	Meta     string
	Bytes    int
	Duration time.Duration
}

// LogExchange emits one event per exchange, levelled by status class.
func LogExchange(logger zerolog.Logger, ex Exchange) {
	event := logger.Info()
	switch ex.Status.Class() {
	case gemini.ClassTempFailure:
		event = logger.Error()
	case gemini.ClassPermFailure, gemini.ClassCertRequired:
		event = logger.Warn()
	}

	event.
		Str("remote", ex.Remote).
		Str("request", ex.Request).
		Str("target", ex.Target).
		Int("status", int(ex.Status)).
		Str("meta", ex.Meta).
		Int("bytes", ex.Bytes).
		Dur("duration", ex.Duration).
		Msg("gemini_exchange")
}

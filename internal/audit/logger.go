package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes audit events to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Record(_ context.Context, event Event) error {
	entry := s.log.Info().
		Str("event_id", event.ID).
		Str("tenant_id", event.TenantID).
		Str("remittance_id", event.RemittanceID).
		Str("event_type", string(event.EventType)).
		Time("at", event.At)
	if event.ActorID != "" {
		entry = entry.Str("actor_id", event.ActorID)
	}
	if len(event.Details) > 0 {
		dict := zerolog.Dict()
		for k, v := range event.Details {
			dict = dict.Str(k, v)
		}
		entry = entry.Dict("details", dict)
	}
	entry.Msg("AUDIT")
	return nil
}

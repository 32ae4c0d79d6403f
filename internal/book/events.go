package book

import (
	"time"

	"github.com/spherical/pagebook/internal/domain"
)

// emitEvent safely emits an event to the channel
func (s *Session) emitEvent(event domain.StreamEvent) {
	if s.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
	}
}

// emitError emits an error event
func (s *Session) emitError(err error) {
	s.emitEvent(domain.StreamEvent{
		Type:    domain.EventError,
		Payload: err.Error(),
	})
}

func (s *Session) emitProgress(eventType domain.EventType) domain.ProgressFunc {
	return func(p domain.Progress) {
		s.emitEvent(domain.StreamEvent{
			Type:     eventType,
			Progress: p.Percent,
			Payload:  p,
		})
	}
}

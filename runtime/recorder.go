package runtime

import (
	"log/slog"
	"secure-chat/contract"
	"secure-chat/domain"
)

var _ contract.SessionRecorder = (*ChannelRecorder)(nil)

// ChannelRecorder hands session events to a buffered channel drained by a worker.
// A full buffer drops the event rather than slowing a connection down.
type ChannelRecorder struct {
	log    *slog.Logger
	events chan<- domain.SessionEvent
}

func NewChannelRecorder(log *slog.Logger, events chan<- domain.SessionEvent) *ChannelRecorder {
	return &ChannelRecorder{log: log, events: events}
}

func (r *ChannelRecorder) Record(evt domain.SessionEvent) {
	select {
	case r.events <- evt:
	default:
		r.log.Debug("Audit event lost", "type", evt.Type, "conn_id", evt.ConnID)
	}
}

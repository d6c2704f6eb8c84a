package workers

import (
	"context"
	"log/slog"
	"secure-chat/contract"
	"secure-chat/domain"
	"time"
)

const DefaultSinkTimeout = 2 * time.Second

// AuditWorker drains session events into every sink.
// A failing sink is logged and skipped, it never stops the others.
type AuditWorker struct {
	log         *slog.Logger
	events      <-chan domain.SessionEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewAuditWorker(log *slog.Logger, events <-chan domain.SessionEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *AuditWorker {
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	return &AuditWorker{log: log, events: events, sinks: sinks, sinkTimeout: sinkTimeout}
}

// Run returns nil when ctx is done or the events channel is closed.
func (w *AuditWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.dispatch(ctx, evt)
		}
	}
}

// drain flushes what is already buffered so the last leave events of a shutdown are kept.
func (w *AuditWorker) drain() {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return
			}
			w.dispatch(context.Background(), evt)
		default:
			return
		}
	}
}

func (w *AuditWorker) dispatch(ctx context.Context, evt domain.SessionEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		err := sink.Consume(sinkCtx, evt)
		cancel()
		if err != nil {
			w.log.Warn("Audit sink failed", "sink", sinkName(sink), "type", evt.Type, "conn_id", evt.ConnID, "error", err)
		}
	}
}

func sinkName(sink contract.EventSink) string {
	if named, ok := sink.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "sink"
}

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"secure-chat/contract"
	"secure-chat/domain"
	"secure-chat/repositories"
)

var _ contract.EventSink = AuditSink{}

// AuditSink stores session events through the audit repository.
type AuditSink struct {
	repository repositories.IAuditRepository
	log        *slog.Logger
}

func NewAuditSink(repository repositories.IAuditRepository, log *slog.Logger) AuditSink {
	return AuditSink{repository: repository, log: log}
}

func (a AuditSink) Name() string { return "audit" }

func (a AuditSink) Consume(_ context.Context, e domain.SessionEvent) error {
	switch e.Type {
	case domain.SessionJoined, domain.SessionLeft, domain.SessionRejected:
		return a.repository.Store(e)
	default:
		a.log.Debug(fmt.Sprintf("Not implemented session event : %v", e.Type))
		return nil
	}
}

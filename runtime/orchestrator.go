// Package runtime accepts secured connections, tracks the connected clients
// and relays their messages. It holds no wire or certificate logic.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"secure-chat/contract"
	"secure-chat/domain"
	"secure-chat/errors"
	"secure-chat/moderation"
	"secure-chat/runtime/workers"
	"sync"
	"time"
)

const DefaultShutdownTimeout = 5 * time.Second

type OrchestratorConfig struct {
	Handler           HandlerConfig
	ShutdownTimeout   time.Duration
	AuditBufferSize   int
	SinkTimeout       time.Duration
	HeartbeatInterval time.Duration
	CensoredDir       string
	CharReplacement   rune
}

// HealthReporter is told when the server starts and stops accepting clients.
type HealthReporter interface {
	SetServing(serving bool)
}

// Orchestrator wires the registry, the broadcaster, the connection handler and
// the acceptor, plus the supervised background workers.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	cfg        OrchestratorConfig
	registry   *Registry
	acceptor   *Acceptor
	supervisor contract.ISupervisor
	events     chan domain.SessionEvent
	sinks      []contract.EventSink
	health     HealthReporter
	supervised chan struct{}
	stopOnce   sync.Once
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, cfg OrchestratorConfig) *Orchestrator {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Orchestrator{
		log:        log,
		cfg:        cfg,
		registry:   NewRegistry(),
		supervisor: supervisor,
	}
}

// Add registers audit sinks. Without any, session events are not collected.
func (o *Orchestrator) Add(sinks ...contract.EventSink) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sinks...)
	return o
}

func (o *Orchestrator) WithHealth(health HealthReporter) *Orchestrator {
	o.health = health
	return o
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// Listen prepares every component then binds address.
func (o *Orchestrator) Listen(address string) error {
	decoder, err := o.prepareDecoder()
	if err != nil {
		return err
	}

	o.mu.Lock()
	var recorder contract.SessionRecorder
	if len(o.sinks) > 0 {
		size := max(o.cfg.AuditBufferSize, 1)
		o.events = make(chan domain.SessionEvent, size)
		recorder = NewChannelRecorder(o.log, o.events)
	}
	handler := NewHandler(o.log, o.registry, NewBroadcaster(o.log, o.registry), decoder, recorder, o.cfg.Handler)
	o.acceptor = NewAcceptor(o.log, handler)
	o.mu.Unlock()

	return o.acceptor.Listen(address)
}

func (o *Orchestrator) Addr() net.Addr {
	if o.acceptor == nil {
		return nil
	}
	return o.acceptor.Addr()
}

// Serve runs the supervised workers and accepts clients until ctx is done,
// Stop is called or the listening socket fails.
func (o *Orchestrator) Serve(ctx context.Context) error {
	if o.acceptor == nil {
		return fmt.Errorf("%w: orchestrator is not listening", errors.ErrListen)
	}

	o.mu.Lock()
	o.supervisor.Add(workers.NewHeartbeatWorker(o.log, o.registry, o.cfg.HeartbeatInterval))
	if o.events != nil {
		o.supervisor.Add(workers.NewAuditWorker(o.log, o.events, o.cfg.SinkTimeout, o.sinks...))
	}
	o.supervised = make(chan struct{})
	supervised := o.supervised
	o.mu.Unlock()

	go func() {
		defer close(supervised)
		o.supervisor.Run(ctx)
	}()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.setServing(true)
	err := o.acceptor.Serve(ctx)
	o.setServing(false)
	return err
}

// Stop closes the listener and every client, then stops the workers once the
// last session events are recorded.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.log.Info("Requesting orchestrator shutdown")
		o.setServing(false)

		if o.acceptor != nil {
			if err := o.acceptor.Shutdown(o.cfg.ShutdownTimeout); err != nil {
				o.log.Warn("Connections still open at shutdown", "error", err)
			}
		}
		o.registry.CloseAll()

		o.supervisor.Stop()
		o.mu.Lock()
		supervised := o.supervised
		o.mu.Unlock()
		if supervised != nil {
			select {
			case <-supervised:
			case <-time.After(o.cfg.ShutdownTimeout):
				o.log.Warn("Workers still running at shutdown")
			}
		}
		o.log.Info("Orchestrator stopped")
	})
}

func (o *Orchestrator) setServing(serving bool) {
	if o.health != nil {
		o.health.SetServing(serving)
	}
}

// prepareDecoder builds the censor filter when a censored directory is configured.
func (o *Orchestrator) prepareDecoder() (Decoder, error) {
	if o.cfg.CensoredDir == "" {
		return NewDecoder(o.log, nil), nil
	}
	return prepareModeratedDecoder(o.log, os.DirFS(o.cfg.CensoredDir), ".", o.cfg.CharReplacement)
}

func prepareModeratedDecoder(log *slog.Logger, censored fs.FS, dir string, mask rune) (Decoder, error) {
	lists, err := moderation.LoadWordLists(censored, dir)
	if err != nil {
		return Decoder{}, fmt.Errorf("loading censored words: %w", err)
	}
	words := lists.Words()
	log.Info("Censored words loaded", "languages", lists.Languages(), "words", len(words))

	filter, err := moderation.NewFilter(words, mask, log)
	if err != nil {
		return Decoder{}, err
	}
	return NewDecoder(log, filter), nil
}

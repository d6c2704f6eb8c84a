package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"secure-chat/infrastructure/grpc/server"
	"secure-chat/internal"
	"secure-chat/projection"
	"secure-chat/repositories"
	"secure-chat/runtime"
	"secure-chat/runtime/workers"
	"secure-chat/secure"
	"secure-chat/sink"
	"strings"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns their lifecycle, so deferred cleanups
// (audit database, admin server) always run before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. TLS material
	mode, err := config.TLSMode()
	if err != nil {
		return exitConfig, err
	}
	material, err := secure.LoadMaterial(config.TLSFiles())
	if err != nil {
		return exitConfig, err
	}
	tlsConfig, err := secure.ServerConfig(material, mode)
	if err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	// 3. Supervision & Orchestration
	sup := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, sup, runtime.OrchestratorConfig{
		Handler: runtime.HandlerConfig{
			TLS:              tlsConfig,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadTimeout:      config.ReadTimeout,
			WriteTimeout:     config.WriteTimeout,
			MaxFrameSize:     config.MaxFrameSize,
		},
		ShutdownTimeout:   config.ShutdownTimeout,
		AuditBufferSize:   config.AuditBufferSize,
		HeartbeatInterval: config.HeartbeatInterval,
		CensoredDir:       config.CensoredDir,
		CharReplacement:   charReplacement,
	})

	// 4. Session audit: in-memory timeline, plus BadgerDB when configured
	timeline := projection.NewTimeline(projection.DefaultTimelineSize)
	orchestrator.Add(timeline)

	var repository repositories.IAuditRepository
	if config.AuditDBPath != "" {
		db, err := badger.Open(badger.DefaultOptions(config.AuditDBPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("audit database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		auditRepository := repositories.NewAuditRepository(db, log, config.LimitAuditRecords)
		orchestrator.Add(sink.NewAuditSink(auditRepository, log))
		repository = auditRepository
	}

	if config.DebugPort != 0 && strings.EqualFold(config.LogLevel, slog.LevelDebug.String()) {
		debugServer := internal.NewDebugServer(log, repository, timeline.Stats)
		if err := debugServer.Start(config.DebugPort); err != nil {
			return exitRuntime, fmt.Errorf("debug server: %w", err)
		}
		defer func() { _ = debugServer.Stop(context.Background()) }()
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	// 6. Admin health server
	if config.AdminPort != 0 {
		listener, err := net.Listen("tcp", net.JoinHostPort(config.Host, fmt.Sprint(config.AdminPort)))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to listen on admin port %d: %w", config.AdminPort, err)
		}
		admin := server.NewAdminServer(log)
		orchestrator.WithHealth(admin)
		go func() {
			if err := admin.Serve(listener); err != nil {
				errChan <- err
			}
		}()
		defer admin.Stop()
	}

	// 7. Chat acceptor
	if err := orchestrator.Listen(config.Address()); err != nil {
		return exitRuntime, err
	}
	go func() {
		log.Info("Starting chat server", "address", config.Address(), "tls_mode", mode, "at", time.Now().UTC())
		errChan <- orchestrator.Serve(ctx)
	}()

	// 8. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		if runErr != nil {
			log.Error("Server failure", "error", runErr)
		}
	}

	// 9. Final Cleanup
	orchestrator.Stop()
	if runErr != nil {
		return exitRuntime, runErr
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

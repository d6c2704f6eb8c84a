package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ChatService is the health service name reported for the chat acceptor.
const ChatService = "secure-chat"

// AdminServer exposes the standard gRPC health protocol for the chat server.
// The overall status ("") and ChatService follow SetServing.
type AdminServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewAdminServer(log *slog.Logger) *AdminServer {
	a := &AdminServer{log: log, health: health.NewServer()}
	a.server = grpc.NewServer(grpc.UnaryInterceptor(a.logUnary))
	healthpb.RegisterHealthServer(a.server, a.health)
	a.SetServing(false)
	return a
}

func (a *AdminServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", st)
	a.health.SetServingStatus(ChatService, st)
	a.log.Debug("Health status", "status", st.String())
}

// Serve blocks until Stop. A stopped server is not an error.
func (a *AdminServer) Serve(listener net.Listener) error {
	a.log.Info("Starting admin gRPC server", "address", listener.Addr().String(), "at", time.Now().UTC())
	if err := a.server.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("admin gRPC server error: %w", err)
	}
	return nil
}

// Stop marks every service as not serving, then stops gracefully.
func (a *AdminServer) Stop() {
	a.health.Shutdown()
	a.server.GracefulStop()
}

func (a *AdminServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	a.log.Debug("Admin call", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
	return resp, err
}

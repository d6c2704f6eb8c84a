package runtime

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"log/slog"
	"net"
	"secure-chat/contract"
	"secure-chat/domain"
	"secure-chat/errors"
	"secure-chat/secure"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// QuitCommand is the line a client sends to leave gracefully.
const QuitCommand = "quit"

type HandlerConfig struct {
	TLS              *tls.Config
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxFrameSize     int
}

// Session is the handler side view of one connection.
type Session struct {
	ConnID   string
	Remote   string
	Identity string
	Username domain.Username
	state    atomic.Int32
}

func (s *Session) State() domain.State { return domain.State(s.state.Load()) }

// Handler drives one connection from handshake to close.
// Every connection runs in its own goroutine; a failing handler only ever
// touches its own channel.
type Handler struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	decoder     Decoder
	recorder    contract.SessionRecorder
	cfg         HandlerConfig
	now         func() time.Time
}

// NewHandler wires a handler. recorder may be nil when auditing is disabled.
func NewHandler(
	log *slog.Logger,
	registry contract.IRegistry,
	broadcaster contract.IBroadcaster,
	decoder Decoder,
	recorder contract.SessionRecorder,
	cfg HandlerConfig,
) *Handler {
	return &Handler{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		decoder:     decoder,
		recorder:    recorder,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Serve performs the server handshake on raw then runs the session.
// A rejected handshake never reaches the registry.
func (h *Handler) Serve(ctx context.Context, raw net.Conn) *Session {
	session := &Session{Remote: raw.RemoteAddr().String()}
	session.state.Store(int32(domain.Handshaking))

	channel, err := secure.Handshake(ctx, raw, secure.RoleServer, h.cfg.TLS,
		secure.WithHandshakeTimeout(h.cfg.HandshakeTimeout),
		secure.WithReadTimeout(h.cfg.ReadTimeout),
		secure.WithWriteTimeout(h.cfg.WriteTimeout),
		secure.WithMaxFrameSize(h.maxFrameSize()),
	)
	if err != nil {
		h.log.Warn("Handshake rejected", "remote", session.Remote, "error", err)
		h.record(domain.SessionEvent{
			Type:       domain.SessionRejected,
			RemoteAddr: session.Remote,
			Reason:     err.Error(),
		})
		h.transition(session, domain.Closed)
		return session
	}

	h.run(ctx, session, channel)
	return session
}

// Run drives an already established channel.
func (h *Handler) Run(ctx context.Context, channel contract.Channel) *Session {
	session := &Session{Remote: channel.RemoteAddr()}
	h.run(ctx, session, channel)
	return session
}

func (h *Handler) run(ctx context.Context, session *Session, channel contract.Channel) {
	session.ConnID = channel.ID()
	session.Identity = channel.PeerIdentity()
	h.transition(session, domain.Authenticating)

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Connection handler panicked", "conn_id", session.ConnID, "panic", r)
			wasActive := session.State() == domain.Active
			h.transition(session, domain.Closing)
			if h.registry.Remove(session.ConnID) && wasActive {
				h.announceLeftAfterPanic(session)
				h.record(h.sessionEvent(session, domain.SessionLeft, "handler panic"))
			}
			_ = channel.Close()
			h.transition(session, domain.Closed)
		}
	}()

	username, err := h.authenticate(channel)
	if err != nil {
		h.log.Info("Connection closed before authentication", "conn_id", session.ConnID, "remote", session.Remote, "error", err)
		h.transition(session, domain.Closing)
		_ = channel.Close()
		h.transition(session, domain.Closed)
		return
	}
	session.Username = username

	if !h.registry.Add(session.ConnID, channel) {
		h.log.Error("Connection id already registered", "conn_id", session.ConnID)
		h.transition(session, domain.Closing)
		_ = channel.Close()
		h.transition(session, domain.Closed)
		return
	}
	h.transition(session, domain.Active)
	h.log.Info("Client joined", "username", username, "conn_id", session.ConnID, "remote", session.Remote, "identity", session.Identity)
	h.record(h.sessionEvent(session, domain.SessionJoined, ""))
	h.broadcaster.Publish(domain.NewJoinedMessage(username, h.now()), session.ConnID)

	reason := h.relay(ctx, session, channel)

	h.transition(session, domain.Closing)
	h.registry.Remove(session.ConnID)
	h.broadcaster.Publish(domain.NewLeftMessage(username, h.now()), session.ConnID)
	_ = channel.Close()
	h.log.Info("Client left", "username", username, "conn_id", session.ConnID, "reason", reason)
	h.record(h.sessionEvent(session, domain.SessionLeft, reason))
	h.transition(session, domain.Closed)
}

// announceLeftAfterPanic tells the others the session is gone. The broadcaster
// may be what panicked, so a second panic is only logged.
func (h *Handler) announceLeftAfterPanic(session *Session) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Leave notice failed", "conn_id", session.ConnID, "panic", r)
		}
	}()
	h.broadcaster.Publish(domain.NewLeftMessage(session.Username, h.now()), session.ConnID)
}

// authenticate waits for the first non-empty line.
func (h *Handler) authenticate(channel contract.Channel) (domain.Username, error) {
	for {
		line, err := channel.ReadLine()
		if err != nil {
			return "", err
		}
		username, err := domain.ParseUsername(line)
		if stderrors.Is(err, errors.ErrEmptyUsername) {
			continue
		}
		return username, err
	}
}

// relay forwards lines until the peer leaves, and returns why it stopped.
func (h *Handler) relay(ctx context.Context, session *Session, channel contract.Channel) string {
	for {
		line, err := channel.ReadLine()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return "server shutdown"
			case stderrors.Is(err, errors.ErrEndOfStream):
				return "disconnected"
			default:
				h.log.Debug("Read failed", "conn_id", session.ConnID, "error", err)
				return "read error"
			}
		}
		if strings.EqualFold(strings.TrimSpace(line), QuitCommand) {
			return QuitCommand
		}

		payload, ok := h.decoder.Decode(line)
		if !ok {
			continue
		}
		msg := domain.NewChatMessage(session.Username, payload, h.now())
		report := h.broadcaster.Publish(msg, session.ConnID)
		h.log.Info("Message relayed",
			"at", msg.At.Format(time.DateTime),
			"from", session.Username,
			"remote", session.Remote,
			"delivered", report.Delivered,
			"failed", len(report.Failed))
		h.log.Debug("Message content", "id", msg.ID, "payload", msg.Payload)
	}
}

func (h *Handler) transition(session *Session, state domain.State) {
	previous := domain.State(session.state.Swap(int32(state)))
	h.log.Debug("Session state", "conn_id", session.ConnID, "from", previous, "to", state)
}

func (h *Handler) sessionEvent(session *Session, kind domain.SessionEventType, reason string) domain.SessionEvent {
	return domain.SessionEvent{
		Type:       kind,
		ConnID:     session.ConnID,
		Username:   session.Username,
		Identity:   session.Identity,
		RemoteAddr: session.Remote,
		Reason:     reason,
	}
}

func (h *Handler) record(evt domain.SessionEvent) {
	if h.recorder == nil {
		return
	}
	evt.ID = uuid.New()
	evt.At = h.now()
	h.recorder.Record(evt)
}

func (h *Handler) maxFrameSize() int {
	if h.cfg.MaxFrameSize == 0 {
		return secure.DefaultMaxFrameSize
	}
	return h.cfg.MaxFrameSize
}

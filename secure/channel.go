// Package secure turns raw connections into TLS channels carrying
// newline-delimited text frames.
package secure

import (
	"bufio"
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"secure-chat/contract"
	"secure-chat/errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultMaxFrameSize     = 1024
	DefaultHandshakeTimeout = 10 * time.Second
	minFrameSize            = 16
)

type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

var _ contract.Channel = (*Channel)(nil)

// Channel is an established TLS stream.
// ReadLine must be called from a single goroutine, Write and Close from any.
type Channel struct {
	id           string
	conn         *tls.Conn
	reader       *bufio.Reader
	pending      []byte
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	identity     string
}

type options struct {
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration
	maxFrameSize     int
}

type Option func(*options) error

// WithHandshakeTimeout bounds the TLS negotiation. Zero keeps the default.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("handshake timeout must be positive: %v", d)
		}
		if d > 0 {
			o.handshakeTimeout = d
		}
		return nil
	}
}

// WithReadTimeout closes idle peers: a ReadLine waiting longer fails. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("read timeout must be positive: %v", d)
		}
		o.readTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds each Write so a stalled peer cannot block its writers. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("write timeout must be positive: %v", d)
		}
		o.writeTimeout = d
		return nil
	}
}

// WithMaxFrameSize bounds a single frame. Longer lines are split.
func WithMaxFrameSize(n int) Option {
	return func(o *options) error {
		if n < minFrameSize {
			return fmt.Errorf("max frame size must be at least %d bytes: %d", minFrameSize, n)
		}
		o.maxFrameSize = n
		return nil
	}
}

// Handshake negotiates TLS over raw. On failure raw is closed and no channel is returned.
func Handshake(ctx context.Context, raw net.Conn, role Role, cfg *tls.Config, opts ...Option) (*Channel, error) {
	o := options{
		handshakeTimeout: DefaultHandshakeTimeout,
		maxFrameSize:     DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("%w: %w", errors.ErrHandshake, err)
		}
	}

	var conn *tls.Conn
	if role == RoleClient {
		conn = tls.Client(raw, cfg)
	} else {
		conn = tls.Server(raw, cfg)
	}

	hsCtx, cancel := context.WithTimeout(ctx, o.handshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("%w: %w", errors.ErrHandshake, err)
	}

	return &Channel{
		id:           uuid.NewString(),
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, o.maxFrameSize),
		readTimeout:  o.readTimeout,
		writeTimeout: o.writeTimeout,
		identity:     peerIdentity(conn.ConnectionState()),
	}, nil
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// PeerIdentity is the subject common name of the peer leaf certificate,
// empty when the peer presented none.
func (c *Channel) PeerIdentity() string { return c.identity }

// ReadLine returns the next frame without its delimiter.
// An oversized line is split into several frames, never inside a UTF-8
// character: a character cut by the bound opens the next frame, which may
// then exceed the bound by at most utf8.UTFMax-1 bytes.
func (c *Channel) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	line, err := c.reader.ReadSlice('\n')
	full := false
	switch {
	case err == nil:
	case stderrors.Is(err, bufio.ErrBufferFull):
		full = true
	case stderrors.Is(err, io.EOF) && len(line)+len(c.pending) > 0:
		// Last frame had no delimiter.
	default:
		c.pending = nil
		return "", c.readError(err)
	}

	frame := append(c.pending, line...)
	c.pending = nil
	if full {
		cut := completePrefix(frame)
		c.pending = append([]byte(nil), frame[cut:]...)
		frame = frame[:cut]
	}
	return strings.TrimRight(string(frame), "\r\n"), nil
}

// completePrefix is the length of b without a trailing incomplete character.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

func (c *Channel) readError(err error) error {
	if stderrors.Is(err, io.EOF) {
		return errors.ErrEndOfStream
	}
	if c.closed.Load() {
		return fmt.Errorf("%w: %w", errors.ErrRead, net.ErrClosed)
	}
	return fmt.Errorf("%w: %w", errors.ErrRead, err)
}

// Write sends p as a whole. Concurrent writers never interleave.
func (c *Channel) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("%w: %w", errors.ErrWrite, net.ErrClosed)
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrWrite, err)
	}
	return nil
}

// WriteLine appends the frame delimiter to s.
func (c *Channel) WriteLine(s string) error {
	return c.Write([]byte(s + "\n"))
}

// Close tears down the connection once; later calls return nil.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

func peerIdentity(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

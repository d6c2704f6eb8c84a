// Package client connects to the chat server over TLS, sends the operator's
// lines and hands every broadcast line back to the caller.
package client

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"secure-chat/domain"
	"secure-chat/errors"
	"secure-chat/secure"
	"strings"
	"sync/atomic"
	"time"
)

const QuitCommand = "quit"

// DefaultKeepAlive stays well under the server's default idle timeout.
const DefaultKeepAlive = time.Minute

type Option func(*Client)

// WithDialTimeout bounds the TCP connect.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithChannelOptions forwards options to the secure channel (timeouts, frame size).
func WithChannelOptions(opts ...secure.Option) Option {
	return func(c *Client) { c.channelOpts = append(c.channelOpts, opts...) }
}

// WithKeepAlive sets how often Receive sends an empty frame, which the server
// ignores, so a listen-only user is not dropped as idle. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Client) { c.keepAlive = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

type Client struct {
	log         *slog.Logger
	channel     *secure.Channel
	dialTimeout time.Duration
	keepAlive   time.Duration
	channelOpts []secure.Option
	username    domain.Username
	left        atomic.Bool
}

// Dial connects to address and completes the TLS handshake.
func Dial(ctx context.Context, address string, cfg *tls.Config, opts ...Option) (*Client, error) {
	c := &Client{log: slog.Default(), dialTimeout: 10 * time.Second, keepAlive: DefaultKeepAlive}
	for _, opt := range opts {
		opt(c)
	}
	if cfg != nil && cfg.InsecureSkipVerify {
		c.log.Warn("Server certificate is not verified, development mode only", "address", address)
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("could not connect to server at %s: %w", address, err)
	}
	channel, err := secure.Handshake(ctx, raw, secure.RoleClient, cfg, c.channelOpts...)
	if err != nil {
		return nil, err
	}
	c.channel = channel
	c.log.Debug("Connected", "address", address, "server", channel.PeerIdentity())
	return c, nil
}

// Join sends the username line. It must be the first thing sent.
func (c *Client) Join(raw string) error {
	username, err := domain.ParseUsername(raw)
	if err != nil {
		return err
	}
	if err := c.channel.WriteLine(username.String()); err != nil {
		return err
	}
	c.username = username
	return nil
}

func (c *Client) Username() domain.Username { return c.username }

// Send writes one chat line. The quit command leaves the chat instead.
func (c *Client) Send(text string) error {
	if strings.EqualFold(strings.TrimSpace(text), QuitCommand) {
		return c.Leave()
	}
	return c.channel.WriteLine(text)
}

// Leave tells the server we are going and closes the connection.
// Calling it again is a no-op.
func (c *Client) Leave() error {
	if !c.left.CompareAndSwap(false, true) {
		return nil
	}
	writeErr := c.channel.WriteLine(QuitCommand)
	closeErr := c.channel.Close()
	if writeErr != nil && !stderrors.Is(writeErr, net.ErrClosed) {
		return writeErr
	}
	return closeErr
}

// Receive calls onLine for every line broadcast by the server until the
// stream ends, ctx is done or Leave is called. A normal end returns nil.
func (c *Client) Receive(ctx context.Context, onLine func(line string)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.channel.Close() })
	defer stop()

	if c.keepAlive > 0 {
		done := make(chan struct{})
		defer close(done)
		go c.sendKeepAlives(done)
	}

	for {
		line, err := c.channel.ReadLine()
		if err != nil {
			if stderrors.Is(err, errors.ErrEndOfStream) || c.left.Load() || ctx.Err() != nil {
				return nil
			}
			return err
		}
		onLine(line)
	}
}

func (c *Client) sendKeepAlives(done <-chan struct{}) {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if c.left.Load() {
				return
			}
			if err := c.channel.WriteLine(""); err != nil {
				c.log.Debug("Keepalive failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) Close() error {
	return c.channel.Close()
}

package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"secure-chat/errors"
	"sync"
	"sync/atomic"
	"time"
)

const maxAcceptDelay = time.Second

// ConnectionHandler serves one accepted raw connection until it is closed.
type ConnectionHandler interface {
	Serve(ctx context.Context, raw net.Conn) *Session
}

// Acceptor owns the listening socket and spawns one goroutine per connection,
// handshake included, so a stalled peer never delays the next accept.
type Acceptor struct {
	log      *slog.Logger
	handler  ConnectionHandler
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closing  atomic.Bool
}

func NewAcceptor(log *slog.Logger, handler ConnectionHandler) *Acceptor {
	return &Acceptor{log: log, handler: handler, conns: make(map[net.Conn]struct{})}
}

// Listen binds address. Any failure is an ErrListen.
func (a *Acceptor) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrListen, err)
	}
	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()
	a.log.Info("Listening", "address", listener.Addr().String())
	return nil
}

// Addr is the bound address, nil before Listen.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Serve accepts connections until ctx is canceled or Shutdown is called, in
// which case it returns nil. Transient accept errors are logged and retried;
// any other error invalidates the socket and is returned as ErrListen.
func (a *Acceptor) Serve(ctx context.Context) error {
	a.mu.Lock()
	listener := a.listener
	a.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("%w: not listening", errors.ErrListen)
	}

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	var delay time.Duration
	for {
		raw, err := listener.Accept()
		if err != nil {
			if a.closing.Load() || ctx.Err() != nil {
				return nil
			}
			if isTransient(err) {
				delay = nextDelay(delay)
				a.log.Warn("Accept failed, retrying", "error", err, "retry_in", delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			_ = listener.Close()
			return fmt.Errorf("%w: %w", errors.ErrListen, err)
		}
		delay = 0

		if !a.track(raw) {
			_ = raw.Close()
			continue
		}
		go func() {
			defer a.wg.Done()
			defer a.untrack(raw)
			a.handler.Serve(ctx, raw)
		}()
	}
}

// Shutdown closes the listener and every open connection, then waits for the
// handlers to finish, at most timeout.
func (a *Acceptor) Shutdown(timeout time.Duration) error {
	a.closing.Store(true)

	a.mu.Lock()
	if a.listener != nil {
		_ = a.listener.Close()
	}
	for conn := range a.conns {
		_ = conn.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: handlers still running after %v", errors.ErrServerClosed, timeout)
	}
}

// Open is the number of connections currently served.
func (a *Acceptor) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// track registers conn and counts its handler, under the lock Shutdown takes
// before waiting, so Shutdown either refuses conn or waits for it.
func (a *Acceptor) track(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing.Load() {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn)
	_ = conn.Close()
}

func isTransient(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return stderrors.As(err, &temporary) && temporary.Temporary()
}

func nextDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	return min(delay*2, maxAcceptDelay)
}

package secure

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"secure-chat/certs"
	"secure-chat/errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixtures struct {
	server   certs.Pair
	client   certs.Pair
	stranger certs.Pair
}

var loadFixtures = sync.OnceValues(func() (fixtures, error) {
	server, err := certs.Generate(certs.ServerOptions())
	if err != nil {
		return fixtures{}, err
	}
	client, err := certs.Generate(certs.ClientOptions())
	if err != nil {
		return fixtures{}, err
	}
	stranger, err := certs.Generate(certs.Options{CommonName: "stranger.localhost"})
	if err != nil {
		return fixtures{}, err
	}
	return fixtures{server: server, client: client, stranger: stranger}, nil
})

func mustFixtures(t *testing.T) fixtures {
	t.Helper()
	f, err := loadFixtures()
	require.NoError(t, err)
	return f
}

type handshakeResult struct {
	channel *Channel
	err     error
}

// handshakePair connects a client and a server over loopback TCP.
func handshakePair(t *testing.T, serverCfg, clientCfg *tls.Config, opts ...Option) (handshakeResult, handshakeResult) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	serverDone := make(chan handshakeResult, 1)
	go func() {
		raw, err := listener.Accept()
		if err != nil {
			serverDone <- handshakeResult{err: err}
			return
		}
		ch, err := Handshake(context.Background(), raw, RoleServer, serverCfg, opts...)
		serverDone <- handshakeResult{channel: ch, err: err}
	}()

	raw, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	ch, clientErr := Handshake(context.Background(), raw, RoleClient, clientCfg, opts...)
	client := handshakeResult{channel: ch, err: clientErr}

	select {
	case server := <-serverDone:
		t.Cleanup(func() {
			if server.channel != nil {
				_ = server.channel.Close()
			}
			if client.channel != nil {
				_ = client.channel.Close()
			}
		})
		return server, client
	case <-time.After(5 * time.Second):
		t.Fatal("server handshake did not complete")
		return handshakeResult{}, handshakeResult{}
	}
}

func verifiedConfigs(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	f := mustFixtures(t)
	serverCfg, err := ServerConfig(Material{CertPEM: f.server.CertPEM, KeyPEM: f.server.KeyPEM}, ModeVerifyServer)
	require.NoError(t, err)
	clientCfg, err := ClientConfig(Material{RootPEM: f.server.CertPEM}, ModeVerifyServer, "localhost")
	require.NoError(t, err)
	return serverCfg, clientCfg
}

func TestHandshake_VerifyServer_LinesFlowBothWays(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)

	// Given an established channel verified against the server root
	server, client := handshakePair(t, serverCfg, clientCfg)
	req.NoError(server.err)
	req.NoError(client.err)
	req.NotEmpty(server.channel.ID())
	req.NotEqual(server.channel.ID(), client.channel.ID())
	req.Empty(server.channel.PeerIdentity())
	req.Equal("localhost", client.channel.PeerIdentity())

	// When the client writes two frames
	req.NoError(client.channel.WriteLine("alice"))
	req.NoError(client.channel.Write([]byte("hello\r\n")))

	// Then the server reads them without delimiters
	line, err := server.channel.ReadLine()
	req.NoError(err)
	req.Equal("alice", line)
	line, err = server.channel.ReadLine()
	req.NoError(err)
	req.Equal("hello", line)

	// And the other direction works too
	req.NoError(server.channel.WriteLine("bob: hi"))
	line, err = client.channel.ReadLine()
	req.NoError(err)
	req.Equal("bob: hi", line)
}

func TestChannel_ReadLine_SplitsOversizedFrames(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)
	server, client := handshakePair(t, serverCfg, clientCfg, WithMaxFrameSize(16))
	req.NoError(server.err)
	req.NoError(client.err)

	// When a line longer than the frame bound is sent
	long := strings.Repeat("a", 20)
	req.NoError(client.channel.WriteLine(long))

	// Then it is delivered as two bounded frames
	first, err := server.channel.ReadLine()
	req.NoError(err)
	req.Equal(strings.Repeat("a", 16), first)
	second, err := server.channel.ReadLine()
	req.NoError(err)
	req.Equal(strings.Repeat("a", 4), second)
}

func TestChannel_ReadLine_SplitKeepsCharactersWhole(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)
	server, client := handshakePair(t, serverCfg, clientCfg, WithMaxFrameSize(16))
	req.NoError(server.err)
	req.NoError(client.err)

	// Given a two byte character straddling the frame bound
	req.NoError(client.channel.WriteLine(strings.Repeat("a", 15) + "é" + "tail"))

	// Then the first frame stops before it
	first, err := server.channel.ReadLine()
	req.NoError(err)
	req.Equal(strings.Repeat("a", 15), first)

	// And the character opens the next frame intact
	second, err := server.channel.ReadLine()
	req.NoError(err)
	req.Equal("étail", second)
}

func TestCompletePrefix(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		expected int
	}{
		{name: "ascii", in: []byte("abc"), expected: 3},
		{name: "complete two bytes", in: []byte("aé"), expected: 3},
		{name: "cut two bytes", in: []byte("aé")[:2], expected: 1},
		{name: "cut four bytes", in: []byte("a👋")[:3], expected: 1},
		{name: "invalid tail kept", in: []byte{'a', 0xff}, expected: 2},
		{name: "empty", in: nil, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, completePrefix(tt.in))
		})
	}
}

func TestChannel_ReadLine_EndOfStream(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)
	server, client := handshakePair(t, serverCfg, clientCfg)
	req.NoError(server.err)
	req.NoError(client.err)

	// Given a trailing frame without delimiter followed by a clean close
	req.NoError(client.channel.Write([]byte("bye")))
	req.NoError(client.channel.Close())

	// Then the frame is delivered, then the end of stream
	line, err := server.channel.ReadLine()
	req.NoError(err)
	req.Equal("bye", line)
	_, err = server.channel.ReadLine()
	req.ErrorIs(err, errors.ErrEndOfStream)
}

func TestChannel_ReadLine_IdleTimeout(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)
	server, client := handshakePair(t, serverCfg, clientCfg, WithReadTimeout(50*time.Millisecond))
	req.NoError(server.err)
	req.NoError(client.err)

	// When the peer stays silent longer than the read timeout
	_, err := server.channel.ReadLine()

	// Then a read error wrapping the deadline is returned
	req.ErrorIs(err, errors.ErrRead)
	req.ErrorIs(err, os.ErrDeadlineExceeded)
}

func TestChannel_Write_BoundedByTimeout(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)
	server, client := handshakePair(t, serverCfg, clientCfg, WithWriteTimeout(100*time.Millisecond))
	req.NoError(server.err)
	req.NoError(client.err)

	// Given a client that never reads
	payload := make([]byte, 64<<20)

	// When the server writes more than the socket buffers can hold
	done := make(chan error, 1)
	go func() { done <- server.channel.Write(payload) }()

	// Then the write fails instead of blocking forever
	select {
	case err := <-done:
		req.ErrorIs(err, errors.ErrWrite)
	case <-time.After(5 * time.Second):
		req.Fail("write was not bounded by its deadline")
	}
}

func TestChannel_Close_Idempotent(t *testing.T) {
	req := require.New(t)
	serverCfg, clientCfg := verifiedConfigs(t)
	server, client := handshakePair(t, serverCfg, clientCfg)
	req.NoError(server.err)
	req.NoError(client.err)

	// When the channel is closed twice
	_ = server.channel.Close()
	req.NoError(server.channel.Close())

	// Then writes fail with a write error and reads with a read error
	req.ErrorIs(server.channel.WriteLine("late"), errors.ErrWrite)
	_, err := server.channel.ReadLine()
	req.ErrorIs(err, errors.ErrRead)
}

func TestHandshake_Mutual(t *testing.T) {
	f := mustFixtures(t)
	serverCfg, err := ServerConfig(Material{CertPEM: f.server.CertPEM, KeyPEM: f.server.KeyPEM, RootPEM: f.client.CertPEM}, ModeMutual)
	require.NoError(t, err)

	t.Run("trusted client certificate", func(t *testing.T) {
		req := require.New(t)
		clientCfg, err := ClientConfig(Material{CertPEM: f.client.CertPEM, KeyPEM: f.client.KeyPEM, RootPEM: f.server.CertPEM}, ModeMutual, "localhost")
		req.NoError(err)

		server, client := handshakePair(t, serverCfg, clientCfg)
		req.NoError(server.err)
		req.NoError(client.err)
		req.Equal(certs.ClientCommonName, server.channel.PeerIdentity())
	})

	t.Run("untrusted client certificate", func(t *testing.T) {
		req := require.New(t)
		clientCfg, err := ClientConfig(Material{CertPEM: f.stranger.CertPEM, KeyPEM: f.stranger.KeyPEM, RootPEM: f.server.CertPEM}, ModeMutual, "localhost")
		req.NoError(err)

		server, _ := handshakePair(t, serverCfg, clientCfg)
		req.ErrorIs(server.err, errors.ErrHandshake)
		req.Nil(server.channel)
	})

	t.Run("no client certificate", func(t *testing.T) {
		req := require.New(t)
		clientCfg, err := ClientConfig(Material{RootPEM: f.server.CertPEM}, ModeVerifyServer, "localhost")
		req.NoError(err)

		server, _ := handshakePair(t, serverCfg, clientCfg)
		req.ErrorIs(server.err, errors.ErrHandshake)
	})
}

func TestHandshake_ClientRejectsUnknownServer(t *testing.T) {
	req := require.New(t)
	f := mustFixtures(t)
	serverCfg, err := ServerConfig(Material{CertPEM: f.server.CertPEM, KeyPEM: f.server.KeyPEM}, ModeNone)
	req.NoError(err)

	// Given a client trusting another root
	clientCfg, err := ClientConfig(Material{RootPEM: f.stranger.CertPEM}, ModeVerifyServer, "localhost")
	req.NoError(err)

	// Then the client refuses the handshake
	_, client := handshakePair(t, serverCfg, clientCfg)
	req.ErrorIs(client.err, errors.ErrHandshake)
	req.Nil(client.channel)
}

func TestHandshake_InsecureModeAcceptsAnyServer(t *testing.T) {
	req := require.New(t)
	f := mustFixtures(t)
	serverCfg, err := ServerConfig(Material{CertPEM: f.stranger.CertPEM, KeyPEM: f.stranger.KeyPEM}, ModeNone)
	req.NoError(err)
	clientCfg, err := ClientConfig(Material{}, ModeNone, "localhost")
	req.NoError(err)

	server, client := handshakePair(t, serverCfg, clientCfg)
	req.NoError(server.err)
	req.NoError(client.err)
}

func TestHandshake_InvalidOption(t *testing.T) {
	req := require.New(t)
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	_, err := Handshake(context.Background(), serverSide, RoleServer, &tls.Config{}, WithMaxFrameSize(1))
	req.ErrorIs(err, errors.ErrHandshake)

	// Then the raw connection has been closed
	_, err = serverSide.Write([]byte("x"))
	req.ErrorIs(err, io.ErrClosedPipe)
}

func TestHandshake_Timeout(t *testing.T) {
	req := require.New(t)
	serverCfg, _ := verifiedConfigs(t)
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	// When the peer never speaks TLS
	start := time.Now()
	_, err := Handshake(context.Background(), serverSide, RoleServer, serverCfg, WithHandshakeTimeout(50*time.Millisecond))

	// Then the handshake gives up quickly
	req.ErrorIs(err, errors.ErrHandshake)
	req.Less(time.Since(start), 2*time.Second)
}

package e2e

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"secure-chat/certs"
	"secure-chat/client"
	"secure-chat/runtime"
	"secure-chat/runtime/workers"
	"secure-chat/secure"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseChatSuite struct {
	suite.Suite
	Config   Config
	server   certs.Pair
	client   certs.Pair
	stranger certs.Pair
	running  []*runtime.Orchestrator
}

// SetupSuite loads the environment configuration and generates the certificates.
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	s.server, err = certs.Generate(certs.ServerOptions())
	s.Require().NoError(err)
	s.client, err = certs.Generate(certs.ClientOptions())
	s.Require().NoError(err)
	s.stranger, err = certs.Generate(certs.Options{CommonName: "stranger.localhost"})
	s.Require().NoError(err)
}

func (s *BaseChatSuite) TearDownTest() {
	for _, o := range s.running {
		o.Stop()
	}
	s.running = nil
}

func (s *BaseChatSuite) External() bool { return s.Config.ChatAddr != "" }

// StartServer returns the address of a server running in mode.
func (s *BaseChatSuite) StartServer(mode secure.Mode) string {
	if s.External() {
		return s.Config.ChatAddr
	}
	log := logs.GetLoggerFromLevel(slog.LevelInfo)
	material := secure.Material{CertPEM: s.server.CertPEM, KeyPEM: s.server.KeyPEM}
	if mode == secure.ModeMutual {
		material.RootPEM = s.client.CertPEM
	}
	tlsConfig, err := secure.ServerConfig(material, mode)
	s.Require().NoError(err)

	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), runtime.OrchestratorConfig{
		Handler: runtime.HandlerConfig{
			TLS:              tlsConfig,
			HandshakeTimeout: s.Config.Timeout,
			WriteTimeout:     s.Config.Timeout,
		},
		ShutdownTimeout: s.Config.Timeout,
	})
	s.Require().NoError(orchestrator.Listen("127.0.0.1:0"))
	go func() { _ = orchestrator.Serve(context.Background()) }()
	s.running = append(s.running, orchestrator)
	return orchestrator.Addr().String()
}

// ClientConfig builds a client TLS config for mode. trusted selects the
// client certificate the server knows in mutual mode.
func (s *BaseChatSuite) ClientConfig(mode secure.Mode, trusted bool) *tls.Config {
	if s.External() {
		mode = secure.ModeNone
	}
	material := secure.Material{RootPEM: s.server.CertPEM}
	if mode == secure.ModeMutual {
		identity := s.client
		if !trusted {
			identity = s.stranger
		}
		material.CertPEM, material.KeyPEM = identity.CertPEM, identity.KeyPEM
	}
	cfg, err := secure.ClientConfig(material, mode, "localhost")
	s.Require().NoError(err)
	return cfg
}

// Step prints a colorized header for a scenario step in logs.
func (s *BaseChatSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Participant is a joined client whose received lines are buffered.
type Participant struct {
	*client.Client
	Name     string
	lines    chan string
	received chan error
}

// Join dials addr, sends username and starts collecting broadcast lines.
func (s *BaseChatSuite) Join(addr string, cfg *tls.Config, username string) *Participant {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
	defer cancel()
	c, err := client.Dial(ctx, addr, cfg, client.WithChannelOptions(secure.WithHandshakeTimeout(s.Config.Timeout)))
	s.Require().NoError(err, "dial as %s", username)
	s.Require().NoError(c.Join(username))

	p := &Participant{Client: c, Name: username, lines: make(chan string, 64), received: make(chan error, 1)}
	go func() {
		p.received <- c.Receive(context.Background(), func(line string) { p.lines <- line })
		close(p.lines)
	}()
	s.T().Cleanup(func() { _ = c.Leave() })
	return p
}

// Expect waits for the next line p receives and checks it.
func (s *BaseChatSuite) Expect(p *Participant, expected string) {
	select {
	case line, ok := <-p.lines:
		s.Require().True(ok, "%s: stream ended while waiting for %q", p.Name, expected)
		s.Require().Equal(expected, line, "%s received an unexpected line", p.Name)
	case <-time.After(s.Config.Timeout):
		s.Require().Failf("timeout", "%s never received %q", p.Name, expected)
	}
}

// ExpectSilence checks p receives nothing during d.
func (s *BaseChatSuite) ExpectSilence(p *Participant, d time.Duration) {
	select {
	case line, ok := <-p.lines:
		if ok {
			s.Require().Failf("unexpected line", "%s received %q", p.Name, line)
		}
	case <-time.After(d):
	}
}

// ExpectEnd waits for the end of p's stream.
func (s *BaseChatSuite) ExpectEnd(p *Participant) error {
	select {
	case err := <-p.received:
		return err
	case <-time.After(s.Config.Timeout):
		s.Require().Failf("timeout", "%s stream never ended", p.Name)
		return nil
	}
}

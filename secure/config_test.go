package secure

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"secure-chat/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		raw      string
		expected Mode
		err      bool
	}{
		{raw: "none", expected: ModeNone},
		{raw: "verify-server", expected: ModeVerifyServer},
		{raw: "mutual", expected: ModeMutual},
		{raw: "MUTUAL", err: true},
		{raw: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req := require.New(t)
			mode, err := ParseMode(tt.raw)
			if tt.err {
				req.ErrorIs(err, errors.ErrInvalidMode)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, mode)
		})
	}
}

func TestServerConfig(t *testing.T) {
	f := mustFixtures(t)
	identity := Material{CertPEM: f.server.CertPEM, KeyPEM: f.server.KeyPEM}

	t.Run("without client authentication", func(t *testing.T) {
		req := require.New(t)
		cfg, err := ServerConfig(identity, ModeVerifyServer)
		req.NoError(err)
		req.Len(cfg.Certificates, 1)
		req.Equal(tls.NoClientCert, cfg.ClientAuth)
		req.Equal(uint16(tls.VersionTLS12), cfg.MinVersion)
	})

	t.Run("mutual requires a trusted root", func(t *testing.T) {
		req := require.New(t)
		_, err := ServerConfig(identity, ModeMutual)
		req.ErrorIs(err, errors.ErrNoCertificate)
	})

	t.Run("mutual verifies client certificates", func(t *testing.T) {
		req := require.New(t)
		withRoot := identity
		withRoot.RootPEM = f.client.CertPEM
		cfg, err := ServerConfig(withRoot, ModeMutual)
		req.NoError(err)
		req.Equal(tls.RequireAndVerifyClientCert, cfg.ClientAuth)
		req.NotNil(cfg.ClientCAs)
	})

	t.Run("broken key pair", func(t *testing.T) {
		req := require.New(t)
		_, err := ServerConfig(Material{CertPEM: f.server.CertPEM, KeyPEM: f.client.KeyPEM}, ModeNone)
		req.Error(err)
	})
}

func TestClientConfig(t *testing.T) {
	f := mustFixtures(t)

	t.Run("development mode skips verification", func(t *testing.T) {
		req := require.New(t)
		cfg, err := ClientConfig(Material{}, ModeNone, "localhost")
		req.NoError(err)
		req.True(cfg.InsecureSkipVerify)
		req.Empty(cfg.Certificates)
	})

	t.Run("verify server", func(t *testing.T) {
		req := require.New(t)
		cfg, err := ClientConfig(Material{RootPEM: f.server.CertPEM}, ModeVerifyServer, "localhost")
		req.NoError(err)
		req.False(cfg.InsecureSkipVerify)
		req.NotNil(cfg.RootCAs)
		req.Equal("localhost", cfg.ServerName)
		req.Empty(cfg.Certificates)
	})

	t.Run("mutual presents a certificate", func(t *testing.T) {
		req := require.New(t)
		cfg, err := ClientConfig(Material{CertPEM: f.client.CertPEM, KeyPEM: f.client.KeyPEM, RootPEM: f.server.CertPEM}, ModeMutual, "localhost")
		req.NoError(err)
		req.Len(cfg.Certificates, 1)
	})

	t.Run("mutual without key pair", func(t *testing.T) {
		req := require.New(t)
		_, err := ClientConfig(Material{RootPEM: f.server.CertPEM}, ModeMutual, "localhost")
		req.Error(err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		req := require.New(t)
		_, err := ClientConfig(Material{}, Mode("tofu"), "localhost")
		req.ErrorIs(err, errors.ErrInvalidMode)
	})
}

func TestLoadMaterial(t *testing.T) {
	req := require.New(t)
	f := mustFixtures(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	req.NoError(f.server.WriteFiles(certPath, keyPath))

	// When only cert and key are configured
	m, err := LoadMaterial(Files{CertFile: certPath, KeyFile: keyPath})

	// Then the root stays empty
	req.NoError(err)
	req.Equal(f.server.CertPEM, m.CertPEM)
	req.Equal(f.server.KeyPEM, m.KeyPEM)
	req.Empty(m.RootPEM)

	// And a missing file is reported
	_, err = LoadMaterial(Files{RootFile: filepath.Join(dir, "missing.crt")})
	req.ErrorIs(err, os.ErrNotExist)
}

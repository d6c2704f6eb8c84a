package secure

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"secure-chat/errors"
)

// Mode selects how peers verify each other.
type Mode string

const (
	// ModeNone disables peer verification on the client side.
	// Development only: any server certificate is accepted.
	ModeNone         Mode = "none"
	ModeVerifyServer Mode = "verify-server"
	ModeMutual       Mode = "mutual"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeVerifyServer, ModeMutual:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidMode, s)
	}
}

// Files points at PEM files on disk. Empty paths are skipped.
type Files struct {
	CertFile string
	KeyFile  string
	RootFile string
}

// Material is PEM encoded TLS material.
// Cert/Key is the local identity, Root the trusted peer root.
type Material struct {
	CertPEM []byte
	KeyPEM  []byte
	RootPEM []byte
}

func LoadMaterial(files Files) (Material, error) {
	var m Material
	var err error
	if files.CertFile != "" {
		if m.CertPEM, err = os.ReadFile(files.CertFile); err != nil {
			return Material{}, fmt.Errorf("read certificate: %w", err)
		}
	}
	if files.KeyFile != "" {
		if m.KeyPEM, err = os.ReadFile(files.KeyFile); err != nil {
			return Material{}, fmt.Errorf("read private key: %w", err)
		}
	}
	if files.RootFile != "" {
		if m.RootPEM, err = os.ReadFile(files.RootFile); err != nil {
			return Material{}, fmt.Errorf("read trusted root: %w", err)
		}
	}
	return m, nil
}

// ServerConfig always presents the server certificate. In ModeMutual the
// client must present a certificate chaining to RootPEM.
func ServerConfig(m Material, mode Mode) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("load server key pair: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	switch mode {
	case ModeNone, ModeVerifyServer:
		cfg.ClientAuth = tls.NoClientCert
	case ModeMutual:
		pool, err := certPool(m.RootPEM)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidMode, mode)
	}
	return cfg, nil
}

// ClientConfig builds the dialing side. serverName is checked against the
// server certificate unless mode is ModeNone.
func ClientConfig(m Material, mode Mode, serverName string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	switch mode {
	case ModeNone:
		cfg.InsecureSkipVerify = true
	case ModeVerifyServer, ModeMutual:
		pool, err := certPool(m.RootPEM)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidMode, mode)
	}
	if mode == ModeMutual {
		cert, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
		if err != nil {
			return nil, fmt.Errorf("load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func certPool(rootPEM []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootPEM) {
		return nil, fmt.Errorf("trusted root: %w", errors.ErrNoCertificate)
	}
	return pool, nil
}

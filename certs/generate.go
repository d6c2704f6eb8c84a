// Package certs produces self-signed PEM material for development and tests.
package certs

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

const (
	DefaultKeyBits  = 2048
	DefaultValidFor = 365 * 24 * time.Hour

	ServerCommonName = "localhost"
	ClientCommonName = "client.localhost"
)

type Options struct {
	CommonName string
	DNSNames   []string
	IPs        []net.IP
	KeyBits    int
	ValidFor   time.Duration
	// Now is only set by tests to pin the validity window.
	Now func() time.Time
}

// Pair holds a PEM certificate and its PKCS#8 PEM private key.
type Pair struct {
	CertPEM []byte
	KeyPEM  []byte
}

func ServerOptions() Options {
	return Options{CommonName: ServerCommonName, DNSNames: []string{"localhost"}}
}

func ClientOptions() Options {
	return Options{CommonName: ClientCommonName, DNSNames: []string{"localhost"}}
}

// Generate creates a self-signed RSA certificate signed with SHA-256.
// The certificate can serve as a leaf and as its own trusted root, for both
// server and client authentication.
func Generate(opts Options) (Pair, error) {
	if opts.KeyBits == 0 {
		opts.KeyBits = DefaultKeyBits
	}
	if opts.ValidFor == 0 {
		opts.ValidFor = DefaultValidFor
	}
	if opts.CommonName == "" {
		opts.CommonName = ServerCommonName
	}
	if len(opts.DNSNames) == 0 {
		opts.DNSNames = []string{"localhost"}
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return Pair{}, fmt.Errorf("generate rsa key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Pair{}, fmt.Errorf("generate serial number: %w", err)
	}

	notBefore := now().UTC()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.CommonName},
		Issuer:                pkix.Name{CommonName: opts.CommonName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(opts.ValidFor),
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPs,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return Pair{}, fmt.Errorf("create certificate: %w", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Pair{}, fmt.Errorf("marshal private key: %w", err)
	}

	return Pair{
		CertPEM: pemEncode("CERTIFICATE", der),
		KeyPEM:  pemEncode("PRIVATE KEY", pkcs8),
	}, nil
}

// WriteFiles stores the pair on disk. The key file is only readable by its owner.
func (p Pair) WriteFiles(certPath, keyPath string) error {
	if err := os.WriteFile(certPath, p.CertPEM, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", certPath, err)
	}
	if err := os.WriteFile(keyPath, p.KeyPEM, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", keyPath, err)
	}
	return nil
}

// Certificate parses the certificate half of the pair.
func (p Pair) Certificate() (*x509.Certificate, error) {
	block, _ := pem.Decode(p.CertPEM)
	if block == nil {
		return nil, fmt.Errorf("no pem block in certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}

func pemEncode(kind string, der []byte) []byte {
	var buf bytes.Buffer
	_ = pem.Encode(&buf, &pem.Block{Type: kind, Bytes: der})
	return buf.Bytes()
}

package runtime

import (
	"crypto/tls"
	"secure-chat/certs"
	"secure-chat/secure"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type certFixtures struct {
	server   certs.Pair
	client   certs.Pair
	stranger certs.Pair
}

var loadCertFixtures = sync.OnceValues(func() (certFixtures, error) {
	var f certFixtures
	var err error
	if f.server, err = certs.Generate(certs.ServerOptions()); err != nil {
		return f, err
	}
	if f.client, err = certs.Generate(certs.ClientOptions()); err != nil {
		return f, err
	}
	f.stranger, err = certs.Generate(certs.Options{CommonName: "stranger.localhost"})
	return f, err
})

func mustCertFixtures(t *testing.T) certFixtures {
	t.Helper()
	f, err := loadCertFixtures()
	require.NoError(t, err)
	return f
}

// testTLSConfigs returns a server config and a client config verifying it.
func testTLSConfigs(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	f := mustCertFixtures(t)
	serverCfg, err := secure.ServerConfig(secure.Material{CertPEM: f.server.CertPEM, KeyPEM: f.server.KeyPEM}, secure.ModeVerifyServer)
	require.NoError(t, err)
	clientCfg, err := secure.ClientConfig(secure.Material{RootPEM: f.server.CertPEM}, secure.ModeVerifyServer, "localhost")
	require.NoError(t, err)
	return serverCfg, clientCfg
}

// mutualTLSConfigs returns a server requiring client certificates, a trusted
// client config and an untrusted one.
func mutualTLSConfigs(t *testing.T) (*tls.Config, *tls.Config, *tls.Config) {
	t.Helper()
	f := mustCertFixtures(t)
	serverCfg, err := secure.ServerConfig(secure.Material{CertPEM: f.server.CertPEM, KeyPEM: f.server.KeyPEM, RootPEM: f.client.CertPEM}, secure.ModeMutual)
	require.NoError(t, err)
	trusted, err := secure.ClientConfig(secure.Material{CertPEM: f.client.CertPEM, KeyPEM: f.client.KeyPEM, RootPEM: f.server.CertPEM}, secure.ModeMutual, "localhost")
	require.NoError(t, err)
	untrusted, err := secure.ClientConfig(secure.Material{CertPEM: f.stranger.CertPEM, KeyPEM: f.stranger.KeyPEM, RootPEM: f.server.CertPEM}, secure.ModeMutual, "localhost")
	require.NoError(t, err)
	return serverCfg, trusted, untrusted
}

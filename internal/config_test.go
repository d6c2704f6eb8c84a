package internal

import (
	"os"
	"path/filepath"
	"secure-chat/secure"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)

	config, err := LoadConfig(noDotenv(t))

	req.NoError(err)
	req.Equal("localhost:8443", config.Address())
	req.Equal("none", config.Mode)
	req.Equal(10*time.Second, config.HandshakeTimeout)
	req.Equal(10*time.Minute, config.ReadTimeout)
	req.Equal(1024, config.MaxFrameSize)
	req.Equal(256, config.AuditBufferSize)
	req.Nil(config.LimitAuditRecords)
	req.Equal("*", config.CharReplacement)
	req.Equal(secure.Files{CertFile: "server.crt", KeyFile: "server.key"}, config.TLSFiles())
}

func TestLoadConfig_FromDotenv(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("CHAT_PORT=9000\nTLS_MODE=mutual\nTLS_CLIENT_CA_FILE=client.crt\nLIMIT_AUDIT_RECORDS=20\n"), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"CHAT_PORT", "TLS_MODE", "TLS_CLIENT_CA_FILE", "LIMIT_AUDIT_RECORDS"} {
			_ = os.Unsetenv(key)
		}
	})

	config, err := LoadConfig(path)

	req.NoError(err)
	req.Equal(9000, config.Port)
	mode, err := config.TLSMode()
	req.NoError(err)
	req.Equal(secure.ModeMutual, mode)
	req.Equal("client.crt", config.TLSFiles().RootFile)
	req.Equal(20, *config.LimitAuditRecords)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown tls mode", env: map[string]string{"TLS_MODE": "sometimes"}},
		{name: "mutual without client ca", env: map[string]string{"TLS_MODE": "mutual"}},
		{name: "port out of range", env: map[string]string{"CHAT_PORT": "70000"}},
		{name: "tiny frames", env: map[string]string{"MAX_FRAME_SIZE": "4"}},
		{name: "replacement is a word", env: map[string]string{"CHARACTER_REPLACEMENT": "**"}},
		{name: "zero audit limit", env: map[string]string{"LIMIT_AUDIT_RECORDS": "0"}},
		{name: "not a duration", env: map[string]string{"WRITE_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := LoadConfig(noDotenv(t))
			require.Error(t, err)
		})
	}
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)
	r, err := CharacterRune("€")
	req.NoError(err)
	req.Equal('€', r)

	_, err = CharacterRune("")
	req.Error(err)
}

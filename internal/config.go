package internal

import (
	"fmt"
	"net"
	"secure-chat/secure"
	"strconv"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the chat server configuration, read from the environment.
type Config struct {
	Host              string        `env:"CHAT_HOST,default=localhost" validate:"required"`
	Port              int           `env:"CHAT_PORT,default=8443" validate:"min=0,max=65535"`
	CertFile          string        `env:"TLS_CERT_FILE,default=server.crt" validate:"required"`
	KeyFile           string        `env:"TLS_KEY_FILE,default=server.key" validate:"required"`
	ClientCAFile      string        `env:"TLS_CLIENT_CA_FILE" validate:"required_if=Mode mutual"`
	Mode              string        `env:"TLS_MODE,default=none" validate:"oneof=none verify-server mutual"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s" validate:"gt=0"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT,default=10m" validate:"gte=0"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gte=0"`
	MaxFrameSize      int           `env:"MAX_FRAME_SIZE,default=1024" validate:"min=16"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	AuditDBPath       string        `env:"AUDIT_DB_PATH"`
	AuditBufferSize   int           `env:"AUDIT_BUFFER_SIZE,default=256" validate:"min=1"`
	LimitAuditRecords *int          `env:"LIMIT_AUDIT_RECORDS"`
	CensoredDir       string        `env:"CENSORED_DIR"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	AdminPort         int           `env:"ADMIN_PORT,default=0" validate:"min=0,max=65535"`
	DebugPort         int           `env:"DEBUG_PORT,default=0" validate:"min=0,max=65535"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s" validate:"gt=0"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
}

// LoadConfig reads an optional .env file then the environment, and validates the result.
func LoadConfig(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	// A missing .env is fine, the environment alone is enough.
	_ = godotenv.Load(dotenvFiles...)

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.LimitAuditRecords != nil && *c.LimitAuditRecords <= 0 {
		return fmt.Errorf("invalid config: LIMIT_AUDIT_RECORDS must be positive, got %d", *c.LimitAuditRecords)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) TLSMode() (secure.Mode, error) {
	return secure.ParseMode(c.Mode)
}

func (c Config) TLSFiles() secure.Files {
	files := secure.Files{CertFile: c.CertFile, KeyFile: c.KeyFile}
	if c.Mode == string(secure.ModeMutual) {
		files.RootFile = c.ClientCAFile
	}
	return files
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

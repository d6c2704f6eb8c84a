package main

import (
	"crypto/tls"
	"fmt"
	"secure-chat/secure"

	"github.com/go-playground/validator/v10"
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8443" validate:"hostname_port"`
	ServerName    string `env:"TLS_SERVER_NAME,default=localhost"`
	Mode          string `env:"TLS_MODE,default=none" validate:"oneof=none verify-server mutual"`
	CAFile        string `env:"TLS_CA_FILE" validate:"required_unless=Mode none"`
	CertFile      string `env:"TLS_CERT_FILE" validate:"required_if=Mode mutual"`
	KeyFile       string `env:"TLS_KEY_FILE" validate:"required_if=Mode mutual"`
	Username      string `env:"CHAT_USERNAME"`
	Colours       bool   `env:"CHAT_COLOURS,default=true"`
	LogLevel      string `env:"LOG_LEVEL,default=WARN"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	mode, err := secure.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	files := secure.Files{RootFile: c.CAFile}
	if mode == secure.ModeMutual {
		files.CertFile, files.KeyFile = c.CertFile, c.KeyFile
	}
	material, err := secure.LoadMaterial(files)
	if err != nil {
		return nil, err
	}
	return secure.ClientConfig(material, mode, c.ServerName)
}

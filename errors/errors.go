package errors

import "fmt"

var (
	ErrHandshake     = fmt.Errorf("tls handshake failed")
	ErrRead          = fmt.Errorf("read failed")
	ErrEndOfStream   = fmt.Errorf("peer closed the connection")
	ErrWrite         = fmt.Errorf("write failed")
	ErrListen        = fmt.Errorf("listener failed")
	ErrServerClosed  = fmt.Errorf("server closed")
	ErrInvalidMode   = fmt.Errorf("invalid tls verification mode")
	ErrNoCertificate = fmt.Errorf("no certificate found in pem data")
	ErrEmptyUsername = fmt.Errorf("username cannot be empty")

	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
)

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"secure-chat/client"
	"secure-chat/domain"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the client lifecycle: configuration, handshake, username prompt,
// then two loops, one printing what the server broadcasts and one sending what
// the operator types.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	tlsConfig, err := config.TLSConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	if !config.Colours {
		color.Disable()
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish the secure connection.
	c, err := client.Dial(ctx, config.ServerAddress, tlsConfig, client.WithLogger(log))
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Leave() }()

	stdin := bufio.NewScanner(os.Stdin)
	username, err := promptUsername(stdin, os.Stdout, config.Username)
	if err != nil {
		return exitRuntime, err
	}
	if err := c.Join(username); err != nil {
		return exitRuntime, err
	}
	fmt.Println(color.FgGreen.Render(fmt.Sprintf(">>> Connected to %s as %s (type quit or Ctrl+C to leave)", config.ServerAddress, username)))

	// 4. Reception loop.
	received := make(chan error, 1)
	go func() {
		received <- c.Receive(ctx, func(line string) { fmt.Println(render(line)) })
	}()

	// 5. Operator loop.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for stdin.Scan() {
			lines <- stdin.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err := <-received:
			if err != nil {
				return exitRuntime, err
			}
			fmt.Println(color.FgYellow.Render("Server closed the connection"))
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(line), client.QuitCommand) {
				return exitOK, nil
			}
			if err := c.Send(line); err != nil {
				return exitRuntime, err
			}
		}
	}
}

// promptUsername asks until a non-empty name is given. preset skips the prompt.
func promptUsername(in *bufio.Scanner, out io.Writer, preset string) (string, error) {
	if name, err := domain.ParseUsername(preset); err == nil {
		return name.String(), nil
	}
	for {
		fmt.Fprint(out, "Enter your username: ")
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		name, err := domain.ParseUsername(in.Text())
		if err == nil {
			return name.String(), nil
		}
		fmt.Fprintln(out, color.FgRed.Render("Username cannot be empty!"))
	}
}

func render(line string) string {
	switch {
	case strings.HasSuffix(line, " has joined the chat"):
		return color.FgGreen.Render(line)
	case strings.HasSuffix(line, " has left the chat"):
		return color.FgYellow.Render(line)
	default:
		return line
	}
}

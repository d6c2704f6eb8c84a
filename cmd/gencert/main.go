package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"secure-chat/certs"
	"strings"
	"time"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gencert: %v\n", err)
	}
	os.Exit(code)
}

// run writes server.{crt,key} and client.{crt,key} into the output directory.
func run(args []string) (int, error) {
	flags := flag.NewFlagSet("gencert", flag.ContinueOnError)
	out := flags.String("out", ".", "Output directory")
	hosts := flags.String("hosts", "localhost", "Comma separated DNS names and IPs of the server certificate")
	bits := flags.Int("bits", certs.DefaultKeyBits, "RSA key size")
	validFor := flags.Duration("valid-for", certs.DefaultValidFor, "Validity period")
	if err := flags.Parse(args); err != nil {
		return exitConfig, err
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return exitRuntime, err
	}

	server := certs.ServerOptions()
	server.DNSNames, server.IPs = splitHosts(*hosts)
	client := certs.ClientOptions()
	for _, opts := range []*certs.Options{&server, &client} {
		opts.KeyBits = *bits
		opts.ValidFor = *validFor
	}

	for name, opts := range map[string]certs.Options{"server": server, "client": client} {
		pair, err := certs.Generate(opts)
		if err != nil {
			return exitRuntime, fmt.Errorf("%s certificate: %w", name, err)
		}
		certPath := filepath.Join(*out, name+".crt")
		keyPath := filepath.Join(*out, name+".key")
		if err := pair.WriteFiles(certPath, keyPath); err != nil {
			return exitRuntime, err
		}
		fmt.Printf("%s: %s, %s (CN=%s, until %s)\n", name, certPath, keyPath, opts.CommonName,
			time.Now().Add(opts.ValidFor).Format(time.DateOnly))
	}
	return exitOK, nil
}

func splitHosts(hosts string) ([]string, []net.IP) {
	var names []string
	var ips []net.IP
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else {
			names = append(names, h)
		}
	}
	return names, ips
}

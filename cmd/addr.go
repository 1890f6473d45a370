package cmd

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// serve binds loopback by default; anything wider should sit behind a
// reverse proxy that terminates TLS.
const defaultListenAddr = "127.0.0.1:8080"

// parseServeAddr resolves the listen address for serve. The address can be
// given positionally or with --addr:
//
//	plantia serve
//	plantia serve :9090
//	plantia serve --addr 0.0.0.0:8080
func parseServeAddr() (string, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addr := fs.String("addr", defaultListenAddr, "listen address (host:port)")

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*addr = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing serve flags: %w", err)
	}

	if err := validateAddr(*addr); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", *addr, err)
	}
	return *addr, nil
}

// validateAddr rejects malformed listen addresses up front, so a typo fails
// with a clear message instead of a late listen error.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}

	if port == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port out of range (0-65535, 0 auto-assigns): %d", n)
	}

	// Host may be empty (all interfaces), an IP, or a hostname. Hostnames
	// are not resolved here; only obvious garbage is rejected.
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " \t\n") {
		return fmt.Errorf("invalid host: %q", host)
	}
	return nil
}

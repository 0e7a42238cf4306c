// Package netproxy builds HTTP clients for the cloud speech providers,
// optionally routed through a SOCKS5 proxy.
package netproxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultTimeout is the request timeout used when none is given.
const DefaultTimeout = 30 * time.Second

// HTTPClient returns a client with the given timeout. When socksAddr is
// non-empty all connections are dialed through that SOCKS5 proxy.
func HTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if socksAddr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("netproxy: socks5 %s: %w", socksAddr, err)
	}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		dial = cd.DialContext
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dial
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

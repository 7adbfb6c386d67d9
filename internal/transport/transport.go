// Package transport provides the HTTP transport used for storefront
// backend calls.
//
// Go's standard TLS client has a distinctive fingerprint, and the
// storefront backend sits behind a CDN that JA3-fingerprints clients
// and aggressively rate-limits anything that does not look like a
// browser. This transport uses uTLS to present a Chrome-like TLS
// fingerprint, lets ALPN negotiate naturally (h2, http/1.1), and uses
// Go's http2.Transport for HTTP/2 framing when negotiated.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// NewBrowserTransport creates an http.RoundTripper presenting Chrome's
// TLS fingerprint to the backend. Supports HTTP/2 and HTTP/1.1 based
// on ALPN negotiation.
func NewBrowserTransport(dialTimeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: dialTimeout}

	t := &browserTransport{}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialBrowserTLS(ctx, dialer, network, addr)
		},
	}
	t.h1 = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialBrowserTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}
	return t
}

// browserTransport tries HTTP/2 first and falls back to HTTP/1.1 for
// servers that never negotiated h2.
type browserTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	slog.Debug("http2 round trip failed, retrying over http/1.1",
		slog.String("host", req.URL.Host),
		slog.String("error", err.Error()))
	return t.h1.RoundTrip(req)
}

// dialBrowserTLS establishes a TLS connection with Chrome's fingerprint.
func dialBrowserTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	// Extract hostname for SNI
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	// Chrome fingerprint with default ALPN (h2, http/1.1)
	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

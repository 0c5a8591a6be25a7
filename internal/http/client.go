package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http2"
)

// Environment toggles for HTTP/2
const (
	EnvDisableHTTP2 = "DASHPULL_DISABLE_HTTP2"
	EnvForceHTTP2   = "DASHPULL_FORCE_HTTP2"
)

// tuneTransport prepares tr for uploads. HTTP/2 is attempted unless disabled
// through the environment, and is turned off behind a proxy unless forced.
func tuneTransport(tr *nethttp.Transport, behindProxy bool) {
	tr.DisableCompression = true // reports are already zip containers
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv(EnvDisableHTTP2) == "true" || (behindProxy && os.Getenv(EnvForceHTTP2) != "true") {
		disableHTTP2(tr)
	}
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}

// proxyActive reports whether requests in mode will leave through a proxy.
func proxyActive(mode, host string) bool {
	switch mode {
	case ModeNoProxy, "":
		return false
	case ModeSystem:
		for _, k := range []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"} {
			if os.Getenv(k) != "" {
				return true
			}
		}
		return false
	default:
		return host != ""
	}
}

// WithTransportOptions returns a copy of client whose base transport has opts
// applied, keeping NTLM negotiation in place. ok is false when the client's
// transport is not one NewClient builds.
func WithTransportOptions(client *nethttp.Client, opts ...func(*nethttp.Transport)) (out *nethttp.Client, ok bool) {
	var base *nethttp.Transport
	ntlm := false
	switch rt := client.Transport.(type) {
	case nil:
		base = nethttp.DefaultTransport.(*nethttp.Transport)
	case *nethttp.Transport:
		base = rt
	case ntlmssp.Negotiator:
		if base, ok = rt.RoundTripper.(*nethttp.Transport); !ok {
			return client, false
		}
		ntlm = true
	default:
		return client, false
	}

	tr := base.Clone()
	// The h2 upgrade hook is bound to the original transport.
	if _, h2 := tr.TLSNextProto["h2"]; h2 {
		tr.TLSNextProto = nil
		_ = http2.ConfigureTransport(tr)
	}
	for _, opt := range opts {
		opt(tr)
	}

	c := *client
	if ntlm {
		c.Transport = ntlmssp.Negotiator{RoundTripper: tr}
	} else {
		c.Transport = tr
	}
	return &c, true
}

// Package http builds the outbound HTTP client used to publish run results.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/logging"
)

// Proxy modes
const (
	ModeNoProxy = "no-proxy"
	ModeSystem  = "system"
	ModeBasic   = "basic"
	ModeNTLM    = "ntlm"
)

const (
	defaultProxyPort = 8080
	warmupTimeout    = 15 * time.Second
)

// NewClient returns a client routed according to p. NTLM mode wraps the
// transport in a negotiator. When p.Warmup is set and credentials are complete,
// a request to warmupURL primes the proxy connection before returning.
func NewClient(p config.ProxyConfig, warmupURL string, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	transport := newTransport()

	mode := strings.ToLower(p.Mode)
	switch mode {
	case ModeNoProxy, "":
		transport.Proxy = nil
	case ModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment
	case ModeBasic, ModeNTLM:
		if p.Host == "" {
			logger.Warn().Str("mode", mode).Msg("Proxy host missing, connecting directly")
			transport.Proxy = nil
			break
		}
		if p.User != "" && p.Password == "" {
			logger.Warn().Str("user", p.User).Msg("Proxy password missing, proxy authentication disabled")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(p), p.NoProxy, logger)
	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", p.Mode)
	}

	tuneTransport(transport, proxyActive(mode, p.Host))

	client := &nethttp.Client{Transport: transport}
	if mode == ModeNTLM && p.Host != "" {
		client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
	}

	if p.Warmup && warmupURL != "" && mode != ModeNoProxy && mode != "" && !NeedsProxyPassword(p) {
		ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
		defer cancel()
		if err := Warmup(ctx, client, warmupURL); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
		logger.Debug().Str("url", warmupURL).Msg("Proxy warmed up")
	}
	return client, nil
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   constants.PublishConcurrency * 2,
		MaxConnsPerHost:       constants.PublishConcurrency * 4,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// buildProxyURL embeds credentials only when both user and password are set.
func buildProxyURL(p config.ProxyConfig) *url.URL {
	port := p.Port
	if port == 0 {
		port = defaultProxyPort
	}
	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, fmt.Sprintf("%d", port)),
	}
	if p.User != "" && p.Password != "" {
		proxyURL.User = url.UserPassword(p.User, p.Password)
	}
	return proxyURL
}

// Warmup issues one GET to target. Any response below 500 counts as success.
func Warmup(ctx context.Context, client *nethttp.Client, target string) error {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}
	return nil
}

// proxyFuncWithBypass routes every request through proxyURL except hosts matched
// by noProxy (hosts, domains, CIDRs as understood by httpproxy).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("Proxy bypassed")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether an authenticating proxy has a user but no password.
func NeedsProxyPassword(p config.ProxyConfig) bool {
	mode := strings.ToLower(p.Mode)
	if mode != ModeBasic && mode != ModeNTLM {
		return false
	}
	return p.User != "" && p.Password == ""
}

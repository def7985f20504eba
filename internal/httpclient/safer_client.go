// Package httpclient provides the outbound HTTP client used to reach model
// providers. Requests are restricted to an allowlist of hosts and, unless
// disabled, never dial private or loopback addresses.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/ctxeng/errors"
)

// Options customizes a SaferClient. Nil fields take defaults.
type Options struct {
	// AllowedHosts restricts requests to these hostnames (exact, case-insensitive).
	// Empty allows any public host.
	AllowedHosts []string
	// BlockPrivateIP refuses loopback, RFC 1918 and similar targets. Default: true.
	BlockPrivateIP *bool
	// MaxRedirects caps redirect chains. Default: 5.
	MaxRedirects *int
}

// SaferClient wraps http.Client with destination checks.
type SaferClient struct {
	*http.Client
	allowedHosts   map[string]bool
	blockPrivateIP bool
	maxRedirects   int
}

// New creates a client whose requests time out after timeout.
func New(timeout time.Duration, opts Options) *SaferClient {
	c := &SaferClient{
		Client:         &http.Client{Timeout: timeout},
		blockPrivateIP: true,
		maxRedirects:   5,
	}
	if opts.BlockPrivateIP != nil {
		c.blockPrivateIP = *opts.BlockPrivateIP
	}
	if opts.MaxRedirects != nil {
		c.maxRedirects = *opts.MaxRedirects
	}
	if len(opts.AllowedHosts) > 0 {
		c.allowedHosts = make(map[string]bool, len(opts.AllowedHosts))
		for _, h := range opts.AllowedHosts {
			c.allowedHosts[strings.ToLower(h)] = true
		}
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if c.blockPrivateIP {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		c.Transport = &http.Transport{
			// Resolve before dialing so a public name cannot rebind to a private address
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
			},
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return c
}

// ForBaseURL builds a client allowed to reach only baseURL's host. Loopback
// base URLs (a local proxy or test server) switch private-IP blocking off.
func ForBaseURL(timeout time.Duration, baseURL string) (*SaferClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base URL %q", baseURL)
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.Newf("base URL %q has no host", baseURL)
	}
	block := !isLocalhost(host)
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		block = false
	}
	return New(timeout, Options{AllowedHosts: []string{host}, BlockPrivateIP: &block}), nil
}

// WrapClient wraps an existing client without destination checks.
// Only for tests that talk to httptest servers.
func WrapClient(client *http.Client) *SaferClient {
	return &SaferClient{Client: client, maxRedirects: 5}
}

// Do executes req after checking its destination.
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

// ValidateURL parses urlStr and checks it against the client's rules.
func (c *SaferClient) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed", scheme)
	}
	if u.User != nil {
		return errors.New("URL must not carry userinfo")
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if c.allowedHosts != nil && !c.allowedHosts[hostname] {
		return errors.Newf("host %q is not allowed", hostname)
	}

	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

var privateBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"100.64.0.0/10", // carrier-grade NAT
		"224.0.0.0/4",
		"240.0.0.0/4",
		"fc00::/7",
		"fec0::/10",
		"2001:db8::/32",
	}
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

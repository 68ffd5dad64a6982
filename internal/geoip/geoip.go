// Package geoip resolves client IPs to their autonomous system, used for
// ASN bans and for the admin connection views.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
)

// Info is the network ownership of an IP
type Info struct {
	ASN string `json:"asn"`
	Org string `json:"org"`
}

// Resolver looks up ASN information
type Resolver interface {
	Lookup(ctx context.Context, ip string) (Info, error)
}

// Nop resolves every IP to empty Info
type Nop struct{}

// Lookup implements Resolver
func (Nop) Lookup(context.Context, string) (Info, error) { return Info{}, nil }

type cacheEntry struct {
	info      Info
	err       error
	expiresAt time.Time
}

// Client queries ipinfo.io and caches results
type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	ttl        time.Duration
	failureTTL time.Duration
	maxSize    int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewClient creates a Client from the geoip config section
func NewClient(cfg config.GeoIPConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		http:       &http.Client{Timeout: timeout},
		ttl:        cfg.CacheTTL,
		failureTTL: cfg.FailureTTL,
		maxSize:    10000,
		logger:     logger.With(slog.String("component", "geoip")),
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// Lookup implements Resolver. Private and loopback addresses resolve to
// empty Info without a network call. Failures are remembered for the
// failure TTL and returned again without contacting the provider.
func (c *Client) Lookup(ctx context.Context, ip string) (Info, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Info{}, apperrors.NewAppValidationError(fmt.Sprintf("invalid ip %q", ip), nil)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return Info{}, nil
	}

	if e, ok := c.cached(ip); ok {
		return e.info, e.err
	}

	info, err := c.fetch(ctx, ip)
	if err != nil {
		c.logger.DebugContext(ctx, "asn lookup failed",
			slog.String("ip", ip),
			slog.String("error", err.Error()))
		// a cancelled caller says nothing about the provider
		if ctx.Err() == nil {
			c.store(ip, cacheEntry{err: err}, c.failureTTL)
		}
		return Info{}, err
	}

	c.store(ip, cacheEntry{info: info}, c.ttl)
	return info, nil
}

func (c *Client) cached(ip string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok || c.now().After(e.expiresAt) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Client) store(ip string, e cacheEntry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		now := c.now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxSize {
			c.entries = make(map[string]cacheEntry)
		}
	}
	e.expiresAt = c.now().Add(ttl)
	c.entries[ip] = e
}

// ipinfoResponse is the subset of the ipinfo.io reply we use. Org reads
// "AS15169 Google LLC" on the free tier.
type ipinfoResponse struct {
	Org string `json:"org"`
	ASN *struct {
		ASN  string `json:"asn"`
		Name string `json:"name"`
	} `json:"asn,omitempty"`
}

func (c *Client) fetch(ctx context.Context, ip string) (Info, error) {
	endpoint := fmt.Sprintf("%s/%s/json", c.baseURL, url.PathEscape(ip))
	if c.token != "" {
		endpoint += "?token=" + url.QueryEscape(c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Info{}, apperrors.NewTransportError("failed to build asn request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Info{}, apperrors.NewTransportError("asn lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, apperrors.NewProtocolError(fmt.Sprintf("asn lookup returned status %d", resp.StatusCode), nil)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return Info{}, apperrors.NewProtocolError("malformed asn response", err)
	}

	if body.ASN != nil && body.ASN.ASN != "" {
		return Info{ASN: body.ASN.ASN, Org: body.ASN.Name}, nil
	}
	return parseOrg(body.Org), nil
}

// parseOrg splits "AS15169 Google LLC" into ASN and organisation
func parseOrg(org string) Info {
	org = strings.TrimSpace(org)
	asn, name, _ := strings.Cut(org, " ")
	if !strings.HasPrefix(strings.ToUpper(asn), "AS") {
		return Info{Org: org}
	}
	return Info{ASN: strings.ToUpper(asn), Org: strings.TrimSpace(name)}
}

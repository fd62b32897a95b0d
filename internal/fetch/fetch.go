// Package fetch performs the outbound HTTP requests to the federation
// website on behalf of the rest of the system. It owns the SSRF
// perimeter: only the canonical federation host and its direct
// subdomains are ever contacted.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// DefaultHost is the canonical hostname of the French chess
	// federation website.
	DefaultHost = "echecs.asso.fr"

	// UserAgent mimics a real browser: the federation site rejects
	// unidentified clients.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// minBodyBytes is the plausibility floor: anything shorter is an
	// error page or an empty shell, not tournament content.
	minBodyBytes = 500

	requestTimeout = 30 * time.Second
	maxRetryTime   = 45 * time.Second
)

// Page actions understood by the federation's tournament pages. A
// tournament source URL is turned into its sibling pages by rewriting
// the Action query parameter.
const (
	ActionList    = "Ls" // registered player list
	ActionResults = "Ga" // round-by-round results grid
	ActionStats   = "St" // tournament statistics
)

var (
	// ErrInvalidURL marks a request URL that does not parse.
	ErrInvalidURL = errors.New("invalid url")

	// ErrDisallowedHost marks a URL pointing outside the federation
	// domain.
	ErrDisallowedHost = errors.New("host not allowed")

	// ErrShortBody marks an upstream response too small to be a real
	// tournament page. Retryable.
	ErrShortBody = errors.New("upstream body implausibly short")
)

// UpstreamError reports a non-2xx status from the federation site.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("federation site returned status %d", e.StatusCode)
}

// Client fetches federation pages. Outbound calls are throttled by a
// shared limiter so that refreshing many tournaments stays polite
// toward the federation site.
type Client struct {
	httpClient  *http.Client
	allowedHost string
	limiter     *rate.Limiter
	maxRetry    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestsPerSecond adjusts the outbound throttle.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithMaxRetryTime bounds how long transient upstream failures are
// retried before giving up.
func WithMaxRetryTime(d time.Duration) Option {
	return func(c *Client) { c.maxRetry = d }
}

// New creates a Client restricted to the given canonical host. An empty
// host falls back to DefaultHost.
func New(allowedHost string, opts ...Option) *Client {
	if allowedHost == "" {
		allowedHost = DefaultHost
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		allowedHost: strings.ToLower(allowedHost),
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
		maxRetry:    maxRetryTime,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateURL rejects anything that is not an absolute http(s) URL on
// the canonical federation host or one of its direct subdomains.
//
// Substring checks are not enough here: both
// "https://attacker.com/?x=<host>" and "https://<host>.attacker.com"
// contain the canonical host yet must be rejected. Only an exact match
// or a dot-separated suffix match on the parsed hostname qualifies.
func (c *Client) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == c.allowedHost || strings.HasSuffix(host, "."+c.allowedHost) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrDisallowedHost, host)
}

// FetchPage retrieves one federation page. Non-2xx statuses and
// implausibly short bodies are soft failures retried with exponential
// backoff, except 404 which is reported immediately. Responses are
// never cached.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if err := c.ValidateURL(pageURL); err != nil {
		return "", err
	}

	var body string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		html, err := c.doFetch(ctx, pageURL)
		if err != nil {
			var upstream *UpstreamError
			if errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound {
				return backoff.Permanent(err)
			}
			return err
		}
		body = html
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(c.maxRetry),
	), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) doFetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if len(data) < minBodyBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrShortBody, len(data))
	}
	return string(data), nil
}

// PageURL derives a sibling page of a tournament source URL by
// rewriting its Action query parameter, e.g. turning a results URL
// into the matching player list or statistics URL.
func PageURL(sourceURL, action string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, sourceURL)
	}
	q := u.Query()
	q.Set("Action", action)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

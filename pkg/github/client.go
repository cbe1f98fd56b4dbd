// Package github is the small slice of the GitHub API the deployment needs:
// repository metadata, looked up with a token from the run configuration.
package github

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com/"

// Client wraps go-github with retry and rate limit tracking.
type Client struct {
	gh      *github.Client
	tracker *RateLimitTracker
	retry   *RetryConfig
}

type clientOptions struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	retry     *RetryConfig
}

// Option configures NewClient.
type Option func(*clientOptions)

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise Server or a test server.
func WithBaseURL(u string) Option {
	return func(o *clientOptions) { o.baseURL = u }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithTransport sets the transport under the token transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithRetryConfig replaces DefaultRetryConfig.
func WithRetryConfig(rc *RetryConfig) Option {
	return func(o *clientOptions) { o.retry = rc }
}

// NewClient creates a client authenticated with token. An empty token makes
// anonymous requests.
func NewClient(token string, opts ...Option) (*Client, error) {
	o := clientOptions{
		baseURL: DefaultAPIURL,
		timeout: 30 * time.Second,
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.transport
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   base,
		}
	}

	gh := github.NewClient(&http.Client{Transport: rt, Timeout: o.timeout})
	if o.baseURL != DefaultAPIURL {
		u, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid API URL %q: %w", o.baseURL, err)
		}
		gh.BaseURL = u
	}

	return &Client{
		gh:      gh,
		tracker: NewRateLimitTracker(),
		retry:   o.retry,
	}, nil
}

// RateLimit returns the rate limit seen on the last response, error
// responses included.
func (c *Client) RateLimit() RateLimitStatus {
	return c.tracker.GetStatus()
}

// APIURLForServer maps a web server URL (GITHUB_SERVER_URL) to its REST root.
func APIURLForServer(serverURL string) string {
	server := strings.TrimSuffix(strings.TrimSpace(serverURL), "/")
	if server == "" || server == "https://github.com" {
		return DefaultAPIURL
	}
	return server + "/api/v3/"
}

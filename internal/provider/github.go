package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
)

const (
	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"

	DefaultConnectTimeout  = 5 * time.Second
	DefaultResponseTimeout = 10 * time.Second

	maxProfileBytes = 1 << 20
)

// ErrUnavailable wraps every GitHub failure other than a rejected token:
// network errors, timeouts, 5xx and unexpected statuses.
var ErrUnavailable = errors.New("github unavailable")

// GitHubOptions configures a GitHubClient.
type GitHubOptions struct {
	BaseURL         string
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	UserAgent       string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// GitHubClient fetches the authenticated user's profile from GitHub.
type GitHubClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewGitHubClient builds a client with explicit connect and response
// timeouts so a hung GitHub cannot hold request goroutines.
func NewGitHubClient(opts GitHubOptions) *GitHubClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "reconnoiter"
	}

	transport := opts.Transport
	if transport == nil {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ResponseTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	return &GitHubClient{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.ConnectTimeout + opts.ResponseTimeout,
		},
	}
}

// FetchProfile calls GET /user with token. A 401 or 403 means GitHub
// rejected the token and yields (nil, nil). Every other failure wraps
// ErrUnavailable.
func (c *GitHubClient) FetchProfile(ctx context.Context, token string) (*model.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: GET /user returned %d", ErrUnavailable, resp.StatusCode)
	}

	var p model.Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrUnavailable, err)
	}
	if p.ID == 0 || p.Login == "" {
		return nil, fmt.Errorf("%w: profile missing id or login", ErrUnavailable)
	}
	return &p, nil
}

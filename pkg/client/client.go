// Package client is the TMDb HTTP client used by the fetchers. It owns the
// single fetch-with-retry path: every page and detail request goes through
// FetchJSON.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/RajVeer36399/tmdb-proxy/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for TMDb client operations.
var (
	tmdbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_requests_total",
		Help: "Total TMDb requests by endpoint and status",
	}, []string{"endpoint", "status"})

	tmdbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tmdb_request_duration_seconds",
		Help:    "TMDb request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	tmdbErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_errors_total",
		Help: "Total TMDb errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents 2xx responses that are not JSON or fail the
	// caller's payload check.
	ErrorClassDecode ErrorClass = "decode"
)

// Endpoint labels used in metrics and logs.
const (
	EndpointPopular = "popular"
	EndpointMovie   = "movie"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 32 << 20

// Client is the TMDb API client.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
}

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as the api_key query parameter (REQUIRED).
	APIKey string

	// BaseURL is the API root, e.g. "https://api.themoviedb.org/3".
	BaseURL string

	// Language is sent as the language query parameter.
	Language string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent header value.
	UserAgent string

	// Limiter is an optional token bucket consulted before each request.
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns the configuration for the public TMDb API.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:    apiKey,
		BaseURL:   "https://api.themoviedb.org/3",
		Language:  "en-US",
		Timeout:   30 * time.Second,
		UserAgent: "tmdb-proxy/1.0",
	}
}

// New creates a new TMDb client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: cfg.Limiter,
		config:  cfg,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// PopularPageURL returns the URL of one page of the popular collection.
func (c *Client) PopularPageURL(page int) string {
	return c.url("/movie/popular", url.Values{
		"page": []string{strconv.Itoa(page)},
	})
}

// MovieURL returns the URL of a movie detail record with credits inlined.
func (c *Client) MovieURL(id int64) string {
	return c.url("/movie/"+strconv.FormatInt(id, 10), url.Values{
		"append_to_response": []string{"credits"},
	})
}

func (c *Client) url(path string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("api_key", c.config.APIKey)
	if c.config.Language != "" {
		q.Set("language", c.config.Language)
	}
	return c.config.BaseURL + path + "?" + q.Encode()
}

// Check inspects a decoded 2xx body. A non-nil error makes the attempt fail
// and counts against the retry policy like any other failure.
type Check func(body []byte) error

// FetchPopularPage fetches one collection page with retries.
func (c *Client) FetchPopularPage(ctx context.Context, page int, policy RetryPolicy, check Check) ([]byte, int, error) {
	return c.FetchJSON(ctx, EndpointPopular, c.PopularPageURL(page), policy, check)
}

// FetchMovie fetches one movie detail record with retries.
func (c *Client) FetchMovie(ctx context.Context, id int64, policy RetryPolicy, check Check) ([]byte, int, error) {
	return c.FetchJSON(ctx, EndpointMovie, c.MovieURL(id), policy, check)
}

// FetchJSON GETs rawURL under policy and returns the response body
// re-indented with two spaces, and the number of attempts made.
// Non-2xx responses fail with *APIError, non-JSON bodies with ErrInvalidJSON
// and bodies rejected by check (which may be nil) with ErrInvalidPayload.
func (c *Client) FetchJSON(ctx context.Context, endpoint, rawURL string, policy RetryPolicy, check Check) ([]byte, int, error) {
	var body []byte
	attempts, err := Retry(ctx, policy, func(attempt int) error {
		data, reqErr := c.get(ctx, endpoint, rawURL)
		if reqErr != nil {
			return reqErr
		}
		if check != nil {
			if checkErr := check(data); checkErr != nil {
				tmdbErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
				return fmt.Errorf("%w: %w", ErrInvalidPayload, checkErr)
			}
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return body, attempts, nil
}

// get performs one request.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	zerolog.Ctx(ctx).Debug().
		Str("component", "client").
		Str("endpoint", endpoint).
		Str("url", redact(req.URL)).
		Msg("Executing TMDb request")

	startTime := time.Now()
	defer func() {
		tmdbRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tmdbErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		tmdbRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("GET %s: %w", redact(req.URL), scrubURLError(err, c.config.APIKey))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		tmdbErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		tmdbRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	tmdbRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := classifyStatus(resp.StatusCode)
		tmdbErrorsTotal.WithLabelValues(string(errClass)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			ErrorClass: errClass,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		tmdbErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return pretty.Bytes(), nil
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that the transport did not resolve
		return ErrorClassServer
	}
}

// redact returns u with the api_key parameter masked.
func redact(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		cp.RawQuery = q.Encode()
	}
	return cp.String()
}

// scrubURLError removes the credential from transport errors, which embed
// the full request URL.
func scrubURLError(err error, apiKey string) error {
	if apiKey == "" {
		return err
	}
	msg := err.Error()
	scrubbed := strings.NewReplacer(url.QueryEscape(apiKey), "REDACTED", apiKey, "REDACTED").Replace(msg)
	if scrubbed == msg {
		return err
	}
	return errors.New(scrubbed)
}

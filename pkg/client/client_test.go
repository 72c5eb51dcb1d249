package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := DefaultConfig("secret-key")
	cfg.BaseURL = baseURL
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Delay: time.Millisecond}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: true},
		{name: "missing base url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("key")
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestURLs(t *testing.T) {
	c := newTestClient(t, "https://api.example.org/3/")

	u, err := url.Parse(c.PopularPageURL(7))
	if err != nil {
		t.Fatalf("parse popular url: %v", err)
	}
	if u.Path != "/3/movie/popular" {
		t.Errorf("popular path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("page") != "7" || q.Get("api_key") != "secret-key" || q.Get("language") != "en-US" {
		t.Errorf("popular query = %v", q)
	}

	u, err = url.Parse(c.MovieURL(550))
	if err != nil {
		t.Fatalf("parse movie url: %v", err)
	}
	if u.Path != "/3/movie/550" {
		t.Errorf("movie path = %q", u.Path)
	}
	if got := u.Query().Get("append_to_response"); got != "credits" {
		t.Errorf("append_to_response = %q, want credits", got)
	}
}

func TestURLs_NoLanguage(t *testing.T) {
	cfg := DefaultConfig("k")
	cfg.Language = ""
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(c.PopularPageURL(1), "language=") {
		t.Errorf("language set although empty: %s", c.PopularPageURL(1))
	}
}

func TestFetchJSON_PrettyPrints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept header = %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("User-Agent") != "tmdb-proxy/1.0" {
			t.Errorf("User-Agent header = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"id":5,"credits":{"cast":[]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	body, attempts, err := c.FetchMovie(context.Background(), 5, fastPolicy(3), nil)
	if err != nil {
		t.Fatalf("FetchMovie() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	want := "{\n  \"id\": 5,\n  \"credits\": {\n    \"cast\": []\n  }\n}"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestFetchJSON_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status_code":34,"status_message":"The resource you requested could not be found."}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, attempts, err := c.FetchMovie(context.Background(), 1, fastPolicy(2), nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v does not wrap *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want client", apiErr.ErrorClass)
	}
	if !strings.Contains(apiErr.Body, "status_code\":34") {
		t.Errorf("Body = %q", apiErr.Body)
	}
}

func TestFetchJSON_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"page":1,"results":[],"total_pages":1}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, attempts, err := c.FetchPopularPage(context.Background(), 1, fastPolicy(3), nil)
	if err != nil {
		t.Fatalf("FetchPopularPage() error = %v", err)
	}
	if attempts != 3 || calls.Load() != 3 {
		t.Errorf("attempts = %d, server calls = %d, want 3/3", attempts, calls.Load())
	}
}

func TestFetchJSON_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	before := testutil.ToFloat64(tmdbErrorsTotal.WithLabelValues(string(ErrorClassDecode)))

	c := newTestClient(t, server.URL)
	_, _, err := c.FetchPopularPage(context.Background(), 1, fastPolicy(1), nil)
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("error = %v, want ErrInvalidJSON", err)
	}
	if ClassOf(err) != ErrorClassDecode {
		t.Errorf("ClassOf = %q, want decode", ClassOf(err))
	}
	if got := testutil.ToFloat64(tmdbErrorsTotal.WithLabelValues(string(ErrorClassDecode))); got != before+1 {
		t.Errorf("decode errors metric = %v, want %v", got, before+1)
	}
}

func TestFetchJSON_CheckRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"page":2,"status":"degraded"}`))
	}))
	defer server.Close()

	rejectAll := func([]byte) error { return errors.New("no results array") }

	c := newTestClient(t, server.URL)
	_, attempts, err := c.FetchPopularPage(context.Background(), 2, fastPolicy(3), rejectAll)
	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("error = %v, want ErrRetryExhausted wrapping ErrInvalidPayload", err)
	}
	if !strings.Contains(err.Error(), "no results array") {
		t.Errorf("error = %v, want the check error", err)
	}
	if ClassOf(err) != ErrorClassDecode {
		t.Errorf("ClassOf = %q, want decode", ClassOf(err))
	}
	if attempts != 3 || calls.Load() != 3 {
		t.Errorf("attempts = %d, server calls = %d, want 3/3", attempts, calls.Load())
	}
}

func TestFetchJSON_CheckPassesAfterRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Write([]byte(`{"id":5}`))
	}))
	defer server.Close()

	var checked []string
	check := func(body []byte) error {
		checked = append(checked, string(body))
		if !strings.Contains(string(body), `"id"`) {
			return errors.New("missing id")
		}
		return nil
	}

	c := newTestClient(t, server.URL)
	body, attempts, err := c.FetchMovie(context.Background(), 5, fastPolicy(3), check)
	if err != nil {
		t.Fatalf("FetchMovie() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if string(body) != "{\n  \"id\": 5\n}" {
		t.Errorf("body = %q", body)
	}
	if len(checked) != 2 {
		t.Errorf("check called %d times, want 2", len(checked))
	}
}

func TestFetchJSON_LogsToContextLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel).With().Int("page", 3).Logger()

	c := newTestClient(t, server.URL)
	if _, _, err := c.FetchPopularPage(logger.WithContext(context.Background()), 3, fastPolicy(1), nil); err != nil {
		t.Fatalf("FetchPopularPage() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"page":3`, `"component":"client"`, `"endpoint":"popular"`, "api_key=REDACTED"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
	if strings.Contains(out, "secret-key") {
		t.Errorf("log output leaks the api key: %s", out)
	}
}

func TestFetchJSON_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	cfg := DefaultConfig("secret-key")
	cfg.BaseURL = server.URL
	cfg.Timeout = 50 * time.Millisecond
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = c.FetchPopularPage(context.Background(), 1, fastPolicy(1), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("ClassOf = %q, want network", ClassOf(err))
	}
	if strings.Contains(err.Error(), "secret-key") {
		t.Errorf("error leaks api key: %v", err)
	}
}

func TestFetchJSON_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, server.URL)
	_, attempts, err := c.FetchPopularPage(ctx, 1, fastPolicy(3), nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("error = %v, want ErrContextCancelled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestFetchJSON_RequestMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	counter := tmdbRequestsTotal.WithLabelValues(EndpointMovie, "429")
	before := testutil.ToFloat64(counter)

	c := newTestClient(t, server.URL)
	_, _, err := c.FetchMovie(context.Background(), 9, fastPolicy(2), nil)
	if ClassOf(err) != ErrorClassRateLimit {
		t.Errorf("ClassOf = %q, want rate_limit", ClassOf(err))
	}
	if got := testutil.ToFloat64(counter); got != before+2 {
		t.Errorf("requests metric = %v, want %v", got, before+2)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{304, ErrorClassServer},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	u, _ := url.Parse("https://api.example.org/3/movie/popular?api_key=abc&page=2")
	got := redact(u)
	if strings.Contains(got, "abc") {
		t.Errorf("redact() = %q, leaks key", got)
	}
	if !strings.Contains(got, "api_key=REDACTED") || !strings.Contains(got, "page=2") {
		t.Errorf("redact() = %q", got)
	}
	if u.Query().Get("api_key") != "abc" {
		t.Error("redact() modified its input")
	}
}

func TestScrubURLError(t *testing.T) {
	err := errors.New(`Get "https://x/movie/1?api_key=a%2Bb": dial tcp: refused`)
	got := scrubURLError(err, "a+b")
	if strings.Contains(got.Error(), "a%2Bb") {
		t.Errorf("scrubURLError() = %v", got)
	}

	plain := errors.New("connection refused")
	if scrubURLError(plain, "a+b") != plain {
		t.Error("scrubURLError() should return untouched errors as is")
	}
}

// Package testutil provides a mock TMDb API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// APIKey is the credential the mock accepts.
const APIKey = "test-api-key"

// failure makes the next Remaining requests for a path fail with Status.
// Remaining < 0 fails forever.
type failure struct {
	Remaining int
	Status    int
}

// MockTMDb is a configurable mock of the /movie/popular and /movie/{id}
// endpoints.
type MockTMDb struct {
	server *httptest.Server

	mu          sync.Mutex
	totalPages  int
	pageResults map[int][]int64
	pageBodies  map[int]string
	movieBodies map[int64]string
	failures    map[string]*failure

	requests  map[string]int
	pageOrder []int
	lastQuery map[string]string
}

// NewMockTMDb creates a mock reporting totalPages on every collection page.
// Pages without explicit results get three movies: page*100+1 .. page*100+3.
func NewMockTMDb(totalPages int) *MockTMDb {
	m := &MockTMDb{
		totalPages:  totalPages,
		pageResults: make(map[int][]int64),
		pageBodies:  make(map[int]string),
		movieBodies: make(map[int64]string),
		failures:    make(map[string]*failure),
		requests:    make(map[string]int),
		lastQuery:   make(map[string]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the API root to use as the client base URL.
func (m *MockTMDb) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTMDb) Close() {
	m.server.Close()
}

// SetTotalPages changes the total_pages value reported by the mock.
func (m *MockTMDb) SetTotalPages(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPages = n
}

// SetPageResults sets the movie ids listed on a page.
func (m *MockTMDb) SetPageResults(page int, ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageResults[page] = ids
}

// SetPageBody replaces the whole response body of a page.
func (m *MockTMDb) SetPageBody(page int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageBodies[page] = body
}

// SetMovieBody replaces the whole response body of a movie.
func (m *MockTMDb) SetMovieBody(id int64, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movieBodies[id] = body
}

// FailPage makes the next times requests for page fail with status.
// times < 0 fails every request.
func (m *MockTMDb) FailPage(page, times, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[pagePath(page)] = &failure{Remaining: times, Status: status}
}

// FailMovie makes the next times requests for a movie fail with status.
// times < 0 fails every request.
func (m *MockTMDb) FailMovie(id int64, times, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[moviePath(id)] = &failure{Remaining: times, Status: status}
}

// RequestCount returns the total number of requests served.
func (m *MockTMDb) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.requests {
		n += c
	}
	return n
}

// PageRequests returns how often a collection page was requested.
func (m *MockTMDb) PageRequests(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[pagePath(page)]
}

// MovieRequests returns how often a movie was requested.
func (m *MockTMDb) MovieRequests(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[moviePath(id)]
}

// MovieRequestTotal returns the number of detail requests of any id.
func (m *MockTMDb) MovieRequestTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for path, c := range m.requests {
		if strings.HasPrefix(path, "movie:") {
			n += c
		}
	}
	return n
}

// RequestedPages returns the requested page numbers in request order.
func (m *MockTMDb) RequestedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pageOrder...)
}

// LastQuery returns the query parameter of the most recent request.
func (m *MockTMDb) LastQuery(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery[name]
}

func pagePath(page int) string { return "popular:" + strconv.Itoa(page) }
func moviePath(id int64) string { return "movie:" + strconv.FormatInt(id, 10) }

func (m *MockTMDb) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")

	q := r.URL.Query()
	m.mu.Lock()
	for k := range q {
		m.lastQuery[k] = q.Get(k)
	}
	m.mu.Unlock()

	if q.Get("api_key") != APIKey {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"status_code":7,"status_message":"Invalid API key: You must be granted a valid key.","success":false}`)
		return
	}

	switch {
	case r.URL.Path == "/movie/popular":
		page, err := strconv.Atoi(q.Get("page"))
		if err != nil || page < 1 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status_code":22,"status_message":"Invalid page.","success":false}`)
			return
		}
		m.servePage(w, page)
	case strings.HasPrefix(r.URL.Path, "/movie/"):
		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/movie/"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		m.serveMovie(w, id, q.Get("append_to_response"))
	default:
		http.NotFound(w, r)
	}
}

// track records a request and reports the failure status to send, if any.
func (m *MockTMDb) track(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[path]++

	f, ok := m.failures[path]
	if !ok || f.Remaining == 0 {
		return 0
	}
	if f.Remaining > 0 {
		f.Remaining--
	}
	return f.Status
}

func (m *MockTMDb) servePage(w http.ResponseWriter, page int) {
	m.mu.Lock()
	m.pageOrder = append(m.pageOrder, page)
	m.mu.Unlock()

	if status := m.track(pagePath(page)); status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status_code":%d,"status_message":"mock failure","success":false}`, status)
		return
	}

	m.mu.Lock()
	body, custom := m.pageBodies[page]
	ids, ok := m.pageResults[page]
	total := m.totalPages
	m.mu.Unlock()

	if custom {
		fmt.Fprint(w, body)
		return
	}
	if !ok {
		base := int64(page) * 100
		ids = []int64{base + 1, base + 2, base + 3}
	}

	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		results = append(results, map[string]any{
			"id":    id,
			"title": fmt.Sprintf("Movie %d", id),
		})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"page":          page,
		"results":       results,
		"total_pages":   total,
		"total_results": total * 20,
	})
}

func (m *MockTMDb) serveMovie(w http.ResponseWriter, id int64, appendTo string) {
	if status := m.track(moviePath(id)); status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status_code":%d,"status_message":"mock failure","success":false}`, status)
		return
	}

	m.mu.Lock()
	body, custom := m.movieBodies[id]
	m.mu.Unlock()
	if custom {
		fmt.Fprint(w, body)
		return
	}

	movie := map[string]any{
		"id":    id,
		"title": fmt.Sprintf("Movie %d", id),
	}
	if appendTo == "credits" {
		movie["credits"] = map[string]any{
			"cast": []map[string]any{{"id": id * 10, "name": "Lead Actor", "character": "Hero"}},
			"crew": []map[string]any{{"id": id*10 + 1, "name": "Director", "job": "Director"}},
		}
	}
	json.NewEncoder(w).Encode(movie)
}

// Package testutil provides a configurable mock of the upstream animals
// service and the downstream batch sink for testing.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockAnimalsAPI serves the paginated listing, per-record fetch, and batch
// receiver endpoints against an in-memory fleet of animals. Failures and
// delays can be injected per path to exercise the retry and backoff paths.
type MockAnimalsAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	animals  map[int64]map[string]any
	ids      []int64
	pageSize int

	// failures maps an exact request path to the number of remaining
	// injected failures and the status to fail with.
	failures   map[string]int
	failStatus map[string]int

	fetchDelay time.Duration

	// Tracking
	RequestCount int
	Batches      [][]map[string]any

	inFlight  int
	highWater int
}

// NewMockAnimalsAPI creates a mock server paginating ids in pages of pageSize.
func NewMockAnimalsAPI(pageSize int) *MockAnimalsAPI {
	m := &MockAnimalsAPI{
		animals:    make(map[int64]map[string]any),
		pageSize:   pageSize,
		failures:   make(map[string]int),
		failStatus: make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockAnimalsAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAnimalsAPI) Close() {
	m.server.Close()
}

// SeedAnimals populates n sequentially numbered animals.
func (m *MockAnimalsAPI) SeedAnimals(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 1; i <= n; i++ {
		id := int64(i)
		m.animals[id] = map[string]any{
			"id":      id,
			"name":    fmt.Sprintf("animal-%d", id),
			"friends": "Annie, Branson,Rey",
			"born_at": "1471521446",
		}
		m.ids = append(m.ids, id)
	}
}

// SetAnimal inserts or replaces a single animal record.
func (m *MockAnimalsAPI) SetAnimal(id int64, rec map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.animals[id]; !exists {
		m.ids = append(m.ids, id)
	}
	m.animals[id] = rec
}

// RemoveAnimal deletes a record so fetches of it return 404 while the
// listing still advertises the id.
func (m *MockAnimalsAPI) RemoveAnimal(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.animals, id)
}

// FailNext makes the next n requests to path fail with status.
func (m *MockAnimalsAPI) FailNext(path string, n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = n
	m.failStatus[path] = status
}

// SetFetchDelay delays every record fetch, simulating a slow upstream.
func (m *MockAnimalsAPI) SetFetchDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchDelay = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAnimalsAPI) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// BatchCount returns the number of batches posted to the sink.
func (m *MockAnimalsAPI) BatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Batches)
}

// PostedRecords returns the total records received across all batches.
func (m *MockAnimalsAPI) PostedRecords() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.Batches {
		total += len(b)
	}
	return total
}

// BatchSizes returns the record count of each posted batch in arrival order.
func (m *MockAnimalsAPI) BatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.Batches))
	for i, b := range m.Batches {
		sizes[i] = len(b)
	}
	return sizes
}

// HighWaterMark returns the maximum number of record fetches that were ever
// in flight simultaneously.
func (m *MockAnimalsAPI) HighWaterMark() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWater
}

func (m *MockAnimalsAPI) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	if remaining := m.failures[r.URL.Path]; remaining > 0 {
		m.failures[r.URL.Path] = remaining - 1
		status := m.failStatus[r.URL.Path]
		m.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error": "injected failure"}`)
		return
	}
	m.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/animals/v1/animals":
		m.handleListing(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/animals/v1/animals/"):
		m.handleRecord(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/animals/v1/home":
		m.handleHome(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockAnimalsAPI) handleListing(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	start := (page - 1) * m.pageSize
	end := start + m.pageSize
	if start > len(m.ids) {
		start = len(m.ids)
	}
	if end > len(m.ids) {
		end = len(m.ids)
	}
	pageIDs := append([]int64(nil), m.ids[start:end]...)
	total := len(m.ids)
	m.mu.Unlock()

	items := make([]map[string]any, 0, len(pageIDs))
	for _, id := range pageIDs {
		items = append(items, map[string]any{"id": id})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"items":    items,
		"page":     page,
		"total":    total,
		"has_more": end < total,
	})
}

func (m *MockAnimalsAPI) handleRecord(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/animals/v1/animals/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.highWater {
		m.highWater = m.inFlight
	}
	rec, exists := m.animals[id]
	delay := m.fetchDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()

	if !exists {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error": "animal %d not found"}`, id)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (m *MockAnimalsAPI) handleHome(w http.ResponseWriter, r *http.Request) {
	var batch []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.Batches = append(m.Batches, batch)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": fmt.Sprintf("Successfully received %d animals", len(batch)),
		"count":   len(batch),
	})
}

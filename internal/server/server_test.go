package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mgrabner/listsync-go/internal/enrich"
	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/models"
	"github.com/mgrabner/listsync-go/internal/server"
	"github.com/mgrabner/listsync-go/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// memoryStore implements the listing and job store interfaces in memory.
type memoryStore struct {
	mu       sync.Mutex
	listings []models.Listing
	jobs     map[string]*models.RepairJob
}

func newMemoryStore(listings ...models.Listing) *memoryStore {
	return &memoryStore{listings: listings, jobs: make(map[string]*models.RepairJob)}
}

func (s *memoryStore) QueryRecentListings(ctx context.Context, limit int) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.listings) {
		limit = len(s.listings)
	}
	out := make([]models.Listing, limit)
	copy(out, s.listings[:limit])
	return out, nil
}

func (s *memoryStore) QueryGetListing(ctx context.Context, id string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.listings {
		if models.MustRecordIDString(s.listings[i].ID) == id {
			l := s.listings[i]
			return &l, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) QueryMergeListingFields(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.listings {
		if models.MustRecordIDString(s.listings[i].ID) != id {
			continue
		}
		if v, ok := fields["description"].(string); ok {
			s.listings[i].Description = v
		}
		if v, ok := fields["sku"].(string); ok {
			s.listings[i].SKU = v
		}
		if v, ok := fields["image_data"].(string); ok {
			s.listings[i].ImageData = v
		}
		if v, ok := fields["attributes"].(string); ok {
			s.listings[i].Attributes = v
		}
	}
	return nil
}

func (s *memoryStore) QueryCreateRepairJob(ctx context.Context, id string, itemIDs []string) (*models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &models.RepairJob{
		ID:           surrealmodels.RecordID{Table: "repair_job", ID: id},
		Status:       "running",
		TotalItems:   len(itemIDs),
		ItemIDs:      itemIDs,
		CurrentPhase: "initializing",
		StartedAt:    time.Now(),
	}
	s.jobs[id] = rec
	return rec, nil
}

func (s *memoryStore) QueryGetRepairJob(ctx context.Context, id string) (*models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) QueryListRepairJobs(ctx context.Context, limit int) ([]models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RepairJob, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *memoryStore) QueryUpdateJobProgress(ctx context.Context, id string, processed, failed int, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok && rec.Status == "running" {
		rec.ProcessedItems = processed
		rec.FailedItems = failed
		rec.CurrentPhase = phase
	}
	return nil
}

func (s *memoryStore) QueryCompleteJob(ctx context.Context, id string, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok && rec.Status == "running" {
		rec.Status = "completed"
		rec.CurrentPhase = "completed"
		rec.ProcessedItems = processed
		rec.FailedItems = failed
	}
	return nil
}

func (s *memoryStore) QueryFailJob(ctx context.Context, id string, errorMessage string, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok && rec.Status == "running" {
		rec.Status = "failed"
		rec.ErrorMessage = &errorMessage
		rec.ProcessedItems = processed
		rec.FailedItems = failed
	}
	return nil
}

func (s *memoryStore) QueryIncompleteJobs(ctx context.Context) ([]models.RepairJob, error) {
	return nil, nil
}

// staticEnricher returns the same enrichment for every listing.
type staticEnricher struct {
	enrichment enrich.Enrichment
}

func (e *staticEnricher) FetchMissingFields(ctx context.Context, id string) (*enrich.Enrichment, error) {
	cp := e.enrichment
	return &cp, nil
}

func testListing(id string, complete bool) models.Listing {
	l := models.Listing{
		ID:    surrealmodels.RecordID{Table: "listing", ID: id},
		Title: "listing " + id,
	}
	if complete {
		l.SKU = "SKU-" + id
		l.Description = "A sufficiently long product description for the completeness check to pass."
		l.ImageData = `["https://img.example.com/` + id + `.jpg"]`
		l.Attributes = `{"condition":"new"}`
		l.Price = 10
	}
	return l
}

func newTestServer(t *testing.T, store *memoryStore) *httptest.Server {
	t.Helper()
	collector := metrics.NewCollector()
	gaps := service.NewGapService(store, collector, 500)
	jobs := service.NewJobManager(store)
	enricher := &staticEnricher{
		enrichment: enrich.Enrichment{
			Description: "An enriched replacement description long enough to pass scoring.",
			SKU:         "SKU-ENRICHED",
			Images:      []string{"https://img.example.com/enriched.jpg"},
			Attributes:  map[string]any{"condition": "used"},
		},
	}
	runner := service.NewRunner(store, enricher, jobs, gaps, collector, 100)

	srv := server.New("0", gaps, runner, collector, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(testListing("a", true)))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGapsEndpoint(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(
		testListing("a", true),
		testListing("b", false),
	))

	var report service.GapReport
	status := getJSON(t, ts.URL+"/api/gaps", &report)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, 2, report.TotalChecked)
	require.Len(t, report.IncompleteItems, 1)
	assert.Equal(t, "b", report.IncompleteItems[0].ID)
	assert.Equal(t, "high", report.IncompleteItems[0].Priority)
}

func TestGapsEndpointEmptyStore(t *testing.T) {
	ts := newTestServer(t, newMemoryStore())

	var body map[string]string
	status := getJSON(t, ts.URL+"/api/gaps", &body)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body["error"], "data unavailable")
}

func TestGapsEndpointRejectsBadLimit(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(testListing("a", true)))

	status := getJSON(t, ts.URL+"/api/gaps?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRepairEndpointNoWorkNeeded(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(testListing("a", true)))

	resp, err := http.Post(ts.URL+"/api/repair", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "no repair needed", body["message"])
}

func TestRepairEndpointStartsJob(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(
		testListing("a", false),
		testListing("b", false),
	))

	resp, err := http.Post(ts.URL+"/api/repair", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		JobID       string `json:"jobId"`
		ItemsToSync int    `json:"itemsToSync"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.JobID)
	assert.Equal(t, 2, body.ItemsToSync)

	// Poll until the background job completes.
	deadline := time.Now().Add(5 * time.Second)
	var snap service.JobSnapshot
	for {
		status := getJSON(t, ts.URL+"/api/jobs/"+body.JobID, &snap)
		require.Equal(t, http.StatusOK, status)
		if snap.Status != service.JobStatusRunning {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish in time")
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, service.JobStatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.ProcessedItems)
	assert.Equal(t, 0, snap.FailedItems)
	assert.Equal(t, 1.0, snap.CompletionRate)
}

func TestJobsListEndpoint(t *testing.T) {
	store := newMemoryStore(testListing("a", false))
	ts := newTestServer(t, store)

	resp, err := http.Post(ts.URL+"/api/repair", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Jobs []service.JobSnapshot `json:"jobs"`
	}
	status := getJSON(t, ts.URL+"/api/jobs", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Jobs, 1)
}

func TestJobLookupNotFound(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(testListing("a", true)))

	status := getJSON(t, ts.URL+"/api/jobs/repair-nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(testListing("a", true)))

	// Generate one scan so the collector has something to report.
	getJSON(t, ts.URL+"/api/gaps", nil)

	var snap metrics.Snapshot
	status := getJSON(t, ts.URL+"/api/stats", &snap)
	assert.Equal(t, http.StatusOK, status)
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(
		testListing("a", false),
		testListing("b", false),
		testListing("c", false),
	))

	resp, err := http.Post(ts.URL+"/api/repair", "application/json", nil)
	require.NoError(t, err)
	var body struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + body.JobID + "/watch"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var last service.JobSnapshot
	for {
		var snap service.JobSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			// Server closes the stream after the terminal snapshot.
			break
		}
		assert.Equal(t, body.JobID, snap.ID)
		// Counters never regress between pushes.
		assert.GreaterOrEqual(t, snap.ProcessedItems, last.ProcessedItems)
		last = snap
		if snap.Status != service.JobStatusRunning {
			break
		}
	}

	assert.Equal(t, service.JobStatusCompleted, last.Status)
}

func TestWatchUnknownJob(t *testing.T) {
	ts := newTestServer(t, newMemoryStore(testListing("a", true)))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/repair-nope/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

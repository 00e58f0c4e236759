package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mgrabner/listsync-go/internal/enrich"
	"github.com/mgrabner/listsync-go/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// fakeStore is an in-memory ListingStore + JobStore for unit tests.
type fakeStore struct {
	mu       sync.Mutex
	listings []models.Listing
	jobs     map[string]*models.RepairJob

	queryErr error // injected listing-read failure
	mergeErr error // injected listing-write failure

	mergeCalls map[string][]map[string]any
}

func newFakeStore(listings ...models.Listing) *fakeStore {
	return &fakeStore{
		listings:   listings,
		jobs:       make(map[string]*models.RepairJob),
		mergeCalls: make(map[string][]map[string]any),
	}
}

func listingID(id string) surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: "listing", ID: id}
}

func (s *fakeStore) QueryRecentListings(ctx context.Context, limit int) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if limit > len(s.listings) {
		limit = len(s.listings)
	}
	out := make([]models.Listing, limit)
	copy(out, s.listings[:limit])
	return out, nil
}

func (s *fakeStore) QueryGetListing(ctx context.Context, id string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	for i := range s.listings {
		if models.MustRecordIDString(s.listings[i].ID) == id {
			l := s.listings[i]
			return &l, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) QueryMergeListingFields(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mergeErr != nil {
		return s.mergeErr
	}
	s.mergeCalls[id] = append(s.mergeCalls[id], fields)
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

func (s *fakeStore) QueryCreateRepairJob(ctx context.Context, id string, itemIDs []string) (*models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &models.RepairJob{
		ID:           surrealmodels.RecordID{Table: "repair_job", ID: id},
		Status:       string(JobStatusRunning),
		TotalItems:   len(itemIDs),
		ItemIDs:      itemIDs,
		CurrentPhase: PhaseInitializing,
	}
	s.jobs[id] = rec
	return rec, nil
}

func (s *fakeStore) QueryGetRepairJob(ctx context.Context, id string) (*models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) QueryListRepairJobs(ctx context.Context, limit int) ([]models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RepairJob, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *fakeStore) QueryUpdateJobProgress(ctx context.Context, id string, processed, failed int, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok && rec.Status == string(JobStatusRunning) {
		rec.ProcessedItems = processed
		rec.FailedItems = failed
		rec.CurrentPhase = phase
	}
	return nil
}

func (s *fakeStore) QueryCompleteJob(ctx context.Context, id string, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok && rec.Status == string(JobStatusRunning) {
		rec.Status = string(JobStatusCompleted)
		rec.CurrentPhase = PhaseCompleted
		rec.ProcessedItems = processed
		rec.FailedItems = failed
	}
	return nil
}

func (s *fakeStore) QueryFailJob(ctx context.Context, id string, errorMessage string, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok && rec.Status == string(JobStatusRunning) {
		rec.Status = string(JobStatusFailed)
		rec.ErrorMessage = &errorMessage
		rec.ProcessedItems = processed
		rec.FailedItems = failed
	}
	return nil
}

func (s *fakeStore) QueryIncompleteJobs(ctx context.Context) ([]models.RepairJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RepairJob
	for _, rec := range s.jobs {
		if rec.Status == string(JobStatusRunning) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// fakeEnricher returns canned enrichments, failing for ids in failIDs.
type fakeEnricher struct {
	mu         sync.Mutex
	enrichment enrich.Enrichment
	failIDs    map[string]bool
	calls      []string
}

var errEnrichUnavailable = errors.New("marketplace unavailable")

func (f *fakeEnricher) FetchMissingFields(ctx context.Context, id string) (*enrich.Enrichment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.failIDs[id] {
		return nil, fmt.Errorf("%w: %s", errEnrichUnavailable, id)
	}
	e := f.enrichment
	return &e, nil
}

// incompleteListing returns a listing missing everything except a title.
func incompleteListing(id string) models.Listing {
	return models.Listing{
		ID:    listingID(id),
		Title: "listing " + id,
	}
}

// fullListing returns a listing that scores 100.
func fullListing(id string) models.Listing {
	return models.Listing{
		ID:          listingID(id),
		Title:       "listing " + id,
		SKU:         "SKU-" + id,
		Description: "A sufficiently long product description for the completeness check to pass.",
		ImageData:   `["https://img.example.com/` + id + `.jpg"]`,
		Attributes:  `{"condition":"new"}`,
		Price:       10,
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mgrabner/listsync-go/internal/enrich"
	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/models"
	"github.com/mgrabner/listsync-go/internal/normalize"
	"github.com/mgrabner/listsync-go/internal/scoring"
)

// ListingStore is the read-modify-write side of the listing store as seen
// by the repair runner. *db.Client satisfies it.
type ListingStore interface {
	ListingSource
	QueryGetListing(ctx context.Context, id string) (*models.Listing, error)
	QueryMergeListingFields(ctx context.Context, id string, fields map[string]any) error
}

// Runner drives repair jobs: it iterates a job's item snapshot strictly
// sequentially, pulls enrichment data per listing, and applies
// non-destructive merges. Sequential processing keeps idempotence trivial
// and respects the upstream marketplace rate limit without a separate
// limiter.
type Runner struct {
	store     ListingStore
	enricher  enrich.Enricher
	jobs      *JobManager
	gaps      *GapService
	collector *metrics.Collector
	batchSize int
}

// NewRunner creates a repair runner. batchSize caps the snapshot captured
// per repair job.
func NewRunner(store ListingStore, enricher enrich.Enricher, jobs *JobManager, gaps *GapService, collector *metrics.Collector, batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Runner{
		store:     store,
		enricher:  enricher,
		jobs:      jobs,
		gaps:      gaps,
		collector: collector,
		batchSize: batchSize,
	}
}

// Jobs exposes the runner's job manager for progress polling.
func (r *Runner) Jobs() *JobManager {
	return r.jobs
}

// StartRepair scans for incomplete listings, snapshots up to the batch cap
// (most-recently-updated first), creates a job, and starts processing it in
// the background. Returns nil when nothing needs repair.
func (r *Runner) StartRepair(ctx context.Context) (*Job, error) {
	report, err := r.gaps.Scan(ctx, 0)
	if err != nil {
		return nil, err
	}

	if len(report.IncompleteItems) == 0 {
		slog.Info("no incomplete listings, skipping job creation")
		return nil, nil
	}

	itemIDs := make([]string, 0, min(len(report.IncompleteItems), r.batchSize))
	for _, item := range report.IncompleteItems {
		if len(itemIDs) == r.batchSize {
			break
		}
		itemIDs = append(itemIDs, item.ID)
	}

	job, err := r.jobs.CreateJob(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	go r.runDetached(job)
	return job, nil
}

// ResumeIncompleteJobs restarts any jobs left in running state by a
// previous process. The cursor into the fixed snapshot is simply
// processed+failed, so counters stay monotonic across restarts.
func (r *Runner) ResumeIncompleteJobs(ctx context.Context) error {
	records, err := r.jobs.store.QueryIncompleteJobs(ctx)
	if err != nil {
		return fmt.Errorf("load incomplete jobs: %w", err)
	}

	if len(records) == 0 {
		slog.Info("no incomplete repair jobs to resume")
		return nil
	}
	slog.Info("resuming repair jobs", "count", len(records))

	for _, rec := range records {
		jobID, err := models.RecordIDString(rec.ID)
		if err != nil {
			slog.Warn("skipping job with non-string id", "error", err)
			continue
		}

		job := &Job{
			ID:             jobID,
			Status:         JobStatusRunning,
			TotalItems:     rec.TotalItems,
			ProcessedItems: rec.ProcessedItems,
			FailedItems:    rec.FailedItems,
			ItemIDs:        rec.ItemIDs,
			StartedAt:      rec.StartedAt,
		}
		r.jobs.RegisterJob(job)

		slog.Info("resuming job",
			"job_id", jobID,
			"total", rec.TotalItems,
			"processed", rec.ProcessedItems,
			"failed", rec.FailedItems)

		go r.runDetached(job)
	}

	return nil
}

// runDetached runs a job in the background with panic containment.
func (r *Runner) runDetached(job *Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("repair goroutine panicked", "job_id", job.ID, "panic", rec)
			r.jobs.Fail(context.Background(), job, fmt.Errorf("internal panic: %v", rec))
		}
	}()

	// Jobs outlive the request that started them.
	if err := r.Run(context.Background(), job); err != nil {
		slog.Error("repair run aborted", "job_id", job.ID, "error", err)
	}
}

// Run processes a job's remaining items in snapshot order. Per-listing
// enrichment failures are counted and skipped; store-level failures are
// fatal to the job (status failed, partial counters preserved).
func (r *Runner) Run(ctx context.Context, job *Job) error {
	for _, id := range job.remaining() {
		if err := ctx.Err(); err != nil {
			r.jobs.Fail(ctx, job, err)
			return err
		}

		start := time.Now()
		if err := r.repairListing(ctx, job, id); err != nil {
			// Store-level failure: the job cannot make progress.
			r.jobs.Fail(ctx, job, err)
			return err
		}
		if r.collector != nil {
			r.collector.RecordTiming(metrics.OpJobRecord, time.Since(start))
		}
	}

	r.jobs.Complete(ctx, job)
	return nil
}

// repairListing enriches and merges a single listing. Returns an error
// only for fatal store failures; enrichment problems are absorbed into the
// job's failure counter.
func (r *Runner) repairListing(ctx context.Context, job *Job, id string) error {
	listing, err := r.store.QueryGetListing(ctx, id)
	if err != nil {
		return fmt.Errorf("load listing %s: %w", id, err)
	}
	if listing == nil {
		// Deleted since the snapshot was taken; nothing to repair.
		slog.Warn("listing vanished mid-job", "job_id", job.ID, "listing_id", id)
		r.jobs.RecordFailure(ctx, job)
		return nil
	}

	enrichStart := time.Now()
	enrichment, err := r.enricher.FetchMissingFields(ctx, id)
	if r.collector != nil {
		r.collector.RecordTiming(metrics.OpEnrich, time.Since(enrichStart))
	}
	if err != nil {
		slog.Warn("enrichment failed", "job_id", job.ID, "listing_id", id, "error", err)
		r.jobs.RecordFailure(ctx, job)
		return nil
	}

	fields := mergeFields(listing, enrichment)
	if len(fields) > 0 {
		if err := r.store.QueryMergeListingFields(ctx, id, fields); err != nil {
			return fmt.Errorf("write listing %s: %w", id, err)
		}
	}

	r.jobs.RecordSuccess(ctx, job)
	return nil
}

// mergeFields builds the partial update for a listing: each repairable
// field is taken from the enrichment only when the stored value is
// currently empty or unusable. Populated fields are never clobbered, so a
// concurrent writer can at worst race repair data into an empty slot.
func mergeFields(listing *models.Listing, enrichment *enrich.Enrichment) map[string]any {
	fields := make(map[string]any, 4)

	if strings.TrimSpace(listing.Description) == "" && enrichment.Description != "" {
		fields["description"] = enrichment.Description
	}
	if strings.TrimSpace(listing.SKU) == "" && enrichment.SKU != "" {
		fields["sku"] = enrichment.SKU
	}
	if len(normalize.ImageList(listing.ImageData)) == 0 && len(enrichment.Images) > 0 {
		// Repaired image lists are written back in the canonical encoding;
		// unrepaired listings keep whatever legacy encoding they have.
		if canonical := canonicalImages(enrichment.Images); len(canonical) > 0 {
			fields["image_data"] = normalize.EncodeImageList(canonical)
		}
	}
	if !scoring.HasAttributes(listing.Attributes) && len(enrichment.Attributes) > 0 {
		if encoded, err := json.Marshal(enrichment.Attributes); err == nil {
			fields["attributes"] = string(encoded)
		}
	}

	return fields
}

// canonicalImages filters enrichment image candidates through the same URL
// validation applied to stored values.
func canonicalImages(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && normalize.ValidURL(c) {
			out = append(out, c)
		}
	}
	return out
}

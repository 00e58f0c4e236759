package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mgrabner/listsync-go/internal/models"
)

// JobStatus represents the state of a repair job.
//
// Transitions are monotonic: pending -> running -> {completed, failed}.
// No transition ever leaves a terminal state; callers wanting a retry
// create a new job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Phases are display-only sub-states of a running job, derived from the
// processed/total ratio. They never drive control flow.
const (
	PhaseInitializing = "initializing"
	PhaseDescriptions = "processing_descriptions"
	PhaseImages       = "processing_images"
	PhaseFinalizing   = "finalizing"
	PhaseCompleted    = "completed"
)

// PhaseFor derives the display phase from progress counters.
func PhaseFor(processed, total int) string {
	if total <= 0 {
		return PhaseInitializing
	}
	ratio := float64(processed) / float64(total)
	switch {
	case ratio < 0.10:
		return PhaseInitializing
	case ratio < 0.50:
		return PhaseDescriptions
	case ratio < 0.80:
		return PhaseImages
	default:
		return PhaseFinalizing
	}
}

// progress persistence debounce: at most one write per flushInterval
// unless a count boundary or terminal transition forces it.
const (
	flushInterval = 5 * time.Second
	flushEvery    = 10
)

// Job is the in-memory representation of a repair job. All counter fields
// are monotonically non-decreasing and processed+failed never exceeds
// TotalItems.
type Job struct {
	ID             string
	Status         JobStatus
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	ItemIDs        []string
	Error          string
	StartedAt      time.Time
	CompletedAt    *time.Time

	// Internal fields
	mu        sync.RWMutex
	lastFlush time.Time // for debouncing DB writes
}

// JobSnapshot is a race-free copy of job state for progress polling and
// JSON serialization.
type JobSnapshot struct {
	ID                  string     `json:"jobId"`
	Status              JobStatus  `json:"status"`
	TotalItems          int        `json:"totalItems"`
	ProcessedItems      int        `json:"processedItems"`
	FailedItems         int        `json:"failedItems"`
	CompletionRate      float64    `json:"completionRate"`
	CurrentPhase        string     `json:"currentPhase"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
	Error               *string    `json:"error,omitempty"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// Snapshot returns a thread-safe copy of job state with derived progress
// fields. A poll at time T never observes counters lower than an earlier
// poll: counters only ever grow under the job's lock.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := JobSnapshot{
		ID:             j.ID,
		Status:         j.Status,
		TotalItems:     j.TotalItems,
		ProcessedItems: j.ProcessedItems,
		FailedItems:    j.FailedItems,
		CurrentPhase:   j.phaseLocked(),
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
	if j.TotalItems > 0 {
		snap.CompletionRate = float64(j.ProcessedItems+j.FailedItems) / float64(j.TotalItems)
	}
	if j.Error != "" {
		e := j.Error
		snap.Error = &e
	}
	snap.EstimatedCompletion = j.estimateLocked(time.Now())
	return snap
}

// phaseLocked derives the display phase. Caller must hold the lock.
func (j *Job) phaseLocked() string {
	if j.Status == JobStatusCompleted {
		return PhaseCompleted
	}
	return PhaseFor(j.ProcessedItems, j.TotalItems)
}

// estimateLocked projects the completion time from the throughput so far.
// Undefined (nil) while nothing has been processed or no time has elapsed,
// to avoid division by zero. Caller must hold the lock.
func (j *Job) estimateLocked(now time.Time) *time.Time {
	if j.Status != JobStatusRunning {
		return nil
	}
	elapsed := now.Sub(j.StartedAt).Minutes()
	if j.ProcessedItems == 0 || elapsed <= 0 {
		return nil
	}

	remaining := j.TotalItems - j.ProcessedItems - j.FailedItems
	perMinute := float64(j.ProcessedItems) / elapsed
	minutesLeft := float64(remaining) / perMinute

	eta := now.Add(time.Duration(minutesLeft * float64(time.Minute)))
	return &eta
}

// remaining returns the unprocessed tail of the item snapshot.
// Snapshot order is fixed at creation, so the cursor is just the number of
// items already accounted for.
func (j *Job) remaining() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	cursor := j.ProcessedItems + j.FailedItems
	if cursor >= len(j.ItemIDs) {
		return nil
	}
	return j.ItemIDs[cursor:]
}

// JobStore is the persistence side of repair jobs. *db.Client satisfies it.
type JobStore interface {
	QueryCreateRepairJob(ctx context.Context, id string, itemIDs []string) (*models.RepairJob, error)
	QueryGetRepairJob(ctx context.Context, id string) (*models.RepairJob, error)
	QueryListRepairJobs(ctx context.Context, limit int) ([]models.RepairJob, error)
	QueryUpdateJobProgress(ctx context.Context, id string, processed, failed int, phase string) error
	QueryCompleteJob(ctx context.Context, id string, processed, failed int) error
	QueryFailJob(ctx context.Context, id string, errorMessage string, processed, failed int) error
	QueryIncompleteJobs(ctx context.Context) ([]models.RepairJob, error)
}

// JobManager tracks live repair jobs and owns their status transitions.
type JobManager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	store JobStore
}

// NewJobManager creates a new job manager.
func NewJobManager(store JobStore) *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		store: store,
	}
}

// newJobID builds a repair-job identifier: a time-based prefix for
// sortability plus a random suffix for uniqueness.
func newJobID(now time.Time) string {
	return fmt.Sprintf("repair-%s-%s", now.UTC().Format("20060102T150405"), uuid.New().String()[:8])
}

// CreateJob creates and persists a running repair job over a fixed item
// snapshot. Callers must not pass an empty snapshot; they report
// "no repair needed" instead of creating a vacuous job.
func (m *JobManager) CreateJob(ctx context.Context, itemIDs []string) (*Job, error) {
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("refusing to create job with empty snapshot")
	}

	now := time.Now()
	job := &Job{
		ID:         newJobID(now),
		Status:     JobStatusRunning,
		TotalItems: len(itemIDs),
		ItemIDs:    itemIDs,
		StartedAt:  now,
	}

	if m.store != nil {
		if _, err := m.store.QueryCreateRepairJob(ctx, job.ID, itemIDs); err != nil {
			return nil, fmt.Errorf("persist job: %w", err)
		}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	slog.Info("repair job created", "job_id", job.ID, "items", len(itemIDs))
	return job, nil
}

// RegisterJob adds an existing job to the in-memory map (for resume).
func (m *JobManager) RegisterJob(job *Job) {
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
}

// GetJob retrieves a live job by ID. Returns nil for unknown or already
// restarted-away jobs; callers fall back to the persisted record.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// RecordSuccess counts one successfully repaired listing and persists
// progress at a bounded cadence.
func (m *JobManager) RecordSuccess(ctx context.Context, job *Job) {
	m.recordResult(ctx, job, true)
}

// RecordFailure counts one listing whose enrichment failed. The listing is
// left untouched and the job continues.
func (m *JobManager) RecordFailure(ctx context.Context, job *Job) {
	m.recordResult(ctx, job, false)
}

func (m *JobManager) recordResult(ctx context.Context, job *Job, success bool) {
	job.mu.Lock()
	if job.ProcessedItems+job.FailedItems >= job.TotalItems {
		// Counter invariant: processed+failed never exceeds total.
		job.mu.Unlock()
		slog.Warn("ignoring result beyond snapshot size", "job_id", job.ID)
		return
	}
	if success {
		job.ProcessedItems++
	} else {
		job.FailedItems++
	}
	processed, failed := job.ProcessedItems, job.FailedItems
	phase := job.phaseLocked()
	done := processed+failed == job.TotalItems

	shouldPersist := m.store != nil &&
		(time.Since(job.lastFlush) > flushInterval || (processed+failed)%flushEvery == 0 || done)
	if shouldPersist {
		job.lastFlush = time.Now()
	}
	job.mu.Unlock()

	if shouldPersist {
		if err := m.store.QueryUpdateJobProgress(ctx, job.ID, processed, failed, phase); err != nil {
			slog.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
		}
	}
}

// Complete transitions a job to completed. The final counters are always
// persisted before the status flips, so a poll never sees a completed job
// with stale progress.
func (m *JobManager) Complete(ctx context.Context, job *Job) {
	job.mu.Lock()
	if job.Status != JobStatusRunning {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusCompleted
	now := time.Now()
	job.CompletedAt = &now
	processed, failed := job.ProcessedItems, job.FailedItems
	job.mu.Unlock()

	if m.store != nil {
		if err := m.store.QueryCompleteJob(ctx, job.ID, processed, failed); err != nil {
			slog.Warn("failed to persist job completion", "job_id", job.ID, "error", err)
		}
	}

	slog.Info("repair job completed", "job_id", job.ID, "processed", processed, "failed", failed)
}

// Fail transitions a job to failed with the triggering error. Partial
// progress from before the failure is preserved; nothing is rolled back.
func (m *JobManager) Fail(ctx context.Context, job *Job, err error) {
	job.mu.Lock()
	if job.Status != JobStatusRunning {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	processed, failed := job.ProcessedItems, job.FailedItems
	job.mu.Unlock()

	if m.store != nil {
		if dbErr := m.store.QueryFailJob(ctx, job.ID, err.Error(), processed, failed); dbErr != nil {
			slog.Warn("failed to persist job failure", "job_id", job.ID, "error", dbErr)
		}
	}

	slog.Error("repair job failed", "job_id", job.ID, "error", err)
}

// SnapshotFromRecord converts a persisted job row into a poll snapshot.
// Used for jobs that are no longer live in memory (audit trail, restarts).
func SnapshotFromRecord(rec models.RepairJob) JobSnapshot {
	snap := JobSnapshot{
		ID:             models.MustRecordIDString(rec.ID),
		Status:         JobStatus(rec.Status),
		TotalItems:     rec.TotalItems,
		ProcessedItems: rec.ProcessedItems,
		FailedItems:    rec.FailedItems,
		CurrentPhase:   rec.CurrentPhase,
		Error:          rec.ErrorMessage,
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
	}
	if rec.TotalItems > 0 {
		snap.CompletionRate = float64(rec.ProcessedItems+rec.FailedItems) / float64(rec.TotalItems)
	}
	return snap
}

// GetProgress returns the snapshot for a job, preferring the live job and
// falling back to the persisted record.
func (m *JobManager) GetProgress(ctx context.Context, id string) (*JobSnapshot, error) {
	if job := m.GetJob(id); job != nil {
		snap := job.Snapshot()
		return &snap, nil
	}

	if m.store == nil {
		return nil, nil
	}
	rec, err := m.store.QueryGetRepairJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	snap := SnapshotFromRecord(*rec)
	return &snap, nil
}

// ListJobs returns persisted jobs most-recent-first, with live jobs
// reported from memory so counters are current.
func (m *JobManager) ListJobs(ctx context.Context, limit int) ([]JobSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	if m.store == nil {
		return m.listLive(), nil
	}

	records, err := m.store.QueryListRepairJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	snapshots := make([]JobSnapshot, 0, len(records))
	for _, rec := range records {
		id := models.MustRecordIDString(rec.ID)
		if job := m.GetJob(id); job != nil {
			snapshots = append(snapshots, job.Snapshot())
			continue
		}
		snapshots = append(snapshots, SnapshotFromRecord(rec))
	}
	return snapshots, nil
}

// listLive returns snapshots of in-memory jobs, most recent first.
func (m *JobManager) listLive() []JobSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make([]JobSnapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshots = append(snapshots, job.Snapshot())
	}
	slices.SortFunc(snapshots, func(a, b JobSnapshot) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return snapshots
}

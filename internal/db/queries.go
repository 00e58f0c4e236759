// Package db provides SurrealDB query functions for listings and repair jobs.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/mgrabner/listsync-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QueryRecentListings returns up to limit listings ordered by
// most-recently-updated first. Unbounded scans are deliberately not
// supported; callers always pass a limit.
func (c *Client) QueryRecentListings(ctx context.Context, limit int) ([]models.Listing, error) {
	results, err := surrealdb.Query[[]models.Listing](ctx, c.db, `
		SELECT * FROM listing ORDER BY updated DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent listings: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Listing{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryGetListing retrieves a listing by ID.
// Returns nil if not found.
func (c *Client) QueryGetListing(ctx context.Context, id string) (*models.Listing, error) {
	results, err := surrealdb.Query[[]models.Listing](ctx, c.db, `
		SELECT * FROM type::record("listing", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryUpsertListing creates or replaces a listing's content by ID.
// Used by ingestion tooling and tests; repair uses QueryMergeListingFields
// instead so it never touches populated fields.
func (c *Client) QueryUpsertListing(ctx context.Context, id string, l models.Listing) (*models.Listing, error) {
	results, err := surrealdb.Query[[]models.Listing](ctx, c.db, `
		UPSERT type::record("listing", $id) SET
			title = $title,
			sku = $sku,
			description = $description,
			image_data = $image_data,
			attributes = $attributes,
			price = $price,
			updated = time::now(),
			created = IF created THEN created ELSE time::now() END
		RETURN AFTER
	`, map[string]any{
		"id":          id,
		"title":       l.Title,
		"sku":         l.SKU,
		"description": l.Description,
		"image_data":  l.ImageData,
		"attributes":  l.Attributes,
		"price":       l.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert listing: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert listing: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryMergeListingFields applies a partial-field update to a listing.
// Only the provided fields are written; everything else is left untouched.
// The updated timestamp is bumped as part of the same statement.
func (c *Client) QueryMergeListingFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updated"] = time.Now().UTC()

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("listing", $id) MERGE $fields
	`, map[string]any{"id": id, "fields": merged})
	if err != nil {
		return fmt.Errorf("merge listing fields: %w", wrapQueryError(err))
	}
	return nil
}

// QueryCreateRepairJob persists a new repair job with its fixed item
// snapshot. Jobs are created directly in running state; pending exists
// only conceptually and is immediately superseded.
func (c *Client) QueryCreateRepairJob(ctx context.Context, id string, itemIDs []string) (*models.RepairJob, error) {
	if itemIDs == nil {
		itemIDs = []string{}
	}

	results, err := surrealdb.Query[[]models.RepairJob](ctx, c.db, `
		CREATE type::record("repair_job", $id) CONTENT {
			status: "running",
			total_items: $total,
			processed_items: 0,
			failed_items: 0,
			current_phase: "initializing",
			item_ids: $item_ids,
			started_at: time::now()
		} RETURN AFTER
	`, map[string]any{
		"id":       id,
		"total":    len(itemIDs),
		"item_ids": itemIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("create repair job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create repair job: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetRepairJob retrieves a repair job by ID.
// Returns nil if not found.
func (c *Client) QueryGetRepairJob(ctx context.Context, id string) (*models.RepairJob, error) {
	results, err := surrealdb.Query[[]models.RepairJob](ctx, c.db, `
		SELECT * FROM type::record("repair_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get repair job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryListRepairJobs returns repair jobs ordered most-recent-first.
// Jobs are retained as an audit trail, so the list is bounded by limit.
func (c *Client) QueryListRepairJobs(ctx context.Context, limit int) ([]models.RepairJob, error) {
	results, err := surrealdb.Query[[]models.RepairJob](ctx, c.db, `
		SELECT * FROM repair_job ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list repair jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.RepairJob{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryUpdateJobProgress persists the current progress counters and phase.
// Counters only ever grow; the WHERE clause refuses to touch jobs that
// already reached a terminal status.
func (c *Client) QueryUpdateJobProgress(ctx context.Context, id string, processed, failed int, phase string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repair_job", $id) SET
			processed_items = $processed,
			failed_items = $failed,
			current_phase = $phase
		WHERE status = "running"
	`, map[string]any{
		"id":        id,
		"processed": processed,
		"failed":    failed,
		"phase":     phase,
	})
	if err != nil {
		return fmt.Errorf("update job progress: %w", wrapQueryError(err))
	}
	return nil
}

// QueryCompleteJob transitions a job to completed with final counters.
func (c *Client) QueryCompleteJob(ctx context.Context, id string, processed, failed int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repair_job", $id) SET
			status = "completed",
			current_phase = "completed",
			processed_items = $processed,
			failed_items = $failed,
			completed_at = time::now()
		WHERE status = "running"
	`, map[string]any{
		"id":        id,
		"processed": processed,
		"failed":    failed,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryFailJob transitions a job to failed with the triggering error.
// Partial progress counters from before the failure are preserved.
func (c *Client) QueryFailJob(ctx context.Context, id string, errorMessage string, processed, failed int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("repair_job", $id) SET
			status = "failed",
			error_message = $message,
			processed_items = $processed,
			failed_items = $failed,
			completed_at = time::now()
		WHERE status = "running"
	`, map[string]any{
		"id":        id,
		"message":   errorMessage,
		"processed": processed,
		"failed":    failed,
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryIncompleteJobs returns jobs still marked running, oldest first.
// Used on startup to resume work interrupted by a restart.
func (c *Client) QueryIncompleteJobs(ctx context.Context) ([]models.RepairJob, error) {
	results, err := surrealdb.Query[[]models.RepairJob](ctx, c.db, `
		SELECT * FROM repair_job WHERE status = "running" ORDER BY started_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("incomplete jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.RepairJob{}, nil
	}
	return (*results)[0].Result, nil
}

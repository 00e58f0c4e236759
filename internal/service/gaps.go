// Package service provides the completeness-scan and repair-job business
// logic for listsync.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mgrabner/listsync-go/internal/db"
	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/models"
	"github.com/mgrabner/listsync-go/internal/scoring"
)

// ListingSource is the read side of the listing store as seen by gap scans.
// *db.Client satisfies it; tests use in-memory fakes.
type ListingSource interface {
	QueryRecentListings(ctx context.Context, limit int) ([]models.Listing, error)
}

// IncompleteItem annotates one incomplete listing in a gap report.
type IncompleteItem struct {
	ID            string   `json:"id"`
	Score         int      `json:"score"`
	MissingFields []string `json:"missingFields"`
	Priority      string   `json:"priority"`
}

// GapReport aggregates one completeness scan over the listing store.
// It is ephemeral analysis output and is never persisted.
type GapReport struct {
	TotalChecked        int              `json:"totalChecked"`
	AverageCompleteness float64          `json:"averageCompleteness"`
	MissingByField      map[string]int   `json:"missingByField"`
	IncompleteItems     []IncompleteItem `json:"incompleteItems"`
}

// GapService scans the listing store for incomplete listings.
// Scans are read-only; repair is a separate, explicit step.
type GapService struct {
	source    ListingSource
	collector *metrics.Collector
	scanLimit int
}

// NewGapService creates a gap-detection service. scanLimit bounds scans
// when the caller does not pass its own limit.
func NewGapService(source ListingSource, collector *metrics.Collector, scanLimit int) *GapService {
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &GapService{
		source:    source,
		collector: collector,
		scanLimit: scanLimit,
	}
}

// Scan checks up to limit listings (most-recently-updated first) and
// returns the aggregate gap report. A limit of 0 applies the configured
// default. An empty or unreachable store yields db.ErrDataUnavailable and
// no partial report.
func (s *GapService) Scan(ctx context.Context, limit int) (*GapReport, error) {
	if limit <= 0 {
		limit = s.scanLimit
	}
	start := time.Now()

	listings, err := s.source.QueryRecentListings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrDataUnavailable, err)
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("%w: store contains no listings", db.ErrDataUnavailable)
	}

	report := &GapReport{
		TotalChecked:    len(listings),
		MissingByField:  make(map[string]int, len(scoring.CheckedFields)),
		IncompleteItems: []IncompleteItem{},
	}

	var scoreSum int
	for _, l := range listings {
		r := scoring.Score(l)
		scoreSum += r.Score

		for _, field := range r.MissingFields {
			report.MissingByField[field]++
		}

		if !r.Complete() {
			id, err := models.RecordIDString(l.ID)
			if err != nil {
				slog.Warn("skipping listing with non-string id", "error", err)
				continue
			}
			report.IncompleteItems = append(report.IncompleteItems, IncompleteItem{
				ID:            id,
				Score:         r.Score,
				MissingFields: r.MissingFields,
				Priority:      r.Priority,
			})
		}
	}
	report.AverageCompleteness = float64(scoreSum) / float64(len(listings))

	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpScan, time.Since(start))
	}
	slog.Info("gap scan complete",
		"checked", report.TotalChecked,
		"incomplete", len(report.IncompleteItems),
		"average", report.AverageCompleteness)

	return report, nil
}

// Package scoring computes listing completeness scores.
//
// A listing is scored against five weighted field checks, 20 points each,
// summing to 0-100. Scoring is a pure function of the listing's fields so
// it can be unit-tested without store access.
package scoring

import (
	"encoding/json"
	"strings"

	"github.com/mgrabner/listsync-go/internal/models"
	"github.com/mgrabner/listsync-go/internal/normalize"
)

// Field names reported for failed checks, as exposed in scan output.
const (
	FieldDescription = "description"
	FieldSKU         = "sku"
	FieldImages      = "images"
	FieldAttributes  = "structuredAttributes"
	FieldPrice       = "price"
)

// CheckedFields lists the five scored fields in their fixed reporting
// order. MissingFields in a Report is always a subset of this slice in
// this order.
var CheckedFields = []string{
	FieldDescription,
	FieldSKU,
	FieldImages,
	FieldAttributes,
	FieldPrice,
}

// Priority tiers for incomplete listings.
const (
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
	PriorityComplete = "complete"
)

// Score thresholds.
const (
	pointsPerCheck = 20

	// minDescriptionLen is the minimum description length that counts as
	// "present". Anything shorter reads like a placeholder.
	minDescriptionLen = 50

	// CompleteThreshold is the score at and above which a listing is not
	// reported as incomplete.
	CompleteThreshold = 90

	highThreshold   = 50
	mediumThreshold = 70
)

// Report is the ephemeral per-listing completeness result.
type Report struct {
	Score         int      `json:"score"`
	MissingFields []string `json:"missingFields"`
	Priority      string   `json:"priority"`
}

// Complete reports whether the listing needs no repair.
func (r Report) Complete() bool {
	return r.Score >= CompleteThreshold
}

// Score evaluates the five completeness checks against a listing.
// Pure and deterministic: equal listings always produce equal reports.
func Score(l models.Listing) Report {
	var (
		total   int
		missing []string
	)

	check := func(field string, ok bool) {
		if ok {
			total += pointsPerCheck
		} else {
			missing = append(missing, field)
		}
	}

	check(FieldDescription, len(strings.TrimSpace(l.Description)) >= minDescriptionLen)
	check(FieldSKU, strings.TrimSpace(l.SKU) != "")
	check(FieldImages, len(normalize.ImageList(l.ImageData)) > 0)
	check(FieldAttributes, HasAttributes(l.Attributes))
	check(FieldPrice, l.Price > 0)

	return Report{
		Score:         total,
		MissingFields: missing,
		Priority:      PriorityFor(total),
	}
}

// PriorityFor maps a score onto its repair-priority tier. Listings at or
// above CompleteThreshold report PriorityComplete.
func PriorityFor(score int) string {
	switch {
	case score >= CompleteThreshold:
		return PriorityComplete
	case score < highThreshold:
		return PriorityHigh
	case score < mediumThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// HasAttributes reports whether the raw structured-attributes value parses
// to a non-empty structure. An empty object, empty array, unparseable
// value, or blank string all count as missing.
func HasAttributes(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return false
	}

	switch v := parsed.(type) {
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return false
	}
}

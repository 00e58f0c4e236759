// Package models defines data structures for the listsync inventory store.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Listing represents a single marketplace listing subject to completeness
// checking and repair.
//
// ImageData and Attributes hold the raw stored values: the upstream store
// accumulated at least four incompatible textual encodings for "list of
// image URLs" over the years, so normalization happens on read (see
// internal/normalize), not on write. Only a successful repair rewrites
// ImageData, and then in the canonical JSON-array encoding.
type Listing struct {
	ID          surrealmodels.RecordID `json:"id"`
	Title       string                 `json:"title"`
	SKU         string                 `json:"sku"`
	Description string                 `json:"description"`
	ImageData   string                 `json:"image_data,omitempty"`
	Attributes  string                 `json:"attributes,omitempty"`
	Price       float64                `json:"price"`
	Created     time.Time              `json:"created"`
	Updated     time.Time              `json:"updated"`
}

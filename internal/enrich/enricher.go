// Package enrich fetches candidate field values for incomplete listings
// from the remote marketplace API.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Enrichment carries candidate values for a listing's repairable fields.
// Absent fields mean the marketplace had nothing to offer; the repair
// runner decides what to apply (it never overwrites populated fields).
type Enrichment struct {
	Description string         `json:"description,omitempty"`
	SKU         string         `json:"sku,omitempty"`
	Images      []string       `json:"images,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Empty reports whether the enrichment carries no usable values at all.
func (e *Enrichment) Empty() bool {
	return e.Description == "" && e.SKU == "" && len(e.Images) == 0 && len(e.Attributes) == 0
}

// Enricher fetches missing field values for a listing. Implementations are
// expected to be rate-limited upstream; callers process listings
// sequentially and treat per-listing errors as recoverable.
type Enricher interface {
	FetchMissingFields(ctx context.Context, listingID string) (*Enrichment, error)
}

// HTTPEnricher implements Enricher against the marketplace lookup endpoint.
type HTTPEnricher struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check that HTTPEnricher implements Enricher.
var _ Enricher = (*HTTPEnricher)(nil)

// NewHTTPEnricher creates a marketplace enrichment client.
// The timeout bounds each per-listing lookup.
func NewHTTPEnricher(baseURL string, timeout time.Duration) *HTTPEnricher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEnricher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchMissingFields looks up candidate field values for one listing.
// A non-200 response is an error; the caller counts it against the job's
// failed items and moves on.
func (c *HTTPEnricher) FetchMissingFields(ctx context.Context, listingID string) (*Enrichment, error) {
	endpoint := fmt.Sprintf("%s/listings/%s/enrich", c.baseURL, url.PathEscape(listingID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("listing %s not known upstream", listingID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("marketplace lookup: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var enrichment Enrichment
	if err := json.NewDecoder(resp.Body).Decode(&enrichment); err != nil {
		return nil, fmt.Errorf("decode enrichment: %w", err)
	}

	return &enrichment, nil
}

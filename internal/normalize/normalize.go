// Package normalize converts raw stored image-field values into canonical
// ordered lists of validated URLs.
//
// The inventory store accumulated at least four incompatible encodings for
// "list of image URLs": PostgreSQL array literals, JSON arrays, bare URL
// strings, and free text with an embedded URL. Normalization tries each
// encoding in order and always degrades to an empty list instead of
// returning an error, because malformed legacy values are expected and must
// not block scanning.
package normalize

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
)

// imageParser attempts to decode one encoding of the raw image field.
// It either produces a candidate list or declines by returning ok=false,
// in which case the next parser is tried.
type imageParser func(raw string) (candidates []string, ok bool)

// parsers are tried in order; the final embedded-URL scan never declines.
var parsers = []imageParser{
	parsePostgresArray,
	parseJSONArray,
	parseBareURL,
	parseEmbeddedURL,
}

// ImageList converts a raw stored image-field value into the canonical
// image list: an ordered sequence of validated URLs with duplicates and
// empty entries removed. The empty list is a valid result meaning
// "no images". ImageList never fails.
func ImageList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}

	for _, parse := range parsers {
		candidates, ok := parse(raw)
		if !ok {
			continue
		}
		return validate(candidates)
	}

	// Unreachable: parseEmbeddedURL always accepts.
	return []string{}
}

// EncodeImageList serializes a canonical image list into the single
// encoding used for repair write-backs: a JSON array string.
func EncodeImageList(urls []string) string {
	if len(urls) == 0 {
		return "[]"
	}
	data, err := json.Marshal(urls)
	if err != nil {
		// []string marshaling cannot fail; kept for completeness.
		return "[]"
	}
	return string(data)
}

// validate filters candidates to syntactically valid URLs, dropping
// empties and duplicates while preserving source order.
func validate(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || !ValidURL(c) {
			if c != "" {
				slog.Debug("dropping invalid image url", "value", c)
			}
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ValidURL reports whether s is a syntactically valid absolute http(s) URL.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// parsePostgresArray handles PostgreSQL-style array literals:
// {url1,url2,...} with optionally double-quoted values. Values are split
// on top-level commas only, so quoted entries may contain commas.
func parsePostgresArray(raw string) ([]string, bool) {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return nil, false
	}

	inner := raw[1 : len(raw)-1]
	if strings.TrimSpace(inner) == "" {
		return []string{}, true
	}

	var (
		candidates []string
		current    strings.Builder
		inQuotes   bool
		escaped    bool
	)
	for _, r := range inner {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			candidates = append(candidates, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	candidates = append(candidates, current.String())

	return candidates, true
}

// parseJSONArray handles JSON array literals. A string that looks like a
// JSON array but fails to parse (or parses to non-strings) declines, so the
// whole value falls through to the bare-URL and embedded-URL handling.
func parseJSONArray(raw string) ([]string, bool) {
	if !strings.HasPrefix(raw, "[") {
		return nil, false
	}

	var entries []any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.Debug("image field looks like JSON but does not parse", "error", err)
		return nil, false
	}

	candidates := make([]string, 0, len(entries))
	for _, e := range entries {
		if s, ok := e.(string); ok {
			candidates = append(candidates, s)
		}
	}
	return candidates, true
}

// parseBareURL handles a raw value that is itself a single URL.
func parseBareURL(raw string) ([]string, bool) {
	if !ValidURL(raw) {
		return nil, false
	}
	return []string{raw}, true
}

// parseEmbeddedURL is the guaranteed final fallback: a best-effort scan for
// an http(s):// substring inside arbitrary text. Always accepts; yields an
// empty candidate list when nothing URL-like is found.
func parseEmbeddedURL(raw string) ([]string, bool) {
	idx := strings.Index(raw, "http://")
	if idx < 0 {
		idx = strings.Index(raw, "https://")
	}
	if idx < 0 {
		return []string{}, true
	}

	candidate := raw[idx:]
	// Cut at the first whitespace or quote after the URL start.
	if end := strings.IndexAny(candidate, " \t\n\r\"'"); end >= 0 {
		candidate = candidate[:end]
	}
	return []string{candidate}, true
}

// Package threatlist identifies Safe Browsing threat lists and expands the
// selector syntax ("MALWARE/WINDOWS/URL", "*/WINDOWS/*", "ALL") used to pick
// a subset of lists for an update or lookup against the known-list catalog
// returned by the service's /v4/threatLists endpoint.
package threatlist

import (
	"fmt"
	"strings"

	"github.com/sb4client/safebrowsing4/internal/safeerrors"
)

// wildcard matches any token in a selector segment.
const wildcard = "*"

// all is the shorthand selector meaning every list in the catalog.
const all = "ALL"

// ID identifies a threat list by the (threatType, platformType,
// threatEntryType) triple. Two IDs are equal iff all three fields match.
type ID struct {
	ThreatType      string
	PlatformType    string
	ThreatEntryType string
}

// String renders the ID in "threatType/platformType/threatEntryType" form.
func (id ID) String() string {
	return id.ThreatType + "/" + id.PlatformType + "/" + id.ThreatEntryType
}

// Selector is a parsed selector, possibly containing wildcard segments.
type Selector struct {
	threatType      string
	platformType    string
	threatEntryType string
}

// matches reports whether id satisfies the selector, treating the wildcard
// token as matching any value in that position.
func (s Selector) matches(id ID) bool {
	return (s.threatType == wildcard || s.threatType == id.ThreatType) &&
		(s.platformType == wildcard || s.platformType == id.PlatformType) &&
		(s.threatEntryType == wildcard || s.threatEntryType == id.ThreatEntryType)
}

// ParseSelector parses a single selector string of the form
// "threatType/platformType/threatEntryType", where any segment may be "*".
// The literal string "ALL" is equivalent to "*/*/*".
func ParseSelector(raw string) (sel Selector, err error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, all) {
		return Selector{threatType: wildcard, platformType: wildcard, threatEntryType: wildcard}, nil
	}

	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return Selector{}, fmt.Errorf(
			"%w: selector %q must have exactly 3 slash-separated segments",
			safeerrors.ErrInvalidURL, raw,
		)
	}

	for i, p := range parts {
		if p == "" {
			return Selector{}, fmt.Errorf("%w: selector %q has an empty segment", safeerrors.ErrInvalidURL, raw)
		}
		if p != wildcard {
			parts[i] = strings.ToUpper(p)
		}
	}

	return Selector{
		threatType:      parts[0],
		platformType:    parts[1],
		threatEntryType: parts[2],
	}, nil
}

// ParseSelectors parses a comma-separated list of selector strings, trimming
// surrounding whitespace around each element.
func ParseSelectors(raw string) (sels []Selector, err error) {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		sel, err := ParseSelector(part)
		if err != nil {
			return nil, err
		}

		sels = append(sels, sel)
	}

	return sels, nil
}

// Expand returns every ID in catalog that matches at least one of sels. If
// sels is empty, every ID in catalog is returned. The result contains no
// duplicates; order follows catalog.
func Expand(sels []Selector, catalog []ID) (ids []ID) {
	if len(sels) == 0 {
		return append(ids, catalog...)
	}

	seen := make(map[ID]struct{}, len(catalog))
	for _, id := range catalog {
		for _, sel := range sels {
			if !sel.matches(id) {
				continue
			}
			if _, ok := seen[id]; ok {
				break
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			break
		}
	}

	return ids
}

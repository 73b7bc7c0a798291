// Package canonical implements the bit-exact URL canonicalization and
// lookup-expression enumeration required for compatibility with the Safe
// Browsing v4 service.  Both the normalization algorithm and the expression
// cross-product are specified precisely enough that two independent
// implementations must produce byte-identical output for the same input;
// nothing here is an approximation.
package canonical

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sb4client/safebrowsing4/internal/safeerrors"
)

// URI is a canonicalized URL: scheme, host, and path are normalized per the
// algorithm in [Parse]; fragment and userinfo are removed; the query string
// is retained verbatim.
type URI struct {
	Scheme string
	Host   string
	Path   string
	Query  string
}

// HasQuery reports whether the original URL carried a query component.
func (u URI) HasQuery() bool {
	return u.Query != ""
}

// PathWithQuery returns the path, followed by "?"+query if a query is
// present.
func (u URI) PathWithQuery() string {
	if u.Query == "" {
		return u.Path
	}

	return u.Path + "?" + u.Query
}

// Parse canonicalizes a raw URL string, following the Safe Browsing v4
// canonicalization algorithm. It returns [safeerrors.ErrInvalidURL] if the
// scheme is unsupported or the host is empty.
func Parse(raw string) (u URI, err error) {
	raw = strings.TrimSpace(raw)
	raw = collapseSchemeSlashes(raw)
	raw = stripWhitespaceRunes(raw)
	raw = repeatedUnescape(raw)

	// Escape any percent sign that isn't a valid triplet before handing the
	// string to net/url, which otherwise rejects it as a malformed escape.
	// This realizes the "lone % -> %25" fix-up from the canonicalization
	// algorithm; the caret round-trip below realizes the rest of it.
	raw = escapeLonePercent(raw)

	parsed, err := parseWithDefaultScheme(raw)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %s", safeerrors.ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return URI{}, fmt.Errorf("%w: unsupported scheme %q", safeerrors.ErrInvalidURL, scheme)
	}

	host, err := canonicalizeHost(parsed.Hostname())
	if err != nil {
		return URI{}, err
	}

	path := canonicalizePath(parsed.EscapedPath())
	path = fixCaret(path)

	return URI{
		Scheme: scheme,
		Host:   host,
		Path:   path,
		Query:  parsed.RawQuery,
	}, nil
}

// collapseSchemeSlashes collapses any run of "/" immediately following the
// first ":" down to exactly two slashes, so that "http:/host",
// "http:///host", and "http://///host" are all treated the same as
// "http://host" before parsing.
func collapseSchemeSlashes(raw string) string {
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return raw
	}

	start := idx + 1
	end := start
	for end < len(raw) && raw[end] == '/' {
		end++
	}

	if end == start {
		return raw
	}

	return raw[:start] + "//" + raw[end:]
}

// stripWhitespaceRunes removes every \r, \n, and \t from raw.
func stripWhitespaceRunes(raw string) string {
	return strings.NewReplacer("\r", "", "\n", "", "\t", "").Replace(raw)
}

// repeatedUnescape repeatedly percent-unescapes raw, except for the %23
// sentinel (which stands for '#' and must survive unescaping so that the
// fragment is only stripped once by the URL parser), until a pass produces
// no further change.
func repeatedUnescape(raw string) string {
	const sentinel = "%23"
	const placeholder = "\x00SB4_HASH_SENTINEL\x00"

	s := strings.ReplaceAll(raw, sentinel, placeholder)
	for {
		next, err := url.QueryUnescape(escapeLonePercent(s))
		if err != nil || next == s {
			break
		}
		s = next
	}

	return strings.ReplaceAll(s, placeholder, sentinel)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseWithDefaultScheme parses raw as a URL, prepending "http://" if no
// scheme is present.
func parseWithDefaultScheme(raw string) (u *url.URL, err error) {
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "http:") && !strings.HasPrefix(raw, "https:") {
		raw = "http://" + raw
	}

	u, err = url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	return u, nil
}

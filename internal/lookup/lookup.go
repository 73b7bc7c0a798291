// Package lookup implements the Lookup Engine: normalizing a URL, enumerating
// its lookup expressions, matching their hashes against the local prefix
// table, consulting the full-hash cache, and falling back to a remote
// full-hash confirmation request when nothing cached is found.
package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/sb4client/safebrowsing4/internal/apiclient"
	"github.com/sb4client/safebrowsing4/internal/canonical"
	"github.com/sb4client/safebrowsing4/internal/hashutil"
	"github.com/sb4client/safebrowsing4/internal/metrics"
	"github.com/sb4client/safebrowsing4/internal/safeerrors"
	"github.com/sb4client/safebrowsing4/internal/store"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

// Match is one confirmed threat match returned by [Engine.Lookup].
type Match struct {
	Hash          hashutil.FullHash
	List          threatlist.ID
	Metadata      map[string][]byte
	CacheDuration time.Duration
}

// API is the subset of [apiclient.Client] the engine depends on, narrowed
// for testability.
type API interface {
	FindFullHashes(
		ctx context.Context,
		clientID, clientVersion string,
		req apiclient.FindRequest,
	) ([]apiclient.Match, error)
}

// Engine runs the lookup algorithm against a [store.Storage] and an [API].
type Engine struct {
	api           API
	storage       store.Storage
	metrics       metrics.Lookups
	clientID      string
	clientVersion string
	now           func() time.Time
}

// Config configures an [Engine].
type Config struct {
	API           API
	Storage       store.Storage
	Metrics       metrics.Lookups
	ClientID      string
	ClientVersion string
}

// New returns a new [Engine]. conf.API and conf.Storage must not be nil.
func New(conf Config) (e *Engine) {
	return &Engine{
		api:           conf.API,
		storage:       conf.Storage,
		metrics:       conf.Metrics,
		clientID:      conf.ClientID,
		clientVersion: conf.ClientVersion,
		now:           time.Now,
	}
}

// Lookup runs the lookup algorithm for rawURL against lists. An unparseable
// URL is not an error: it simply yields no matches, per the library's
// contract that malformed input is never a threat.
func (e *Engine) Lookup(ctx context.Context, rawURL string, lists []threatlist.ID) (matches []Match, err error) {
	uri, err := canonical.Parse(rawURL)
	if err != nil {
		return nil, nil
	}

	exprs := canonical.Expressions(uri)
	hashes := make([]hashutil.FullHash, 0, len(exprs))
	for _, expr := range exprs {
		hashes = append(hashes, hashutil.Sum(expr))
	}

	prefixMatches, err := e.storage.GetPrefixes(hashes, lists)
	if err != nil {
		return nil, fmt.Errorf("%w: reading prefixes: %s", safeerrors.ErrStorage, err)
	}
	if len(prefixMatches) == 0 {
		return nil, nil
	}

	matchedLists := distinctLists(prefixMatches)
	now := e.now()

	cached, err := e.cachedMatches(hashes, matchedLists, now)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		return cached, nil
	}

	prefixes := distinctPrefixes(prefixMatches)

	states := make(map[threatlist.ID]string, len(matchedLists))
	for _, list := range matchedLists {
		state, stateErr := e.storage.GetState(list)
		if stateErr != nil {
			return nil, fmt.Errorf("%w: reading state for %s: %s", safeerrors.ErrStorage, list, stateErr)
		}

		states[list] = state
	}

	if e.metrics != nil {
		e.metrics.ObserveFullHashRequest()
	}

	found, err := e.api.FindFullHashes(ctx, e.clientID, e.clientVersion, apiclient.FindRequest{
		Prefixes: prefixes,
		Lists:    matchedLists,
		States:   states,
	})
	if err != nil {
		return nil, nil
	}

	return e.confirmAndPersist(found, hashes, now)
}

// cachedMatches checks the full-hash cache for each of hashes against lists,
// reporting a cache hit or miss for each to metrics. A non-empty result
// short-circuits the remote confirmation step.
func (e *Engine) cachedMatches(
	hashes []hashutil.FullHash,
	lists []threatlist.ID,
	now time.Time,
) (matches []Match, err error) {
	for _, h := range hashes {
		entries, getErr := e.storage.GetFullHashes(h, lists, now)
		if getErr != nil {
			return nil, fmt.Errorf("%w: reading full hash cache: %s", safeerrors.ErrStorage, getErr)
		}

		if e.metrics != nil {
			e.metrics.ObserveCacheLookup(len(entries) > 0)
		}

		for _, entry := range entries {
			matches = append(matches, Match{
				Hash:          entry.Hash,
				List:          entry.List,
				Metadata:      entry.Metadata,
				CacheDuration: entry.ExpiresAt.Sub(now),
			})
		}
	}

	return matches, nil
}

// confirmAndPersist filters found to the entries whose hash equals one of
// computed, persists them to the full-hash cache, and returns them as
// [Match] values.
func (e *Engine) confirmAndPersist(
	found []apiclient.Match,
	computed []hashutil.FullHash,
	now time.Time,
) (matches []Match, err error) {
	wanted := make(map[string]struct{}, len(computed))
	for _, h := range computed {
		wanted[h.String()] = struct{}{}
	}

	entries := make([]store.FullHashEntry, 0, len(found))
	for _, m := range found {
		if _, ok := wanted[m.Hash]; !ok {
			continue
		}

		var hash hashutil.FullHash
		copy(hash[:], m.Hash)

		entry := store.FullHashEntry{
			Hash:      hash,
			List:      m.List,
			Metadata:  m.Metadata,
			ExpiresAt: now.Add(m.CacheDuration),
		}
		entries = append(entries, entry)

		matches = append(matches, Match{
			Hash:          hash,
			List:          m.List,
			Metadata:      m.Metadata,
			CacheDuration: m.CacheDuration,
		})
	}

	if len(entries) == 0 {
		return nil, nil
	}

	err = e.storage.AddFullHashes(entries, now)
	if err != nil {
		return nil, fmt.Errorf("%w: caching full hashes: %s", safeerrors.ErrStorage, err)
	}

	return matches, nil
}

// distinctLists returns the distinct lists referenced by matches, in
// first-seen order.
func distinctLists(matches []store.PrefixMatch) (lists []threatlist.ID) {
	seen := make(map[threatlist.ID]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.List]; ok {
			continue
		}

		seen[m.List] = struct{}{}
		lists = append(lists, m.List)
	}

	return lists
}

// distinctPrefixes returns the distinct prefix strings referenced by
// matches, in first-seen order.
func distinctPrefixes(matches []store.PrefixMatch) (prefixes []string) {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Prefix]; ok {
			continue
		}

		seen[m.Prefix] = struct{}{}
		prefixes = append(prefixes, m.Prefix)
	}

	return prefixes
}

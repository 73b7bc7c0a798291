// Package store defines the persistent storage contract consumed by the
// update and lookup engines, and provides two implementations: [Memory], an
// in-process store with no durability, and [File], a crash-atomic
// file-backed store suitable for a long-lived process.
//
// Neither implementation is part of the core update/lookup algorithms; both
// exist so the rest of the module has something concrete to run against,
// the way the spec's "Storage Interface" is an external collaborator with
// only its contract mandated.
package store

import (
	"time"

	"github.com/sb4client/safebrowsing4/internal/hashutil"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

// PrefixMatch is one result of [Storage.GetPrefixes]: a stored prefix that is
// a byte-prefix of one of the queried hashes, together with the list it came
// from.
type PrefixMatch struct {
	Prefix string
	List   threatlist.ID
}

// FullHashEntry is a cached, server-confirmed full hash, scoped to a single
// threat list and carrying an expiration time derived from the server's
// cache-duration response field.
type FullHashEntry struct {
	Hash      hashutil.FullHash
	List      threatlist.ID
	Metadata  map[string][]byte
	ExpiresAt time.Time
}

// Schedule is the process-wide update schedule: when the last update ran,
// when the next one may run, and how many updates have failed in a row.
type Schedule struct {
	LastUpdate        time.Time
	NextUpdate        time.Time
	ConsecutiveErrors int
}

// Storage is the persistence contract required by [internal/update.Engine]
// and [internal/lookup.Engine]. Implementations must serialize their own
// writes and make Save crash-atomic: either the prior table and state
// remain wholly visible, or the new pair does.
type Storage interface {
	// Save applies a list update. If override is true, the new table starts
	// from empty; otherwise it starts from the table currently stored for
	// list. removeIndices are indices into the pre-removal sorted table;
	// removals are applied before additions are merged in. The resulting
	// table is sorted, deduplicated, and persisted along with state before
	// Save returns it.
	Save(
		list threatlist.ID,
		state string,
		add []string,
		removeIndices []int,
		override bool,
	) (sorted []string, err error)

	// Reset drops the stored table and state for list.
	Reset(list threatlist.ID) error

	// GetState returns the state token stored for list, or "" if absent.
	GetState(list threatlist.ID) (state string, err error)

	// GetPrefixes returns, for each (hash, list) pair drawn from the cross
	// product of hashes and lists, the longest stored prefix that is a
	// byte-prefix of hash, if any.
	GetPrefixes(hashes []hashutil.FullHash, lists []threatlist.ID) ([]PrefixMatch, error)

	// AddFullHashes merges entries into the full-hash cache, stamping none
	// of them (callers set ExpiresAt themselves before calling).
	AddFullHashes(entries []FullHashEntry, now time.Time) error

	// GetFullHashes returns unexpired cached entries matching hash and any
	// of lists.
	GetFullHashes(hash hashutil.FullHash, lists []threatlist.ID, now time.Time) ([]FullHashEntry, error)

	// NextUpdate returns the scheduled time of the next update, or the zero
	// time if none has ever been scheduled.
	NextUpdate() (time.Time, error)

	// Updated records a successful update and resets the consecutive error
	// counter.
	Updated(now, next time.Time) error

	// UpdateError records a failed update: now becomes the last-update time,
	// now+wait becomes the next-update time, and errs replaces the
	// consecutive error counter.
	UpdateError(now time.Time, wait time.Duration, errs int) error

	// LastUpdate returns the current schedule.
	LastUpdate() (Schedule, error)
}

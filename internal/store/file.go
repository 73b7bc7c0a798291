package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	renameio "github.com/google/renameio/v2"

	"github.com/sb4client/safebrowsing4/internal/hashutil"
	"github.com/sb4client/safebrowsing4/internal/safeerrors"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

// fileFormatVersion guards against loading a snapshot written by an
// incompatible future or past version of this package.
const fileFormatVersion = 1

// File is a [Storage] implementation that persists the prefix tables, state
// tokens, full-hash cache, and update schedule to a single JSON file,
// writing it atomically on every mutation via [renameio.WriteFile] so a
// crash mid-write can never leave a torn file on disk.
type File struct {
	mu   *sync.Mutex
	mem  *Memory
	path string
}

// fileSnapshot is the on-disk representation of a [File] store.
type fileSnapshot struct {
	Version  int                      `json:"version"`
	Tables   map[string][]string      `json:"tables"`
	States   map[string]string        `json:"states"`
	Schedule Schedule                 `json:"schedule"`
	Cache    []fileSnapshotCacheEntry `json:"cache,omitempty"`
}

// fileSnapshotCacheEntry is the on-disk representation of one
// [FullHashEntry].
type fileSnapshotCacheEntry struct {
	Hash      []byte            `json:"hash"`
	List      string            `json:"list"`
	Metadata  map[string][]byte `json:"metadata,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// NewFile returns a [File] store backed by the file at path, loading
// existing state from it if present. It is not an error for path to not
// exist yet; the first mutating call creates it.
func NewFile(path string) (f *File, err error) {
	f = &File{
		mu:   &sync.Mutex{},
		mem:  NewMemory(),
		path: path,
	}

	err = f.load()
	if err != nil {
		return nil, fmt.Errorf("loading store from %q: %w", path, err)
	}

	return f, nil
}

// type check
var _ Storage = (*File)(nil)

func (f *File) load() (err error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("%w: %s", safeerrors.ErrStorage, err)
	}

	snap := &fileSnapshot{}
	err = json.Unmarshal(data, snap)
	if err != nil {
		return fmt.Errorf("%w: decoding snapshot: %s", safeerrors.ErrStorage, err)
	}

	if snap.Version != fileFormatVersion {
		return fmt.Errorf(
			"%w: snapshot version %d is incompatible with %d",
			safeerrors.ErrStorage,
			snap.Version,
			fileFormatVersion,
		)
	}

	tables := make(map[threatlist.ID][]string, len(snap.Tables))
	for k, v := range snap.Tables {
		id, parseErr := parseListKey(k)
		if parseErr != nil {
			return parseErr
		}
		tables[id] = v
	}

	states := make(map[threatlist.ID]string, len(snap.States))
	for k, v := range snap.States {
		id, parseErr := parseListKey(k)
		if parseErr != nil {
			return parseErr
		}
		states[id] = v
	}

	cache := make([]FullHashEntry, 0, len(snap.Cache))
	for _, c := range snap.Cache {
		id, parseErr := parseListKey(c.List)
		if parseErr != nil {
			return parseErr
		}

		var h hashutil.FullHash
		copy(h[:], c.Hash)

		cache = append(cache, FullHashEntry{
			Hash:      h,
			List:      id,
			Metadata:  c.Metadata,
			ExpiresAt: c.ExpiresAt,
		})
	}

	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()
	f.mem.restore(tables, states, snap.Schedule, cache, time.Now())

	return nil
}

// persist writes the current in-memory state to disk atomically. Called
// with f.mu held by the caller.
func (f *File) persist() (err error) {
	f.mem.mu.Lock()
	tables, states, sched, cache := f.mem.snapshot()
	f.mem.mu.Unlock()

	snap := &fileSnapshot{
		Version:  fileFormatVersion,
		Tables:   make(map[string][]string, len(tables)),
		States:   make(map[string]string, len(states)),
		Schedule: sched,
	}

	for id, t := range tables {
		snap.Tables[id.String()] = t
	}
	for id, s := range states {
		snap.States[id.String()] = s
	}
	for _, e := range cache {
		snap.Cache = append(snap.Cache, fileSnapshotCacheEntry{
			Hash:      e.Hash.Bytes(),
			List:      e.List.String(),
			Metadata:  e.Metadata,
			ExpiresAt: e.ExpiresAt,
		})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	err = renameio.WriteFile(f.path, data, 0o600)
	if err != nil {
		return fmt.Errorf("%w: writing snapshot: %s", safeerrors.ErrStorage, err)
	}

	return nil
}

// parseListKey parses a "threatType/platformType/threatEntryType" map key
// back into a [threatlist.ID].
func parseListKey(key string) (id threatlist.ID, err error) {
	parts := splitThree(key)
	if parts == nil {
		return threatlist.ID{}, fmt.Errorf("%w: malformed list key %q", safeerrors.ErrStorage, key)
	}

	return threatlist.ID{ThreatType: parts[0], PlatformType: parts[1], ThreatEntryType: parts[2]}, nil
}

// splitThree splits a "a/b/c" string into exactly three parts, or returns
// nil if it doesn't have that shape.
func splitThree(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])

	if len(parts) != 3 {
		return nil
	}

	return parts
}

// Save implements the [Storage] interface for *File.
func (f *File) Save(
	list threatlist.ID,
	state string,
	add []string,
	removeIndices []int,
	override bool,
) (sorted []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sorted, err = f.mem.Save(list, state, add, removeIndices, override)
	if err != nil {
		return nil, err
	}

	return sorted, f.persist()
}

// Reset implements the [Storage] interface for *File.
func (f *File) Reset(list threatlist.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.mem.Reset(list)
	if err != nil {
		return err
	}

	return f.persist()
}

// GetState implements the [Storage] interface for *File.
func (f *File) GetState(list threatlist.ID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mem.GetState(list)
}

// GetPrefixes implements the [Storage] interface for *File.
func (f *File) GetPrefixes(hashes []hashutil.FullHash, lists []threatlist.ID) ([]PrefixMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mem.GetPrefixes(hashes, lists)
}

// AddFullHashes implements the [Storage] interface for *File.
func (f *File) AddFullHashes(entries []FullHashEntry, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.mem.AddFullHashes(entries, now)
	if err != nil {
		return err
	}

	return f.persist()
}

// GetFullHashes implements the [Storage] interface for *File.
func (f *File) GetFullHashes(
	hash hashutil.FullHash,
	lists []threatlist.ID,
	now time.Time,
) ([]FullHashEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mem.GetFullHashes(hash, lists, now)
}

// NextUpdate implements the [Storage] interface for *File.
func (f *File) NextUpdate() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mem.NextUpdate()
}

// Updated implements the [Storage] interface for *File.
func (f *File) Updated(now, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.mem.Updated(now, next)
	if err != nil {
		return err
	}

	return f.persist()
}

// UpdateError implements the [Storage] interface for *File.
func (f *File) UpdateError(now time.Time, wait time.Duration, errs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.mem.UpdateError(now, wait, errs)
	if err != nil {
		return err
	}

	return f.persist()
}

// LastUpdate implements the [Storage] interface for *File.
func (f *File) LastUpdate() (Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.mem.LastUpdate()
}

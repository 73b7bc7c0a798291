// Package safebrowsing4 implements a client for the Safe Browsing v4 Update
// API.
//
// At a high level, the implementation maintains a local database of hash
// prefixes synced from the service via Update, and answers Lookup queries by
// checking that database and, when necessary, a remote full-hash
// confirmation request.
//
//	             hash(expr)
//	                  |
//	             _____V_____
//	            |  local    | No match
//	            |  prefixes |---------+
//	            |___________|         |
//	                  | Maybe         |
//	             _____V_____          |
//	            |   cache   | Unknown |
//	            |___________|---------+
//	                  | Hit                V
//	                  |              ____V____
//	                  |             |   API   |
//	                  |             |_________|
//	                  V                  |
//	             (confirmed)       (confirmed or not)
//
// The database is synced by Update, which should be called periodically (or
// left to the client's own background updater, started by New); Lookup
// never performs an update itself.
package safebrowsing4

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sb4client/safebrowsing4/internal/apiclient"
	"github.com/sb4client/safebrowsing4/internal/lookup"
	"github.com/sb4client/safebrowsing4/internal/metrics"
	"github.com/sb4client/safebrowsing4/internal/safeerrors"
	"github.com/sb4client/safebrowsing4/internal/store"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
	"github.com/sb4client/safebrowsing4/internal/update"
)

// DefaultUpdatePeriod is the default interval at which the background
// updater retries an update once the server's own minimumWaitDuration has
// elapsed.
const DefaultUpdatePeriod = 30 * time.Minute

// ErrClosed is returned by every [Client] method once [Client.Close] has
// been called.
var ErrClosed = safeerrors.ErrClosed

// Config configures a [Client].
type Config struct {
	// APIKey is the Safe Browsing v4 API key. Required.
	APIKey string

	// BaseURL overrides the service's base URL. Mainly useful for tests.
	BaseURL string

	// DatabasePath, if non-empty, makes the client's local database durable
	// across restarts by persisting it to this file. If empty, the database
	// lives in memory only.
	DatabasePath string

	// ClientID and ClientVersion identify this client implementation to the
	// service.
	ClientID      string
	ClientVersion string

	// Lists restricts the client to the given selectors (see
	// [threatlist.ParseSelectors]). If empty, every list in the service's
	// catalog is maintained.
	Lists []threatlist.Selector

	// RequestTimeout bounds every HTTP request. Defaults to
	// [apiclient.DefaultTimeout].
	RequestTimeout time.Duration

	// UpdatePeriod bounds how often the background updater may retry an
	// update beyond what the server's minimumWaitDuration already requires.
	// Defaults to [DefaultUpdatePeriod].
	UpdatePeriod time.Duration

	// Logger receives diagnostic messages from the update engine. Defaults
	// to a discarding logger.
	Logger *slog.Logger

	// Metrics, if non-nil, receives observability events from both engines.
	Metrics interface {
		metrics.Updates
		metrics.Lookups
	}

	// DisableBackgroundUpdater prevents New from starting the background
	// updater goroutine; the caller is then responsible for calling Update
	// itself.
	DisableBackgroundUpdater bool
}

// Stats records counters describing a [Client]'s operation since it was
// created.
type Stats struct {
	LookupsTotal       int64
	LookupMatchesTotal int64
	UpdatesTotal       int64
	UpdateErrorsTotal  int64
}

// Client is a Safe Browsing v4 client: it owns a local prefix database, an
// Update Engine that keeps it in sync, and a Lookup Engine that answers
// queries against it.
//
// A Client is safe for concurrent use: Update and Lookup calls are
// serialized against each other with a single mutex, per the library's
// single-threaded-core contract.
type Client struct {
	mu      sync.Mutex
	storage store.Storage
	api     *apiclient.Client
	updater *update.Engine
	lookup  *lookup.Engine

	clientID      string
	clientVersion string
	updatePeriod  time.Duration
	lists         []threatlist.Selector

	catalogMu  sync.Mutex
	catalog    []threatlist.ID
	catalogSet bool

	stats Stats

	closed uint32
	done   chan struct{}
	wg     sync.WaitGroup
}

// New returns a new [Client] and, unless conf.DisableBackgroundUpdater is
// set, starts its background updater goroutine. The returned Client must be
// closed with [Client.Close] when no longer needed.
func New(conf Config) (c *Client, err error) {
	api, err := apiclient.New(apiclient.Config{
		APIKey:        conf.APIKey,
		BaseURL:       conf.BaseURL,
		Timeout:       conf.RequestTimeout,
		ClientID:      conf.ClientID,
		ClientVersion: conf.ClientVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("safebrowsing4: %w", err)
	}

	storage, err := newStorage(conf.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("safebrowsing4: opening database: %w", err)
	}

	var updatesMetrics metrics.Updates = metrics.Empty{}
	var lookupsMetrics metrics.Lookups = metrics.Empty{}
	if conf.Metrics != nil {
		updatesMetrics = conf.Metrics
		lookupsMetrics = conf.Metrics
	}

	updatePeriod := conf.UpdatePeriod
	if updatePeriod <= 0 {
		updatePeriod = DefaultUpdatePeriod
	}

	c = &Client{
		storage:       storage,
		api:           api,
		clientID:      conf.ClientID,
		clientVersion: conf.ClientVersion,
		updatePeriod:  updatePeriod,
		lists:         conf.Lists,
		done:          make(chan struct{}),
	}

	c.updater = update.New(update.Config{
		API:           api,
		Storage:       storage,
		Logger:        conf.Logger,
		Metrics:       updatesMetrics,
		ClientID:      conf.ClientID,
		ClientVersion: conf.ClientVersion,
	})
	c.lookup = lookup.New(lookup.Config{
		API:           api,
		Storage:       storage,
		Metrics:       lookupsMetrics,
		ClientID:      conf.ClientID,
		ClientVersion: conf.ClientVersion,
	})

	if !conf.DisableBackgroundUpdater {
		c.wg.Add(1)
		go c.runUpdater()
	}

	return c, nil
}

// newStorage opens the database at path, or a non-durable in-memory store
// if path is empty.
func newStorage(path string) (s store.Storage, err error) {
	if path == "" {
		return store.NewMemory(), nil
	}

	f, err := store.NewFile(path)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// GetLists fetches the service's current threat-list catalog.
func (c *Client) GetLists(ctx context.Context) (ids []threatlist.ID, err error) {
	if atomic.LoadUint32(&c.closed) != 0 {
		return nil, safeerrors.ErrClosed
	}

	return c.api.GetThreatLists(ctx)
}

// Update runs one update cycle against the configured (or every) threat
// list, returning the resulting [update.Status]. force bypasses the
// server's minimumWaitDuration schedule.
func (c *Client) Update(ctx context.Context, force bool) (st update.Status, err error) {
	if atomic.LoadUint32(&c.closed) != 0 {
		return update.InternalError, safeerrors.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err = c.updater.Update(ctx, c.lists, force)

	atomic.AddInt64(&c.stats.UpdatesTotal, 1)
	if err != nil || st == update.ServerError || st == update.InternalError {
		atomic.AddInt64(&c.stats.UpdateErrorsTotal, 1)
	}

	return st, err
}

// Lookup checks rawURL against the local database, confirming any
// candidate match against the service as needed, and returns the matches
// found.
func (c *Client) Lookup(ctx context.Context, rawURL string) (matches []lookup.Match, err error) {
	if atomic.LoadUint32(&c.closed) != 0 {
		return nil, safeerrors.ErrClosed
	}

	lists, err := c.expandLists(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err = c.lookup.Lookup(ctx, rawURL, lists)

	atomic.AddInt64(&c.stats.LookupsTotal, 1)
	atomic.AddInt64(&c.stats.LookupMatchesTotal, int64(len(matches)))

	return matches, err
}

// expandLists resolves the client's configured selectors against the
// service's catalog, fetching and caching the catalog on first use. The
// catalog rarely changes, so it is fetched at most once per process
// lifetime rather than once per Lookup call.
func (c *Client) expandLists(ctx context.Context) (lists []threatlist.ID, err error) {
	c.catalogMu.Lock()
	defer c.catalogMu.Unlock()

	if !c.catalogSet {
		catalog, catErr := c.api.GetThreatLists(ctx)
		if catErr != nil {
			return nil, catErr
		}

		c.catalog = catalog
		c.catalogSet = true
	}

	return threatlist.Expand(c.lists, c.catalog), nil
}

// Status returns a snapshot of the client's cumulative counters.
func (c *Client) Status() (stats Stats) {
	return Stats{
		LookupsTotal:       atomic.LoadInt64(&c.stats.LookupsTotal),
		LookupMatchesTotal: atomic.LoadInt64(&c.stats.LookupMatchesTotal),
		UpdatesTotal:       atomic.LoadInt64(&c.stats.UpdatesTotal),
		UpdateErrorsTotal:  atomic.LoadInt64(&c.stats.UpdateErrorsTotal),
	}
}

// runUpdater is the background updater loop started by New. It calls Update
// once immediately and then again whenever the storage's own schedule says
// it's due, at most every c.updatePeriod.
func (c *Client) runUpdater() {
	defer c.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), apiclient.DefaultTimeout)
		_, _ = c.Update(ctx, false)
		cancel()

		select {
		case <-time.After(c.updatePeriod):
		case <-c.done:
			return
		}
	}
}

// Close stops the background updater, if running, and releases resources.
// It is safe to call Close more than once.
func (c *Client) Close() error {
	if atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		close(c.done)
		c.wg.Wait()
	}

	return nil
}

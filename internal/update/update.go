// Package update implements the Update Engine: building list-update
// requests, applying additions and removals to the local store, verifying
// checksums, and scheduling the next update with exponential backoff on
// error.
package update

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"

	"github.com/sb4client/safebrowsing4/internal/apiclient"
	"github.com/sb4client/safebrowsing4/internal/metrics"
	"github.com/sb4client/safebrowsing4/internal/safeerrors"
	"github.com/sb4client/safebrowsing4/internal/store"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

// Status is the outcome of one [Engine.Update] call.
type Status int

// Status values, matching the numeric codes of the external library
// surface.
const (
	DatabaseReset Status = -6
	InternalError Status = -3
	ServerError   Status = -2
	NoUpdate      Status = -1
	NoData        Status = 0
	Successful    Status = 1
)

// String implements the fmt.Stringer interface for Status.
func (s Status) String() string {
	switch s {
	case DatabaseReset:
		return "DatabaseReset"
	case InternalError:
		return "InternalError"
	case ServerError:
		return "ServerError"
	case NoUpdate:
		return "NoUpdate"
	case NoData:
		return "NoData"
	case Successful:
		return "Successful"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// API is the subset of [apiclient.Client] the engine depends on, narrowed
// for testability.
type API interface {
	GetThreatLists(ctx context.Context) ([]threatlist.ID, error)
	FetchUpdates(
		ctx context.Context,
		clientID, clientVersion string,
		reqs []apiclient.ListUpdateRequest,
	) (apiclient.FetchUpdatesResult, error)
}

// Engine runs the update algorithm against a [store.Storage] and an [API].
type Engine struct {
	api           API
	storage       store.Storage
	logger        *slog.Logger
	metrics       metrics.Updates
	clientID      string
	clientVersion string
	now           func() time.Time
	randSource    *rand.Rand

	catalog    []threatlist.ID
	catalogSet bool
}

// Config configures an [Engine].
type Config struct {
	API           API
	Storage       store.Storage
	Logger        *slog.Logger
	Metrics       metrics.Updates
	ClientID      string
	ClientVersion string
}

// New returns a new [Engine]. conf.API and conf.Storage must not be nil.
func New(conf Config) (e *Engine) {
	logger := conf.Logger
	if logger == nil {
		logger = slogutil.New(&slogutil.Config{Output: io.Discard})
	}

	return &Engine{
		api:           conf.API,
		storage:       conf.Storage,
		logger:        logger,
		metrics:       conf.Metrics,
		clientID:      conf.ClientID,
		clientVersion: conf.ClientVersion,
		now:           time.Now,
		randSource:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Update runs the update algorithm for selectors against the current
// storage and API. If selectors is empty, every list in the known-list
// catalog is updated.
func (e *Engine) Update(ctx context.Context, selectors []threatlist.Selector, force bool) (st Status, err error) {
	next, err := e.storage.NextUpdate()
	if err != nil {
		return InternalError, fmt.Errorf("%w: reading schedule: %s", safeerrors.ErrStorage, err)
	}

	if !force && next.After(e.now()) {
		return NoUpdate, nil
	}

	lists, err := e.expand(ctx, selectors)
	if err != nil {
		return InternalError, err
	}

	reqs := make([]apiclient.ListUpdateRequest, 0, len(lists))
	for _, list := range lists {
		state, stateErr := e.storage.GetState(list)
		if stateErr != nil {
			return InternalError, fmt.Errorf("%w: reading state for %s: %s", safeerrors.ErrStorage, list, stateErr)
		}

		reqs = append(reqs, apiclient.ListUpdateRequest{List: list, State: state})
	}

	result, err := e.api.FetchUpdates(ctx, e.clientID, e.clientVersion, reqs)
	if err != nil {
		return e.onTransportError(err)
	}

	st, applyErr := e.applyResult(result)
	if applyErr != nil && st != DatabaseReset {
		return InternalError, applyErr
	}

	now := e.now()
	nextUpdate := now.Add(result.MinimumWaitDuration)
	err = e.storage.Updated(now, nextUpdate)
	if err != nil {
		return InternalError, fmt.Errorf("%w: recording update: %s", safeerrors.ErrStorage, err)
	}

	if e.metrics != nil {
		e.metrics.ObserveUpdate(st.String())
	}

	return st, applyErr
}

// expand resolves selectors against the known-list catalog, fetching and
// caching the catalog on first use.
func (e *Engine) expand(ctx context.Context, selectors []threatlist.Selector) (lists []threatlist.ID, err error) {
	if !e.catalogSet {
		catalog, catErr := e.api.GetThreatLists(ctx)
		if catErr != nil {
			return nil, fmt.Errorf("%w: fetching catalog: %s", safeerrors.ErrTransport, catErr)
		}

		e.catalog = catalog
		e.catalogSet = true
	}

	return threatlist.Expand(selectors, e.catalog), nil
}

// onTransportError records a failed update attempt with the appropriate
// backoff and returns [ServerError].
func (e *Engine) onTransportError(cause error) (Status, error) {
	sched, err := e.storage.LastUpdate()
	if err != nil {
		return InternalError, fmt.Errorf("%w: reading schedule: %s", safeerrors.ErrStorage, err)
	}

	errs := sched.ConsecutiveErrors + 1
	wait := backoff(errs, e.randSource)

	now := e.now()
	err = e.storage.UpdateError(now, wait, errs)
	if err != nil {
		return InternalError, fmt.Errorf("%w: recording update error: %s", safeerrors.ErrStorage, err)
	}

	e.logger.Warn("update failed", "error", cause, "consecutive_errors", errs, "backoff", wait)

	if e.metrics != nil {
		e.metrics.ObserveUpdate(ServerError.String())
	}

	return ServerError, nil
}

// applyResult applies each list's additions/removals to storage, verifying
// checksums, and returns the overall status.
func (e *Engine) applyResult(result apiclient.FetchUpdatesResult) (st Status, err error) {
	anyAdditions := false
	anyReset := false

	for _, lr := range result.Lists {
		add := make([]string, 0)
		for _, a := range lr.Additions {
			add = append(add, a.Prefixes...)
		}
		if len(add) > 0 {
			anyAdditions = true
		}

		sorted, saveErr := e.storage.Save(lr.List, lr.NewClientState, add, lr.RemoveIndices, lr.FullUpdate)
		if saveErr != nil {
			return InternalError, fmt.Errorf("%w: saving list %s: %s", safeerrors.ErrStorage, lr.List, saveErr)
		}

		if e.metrics != nil {
			e.metrics.SetListPrefixCount(lr.List.String(), len(sorted))
		}

		if lr.ChecksumSHA256 == "" {
			continue
		}

		sum := sha256.Sum256([]byte(joinPrefixes(sorted)))
		if string(sum[:]) != lr.ChecksumSHA256 {
			e.logger.Warn("checksum mismatch, resetting list", "list", lr.List)

			resetErr := e.storage.Reset(lr.List)
			if resetErr != nil {
				return InternalError, fmt.Errorf(
					"%w: resetting list %s after checksum mismatch: %s",
					safeerrors.ErrStorage, lr.List, resetErr,
				)
			}

			anyReset = true
			err = fmt.Errorf("%w: list %s", safeerrors.ErrIntegrity, lr.List)
		}
	}

	if anyReset {
		return DatabaseReset, err
	}
	if anyAdditions {
		return Successful, nil
	}

	return NoData, nil
}

// joinPrefixes concatenates prefixes in order, with no separator, matching
// the server's checksum computation.
func joinPrefixes(prefixes []string) string {
	total := 0
	for _, p := range prefixes {
		total += len(p)
	}

	buf := make([]byte, 0, total)
	for _, p := range prefixes {
		buf = append(buf, p...)
	}

	return string(buf)
}

// backoffTable maps consecutive-error counts to [min, max] minute bounds.
// The n=1 case (60 seconds) is handled separately below.
var backoffTable = map[int][2]float64{
	2: {30, 60},
	3: {60, 120},
	4: {120, 240},
	5: {240, 480},
}

// backoff returns the wait duration for the nth consecutive update error,
// per the schedule: 60s for n=1, a randomized minute range for n=2..5, and
// a flat 480 minutes for n>=6.
func backoff(n int, r *rand.Rand) time.Duration {
	if n <= 1 {
		return 60 * time.Second
	}

	if n >= 6 {
		return 480 * time.Minute
	}

	bounds := backoffTable[n]
	minutes := bounds[0] + r.Float64()*(bounds[1]-bounds[0])

	return time.Duration(minutes * float64(time.Minute))
}

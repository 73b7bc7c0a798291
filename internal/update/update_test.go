package update_test

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/apiclient"
	"github.com/sb4client/safebrowsing4/internal/safeerrors"
	"github.com/sb4client/safebrowsing4/internal/store"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
	"github.com/sb4client/safebrowsing4/internal/update"
)

var malwareURL = threatlist.ID{ThreatType: "MALWARE", PlatformType: "ANY_PLATFORM", ThreatEntryType: "URL"}

// fakeAPI is a scriptable stand-in for [apiclient.Client].
type fakeAPI struct {
	catalog       []threatlist.ID
	catalogErr    error
	fetchResult   apiclient.FetchUpdatesResult
	fetchErr      error
	fetchCalls    int
}

func (f *fakeAPI) GetThreatLists(context.Context) ([]threatlist.ID, error) {
	return f.catalog, f.catalogErr
}

func (f *fakeAPI) FetchUpdates(
	context.Context,
	string,
	string,
	[]apiclient.ListUpdateRequest,
) (apiclient.FetchUpdatesResult, error) {
	f.fetchCalls++

	return f.fetchResult, f.fetchErr
}

func checksumOf(prefixes ...string) string {
	var buf []byte
	for _, p := range prefixes {
		buf = append(buf, p...)
	}

	sum := sha256.Sum256(buf)

	return string(sum[:])
}

func TestEngine_Update_FullUpdateSortsAndVerifies(t *testing.T) {
	api := &fakeAPI{
		catalog: []threatlist.ID{malwareURL},
		fetchResult: apiclient.FetchUpdatesResult{
			Lists: []apiclient.ListUpdateResult{{
				List:           malwareURL,
				FullUpdate:     true,
				Additions:      []apiclient.Addition{{PrefixSize: 2, Prefixes: []string{"h1", "h3", "h2"}}},
				NewClientState: "state-1",
				ChecksumSHA256: checksumOf("h1", "h2", "h3"),
			}},
			MinimumWaitDuration: 30 * time.Minute,
		},
	}

	s := store.NewMemory()
	e := update.New(update.Config{API: api, Storage: s})

	st, err := e.Update(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, update.Successful, st)

	matches, err := s.GetPrefixes(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	state, err := s.GetState(malwareURL)
	require.NoError(t, err)
	assert.Equal(t, "state-1", state)
}

func TestEngine_Update_PartialUpdateRemovesByIndex(t *testing.T) {
	s := store.NewMemory()
	_, err := s.Save(malwareURL, "state-0", []string{"h1", "h2", "h3"}, nil, true)
	require.NoError(t, err)

	api := &fakeAPI{
		catalog: []threatlist.ID{malwareURL},
		fetchResult: apiclient.FetchUpdatesResult{
			Lists: []apiclient.ListUpdateResult{{
				List:           malwareURL,
				FullUpdate:     false,
				RemoveIndices:  []int{0},
				NewClientState: "state-1",
				ChecksumSHA256: checksumOf("h2", "h3"),
			}},
		},
	}

	e := update.New(update.Config{API: api, Storage: s})

	st, err := e.Update(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, update.NoData, st)

	sorted, err := s.Save(malwareURL, "state-1", nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "h3"}, sorted)
}

func TestEngine_Update_ChecksumMismatchResets(t *testing.T) {
	s := store.NewMemory()
	_, err := s.Save(malwareURL, "state-0", []string{"h1", "h2", "h3"}, nil, true)
	require.NoError(t, err)

	api := &fakeAPI{
		catalog: []threatlist.ID{malwareURL},
		fetchResult: apiclient.FetchUpdatesResult{
			Lists: []apiclient.ListUpdateResult{{
				List:           malwareURL,
				FullUpdate:     false,
				RemoveIndices:  []int{0},
				NewClientState: "state-1",
				ChecksumSHA256: "wrong-checksum-bytes",
			}},
		},
	}

	e := update.New(update.Config{API: api, Storage: s})

	st, err := e.Update(context.Background(), nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, safeerrors.ErrIntegrity)
	assert.Equal(t, update.DatabaseReset, st)

	state, err := s.GetState(malwareURL)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestEngine_Update_NoUpdateBeforeSchedule(t *testing.T) {
	s := store.NewMemory()
	err := s.Updated(time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	api := &fakeAPI{catalog: []threatlist.ID{malwareURL}}
	e := update.New(update.Config{API: api, Storage: s})

	st, err := e.Update(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, update.NoUpdate, st)
	assert.Zero(t, api.fetchCalls)
}

func TestEngine_Update_ForceBypassesSchedule(t *testing.T) {
	s := store.NewMemory()
	err := s.Updated(time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	api := &fakeAPI{catalog: []threatlist.ID{malwareURL}}
	e := update.New(update.Config{API: api, Storage: s})

	_, err = e.Update(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, api.fetchCalls)
}

func TestEngine_Update_TransportErrorBacksOff(t *testing.T) {
	s := store.NewMemory()
	api := &fakeAPI{
		catalog:  []threatlist.ID{malwareURL},
		fetchErr: assertAnError{},
	}
	e := update.New(update.Config{API: api, Storage: s})

	st, err := e.Update(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, update.ServerError, st)

	st, err = e.Update(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, update.ServerError, st)

	sched, err := s.LastUpdate()
	require.NoError(t, err)
	assert.Equal(t, 2, sched.ConsecutiveErrors)

	next, err := s.NextUpdate()
	require.NoError(t, err)

	wait := next.Sub(sched.LastUpdate)
	assert.GreaterOrEqual(t, wait, 30*time.Minute)
	assert.LessOrEqual(t, wait, 60*time.Minute)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "simulated transport failure" }

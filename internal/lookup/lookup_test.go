package lookup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/apiclient"
	"github.com/sb4client/safebrowsing4/internal/hashutil"
	"github.com/sb4client/safebrowsing4/internal/lookup"
	"github.com/sb4client/safebrowsing4/internal/store"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

var malwareURL = threatlist.ID{ThreatType: "MALWARE", PlatformType: "ANY_PLATFORM", ThreatEntryType: "URL"}

// fakeAPI is a scriptable stand-in for [apiclient.Client].
type fakeAPI struct {
	matches []apiclient.Match
	err     error
	calls   int
}

func (f *fakeAPI) FindFullHashes(
	context.Context,
	string,
	string,
	apiclient.FindRequest,
) ([]apiclient.Match, error) {
	f.calls++

	return f.matches, f.err
}

func TestEngine_Lookup_InvalidURLReturnsEmpty(t *testing.T) {
	s := store.NewMemory()
	api := &fakeAPI{}
	e := lookup.New(lookup.Config{API: api, Storage: s})

	matches, err := e.Lookup(context.Background(), "ftp://example.com/", []threatlist.ID{malwareURL})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, api.calls)
}

func TestEngine_Lookup_NoPrefixMatchReturnsEmpty(t *testing.T) {
	s := store.NewMemory()
	api := &fakeAPI{}
	e := lookup.New(lookup.Config{API: api, Storage: s})

	matches, err := e.Lookup(context.Background(), "http://example.com/evil", []threatlist.ID{malwareURL})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, api.calls)
}

func TestEngine_Lookup_RemoteConfirmationPersistsAndFilters(t *testing.T) {
	s := store.NewMemory()

	full := hashutil.Sum("example.com/evil")
	prefix := full.Prefix(4)
	_, err := s.Save(malwareURL, "state-0", []string{prefix}, nil, true)
	require.NoError(t, err)

	unrelated := hashutil.Sum("other.com/thing")

	api := &fakeAPI{
		matches: []apiclient.Match{
			{
				Hash:          full.String(),
				List:          malwareURL,
				Metadata:      map[string][]byte{"severity": []byte("high")},
				CacheDuration: 300 * time.Second,
			},
			{
				// Shares the prefix but isn't one of the computed full
				// hashes: must be filtered out.
				Hash: unrelated.String(),
				List: malwareURL,
			},
		},
	}

	e := lookup.New(lookup.Config{API: api, Storage: s})

	matches, err := e.Lookup(context.Background(), "http://example.com/evil", []threatlist.ID{malwareURL})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, full, matches[0].Hash)
	assert.Equal(t, malwareURL, matches[0].List)
	assert.Equal(t, 1, api.calls)

	// A second lookup must hit the cache and not call the remote API again.
	matches, err = e.Lookup(context.Background(), "http://example.com/evil", []threatlist.ID{malwareURL})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, api.calls)
}

func TestEngine_Lookup_ExpiredCacheEntryIsIgnored(t *testing.T) {
	s := store.NewMemory()

	full := hashutil.Sum("example.com/evil")
	prefix := full.Prefix(4)
	_, err := s.Save(malwareURL, "state-0", []string{prefix}, nil, true)
	require.NoError(t, err)

	// An already-expired entry is never actually cached (ttl <= 0), so the
	// next lookup must fall through to the remote API.
	err = s.AddFullHashes([]store.FullHashEntry{{
		Hash:      full,
		List:      malwareURL,
		ExpiresAt: time.Now().Add(-time.Second),
	}}, time.Now())
	require.NoError(t, err)

	api := &fakeAPI{matches: []apiclient.Match{{Hash: full.String(), List: malwareURL, CacheDuration: time.Minute}}}
	e := lookup.New(lookup.Config{API: api, Storage: s})

	matches, err := e.Lookup(context.Background(), "http://example.com/evil", []threatlist.ID{malwareURL})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, api.calls)
}

func TestEngine_Lookup_TransportFailureReturnsEmpty(t *testing.T) {
	s := store.NewMemory()

	full := hashutil.Sum("example.com/evil")
	prefix := full.Prefix(4)
	_, err := s.Save(malwareURL, "state-0", []string{prefix}, nil, true)
	require.NoError(t, err)

	api := &fakeAPI{err: assertTransportErr{}}
	e := lookup.New(lookup.Config{API: api, Storage: s})

	matches, err := e.Lookup(context.Background(), "http://example.com/evil", []threatlist.ID{malwareURL})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

type assertTransportErr struct{}

func (assertTransportErr) Error() string { return "simulated transport failure" }

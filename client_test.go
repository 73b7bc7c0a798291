package safebrowsing4_test

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	safebrowsing4 "github.com/sb4client/safebrowsing4"
	"github.com/sb4client/safebrowsing4/internal/update"
)

// newTestServer stubs the three Safe Browsing v4 Update API endpoints: a
// catalog of one list, a full update seeding a single prefix for
// "example.com/evil", and a full-hash confirmation that always matches.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	full := sha256.Sum256([]byte("example.com/evil"))
	prefix := string(full[:4])

	mux := http.NewServeMux()

	mux.HandleFunc("/v4/threatLists", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"threatLists": []map[string]string{{
				"threatType":      "MALWARE",
				"platformType":    "ANY_PLATFORM",
				"threatEntryType": "URL",
			}},
		})
	})

	mux.HandleFunc("/v4/threatListUpdates:fetch", func(w http.ResponseWriter, r *http.Request) {
		sum := sha256.Sum256([]byte(prefix))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"listUpdateResponses": []map[string]any{{
				"threatType":      "MALWARE",
				"platformType":    "ANY_PLATFORM",
				"threatEntryType": "URL",
				"responseType":    "FULL_UPDATE",
				"additions": []map[string]any{{
					"rawHashes": map[string]any{
						"prefixSize": 4,
						"rawHashes":  []byte(prefix),
					},
				}},
				"newClientState": "state-1",
				"checksum":       map[string]any{"sha256": sum[:]},
			}},
		})
	})

	mux.HandleFunc("/v4/fullHashes:find", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{{
				"threatType":      "MALWARE",
				"platformType":    "ANY_PLATFORM",
				"threatEntryType": "URL",
				"threat":          map[string]any{"hash": full[:]},
				"cacheDuration":   "300.000s",
			}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestClient_UpdateThenLookup(t *testing.T) {
	srv := newTestServer(t)

	c, err := safebrowsing4.New(safebrowsing4.Config{
		APIKey:                   "test-key",
		BaseURL:                  srv.URL,
		DisableBackgroundUpdater: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	st, err := c.Update(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, update.Successful, st)

	matches, err := c.Lookup(context.Background(), "http://example.com/evil")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "MALWARE/ANY_PLATFORM/URL", matches[0].List.String())

	stats := c.Status()
	assert.Equal(t, int64(1), stats.UpdatesTotal)
	assert.Equal(t, int64(1), stats.LookupsTotal)
	assert.Equal(t, int64(1), stats.LookupMatchesTotal)
}

func TestClient_LookupWithoutPriorUpdateReturnsEmpty(t *testing.T) {
	srv := newTestServer(t)

	c, err := safebrowsing4.New(safebrowsing4.Config{
		APIKey:                   "test-key",
		BaseURL:                  srv.URL,
		DisableBackgroundUpdater: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	matches, err := c.Lookup(context.Background(), "http://example.com/evil")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestClient_CloseRejectsFurtherCalls(t *testing.T) {
	srv := newTestServer(t)

	c, err := safebrowsing4.New(safebrowsing4.Config{
		APIKey:                   "test-key",
		BaseURL:                  srv.URL,
		DisableBackgroundUpdater: true,
	})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Lookup(context.Background(), "http://example.com/evil")
	assert.ErrorIs(t, err, safebrowsing4.ErrClosed)
}

func TestClient_BackgroundUpdaterRunsOnStart(t *testing.T) {
	srv := newTestServer(t)

	c, err := safebrowsing4.New(safebrowsing4.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool {
		return c.Status().UpdatesTotal >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

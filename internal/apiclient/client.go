package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/sb4client/safebrowsing4/internal/safeerrors"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

// DefaultBaseURL is the default base URL of the Safe Browsing v4 service.
const DefaultBaseURL = "https://safebrowsing.googleapis.com"

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 60 * time.Second

// userAgent is sent on every request, identifying this library to the
// service the way agdhttp.UserAgent identifies AdGuardDNS.
const userAgent = "sb4client/1.0"

// Client is a thin, stateless transport for the three Safe Browsing v4
// Update API endpoints. It holds no update/lookup state of its own.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// Config configures a [Client].
type Config struct {
	// APIKey is the API key sent as the "key" query parameter on every
	// request. Required.
	APIKey string

	// BaseURL is the scheme+host the client talks to. Defaults to
	// [DefaultBaseURL] when empty.
	BaseURL string

	// Timeout bounds every request. Defaults to [DefaultTimeout] when zero.
	Timeout time.Duration

	// ClientID and ClientVersion identify this client implementation. New
	// does not read them: FetchUpdates and FindFullHashes send the identity
	// passed to each call, and no default is applied when it is empty.
	ClientID      string
	ClientVersion string
}

// New returns a new [Client]. conf.APIKey must not be empty.
func New(conf Config) (c *Client, err error) {
	if conf.APIKey == "" {
		return nil, fmt.Errorf("%w: apiclient: empty api key", safeerrors.ErrInvalidURL)
	}

	baseURL := conf.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  conf.APIKey,
	}, nil
}

// do performs one JSON request/response round trip against path, encoding
// reqBody (if non-nil) as the request body and decoding the response into
// respBody (if non-nil). Any non-2xx response or transport failure is
// wrapped in [safeerrors.ErrTransport]; a response body that fails to parse
// is wrapped in [safeerrors.ErrProtocol].
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	reqBody, respBody any,
) (err error) {
	u := c.baseURL + path
	if strings.Contains(u, "?") {
		u += "&key=" + url.QueryEscape(c.apiKey)
	} else {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}

	var body io.Reader
	if reqBody != nil {
		encoded, encErr := json.Marshal(reqBody)
		if encErr != nil {
			return fmt.Errorf("encoding request: %w", encErr)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%w: building request: %s", safeerrors.ErrTransport, err)
	}

	req.Header.Set("User-Agent", userAgent)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", safeerrors.ErrTransport, err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %s", safeerrors.ErrTransport, resp.Status)
	}

	if respBody == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(respBody)
	if err != nil {
		return fmt.Errorf("%w: decoding response: %s", safeerrors.ErrProtocol, err)
	}

	return nil
}

// GetThreatLists fetches the known-list catalog from GET /v4/threatLists.
func (c *Client) GetThreatLists(ctx context.Context) (ids []threatlist.ID, err error) {
	var resp threatListsResponse
	err = c.do(ctx, http.MethodGet, "/v4/threatLists", nil, &resp)
	if err != nil {
		return nil, err
	}

	ids = make([]threatlist.ID, 0, len(resp.ThreatLists))
	for _, d := range resp.ThreatLists {
		ids = append(ids, threatlist.ID{
			ThreatType:      d.ThreatType,
			PlatformType:    d.PlatformType,
			ThreatEntryType: d.ThreatEntryType,
		})
	}

	return ids, nil
}

// ListUpdateRequest is one entry of a FetchUpdates call: the list being
// updated and its current client state.
type ListUpdateRequest struct {
	List  threatlist.ID
	State string
}

// Addition is a decoded batch of fixed-width hash prefixes to merge into a
// list's table.
type Addition struct {
	PrefixSize int
	Prefixes   []string
}

// ListUpdateResult is one list's worth of a FetchUpdates response, decoded
// into domain types.
type ListUpdateResult struct {
	List           threatlist.ID
	FullUpdate     bool
	Additions      []Addition
	RemoveIndices  []int
	NewClientState string
	ChecksumSHA256 string
}

// FetchUpdatesResult is the decoded result of a FetchUpdates call.
type FetchUpdatesResult struct {
	Lists               []ListUpdateResult
	MinimumWaitDuration time.Duration
}

// FetchUpdates requests an incremental update for each of reqs via POST
// /v4/threatListUpdates:fetch.
func (c *Client) FetchUpdates(
	ctx context.Context,
	clientID, clientVersion string,
	reqs []ListUpdateRequest,
) (result FetchUpdatesResult, err error) {
	wireReqs := make([]listUpdateRequest, 0, len(reqs))
	for _, r := range reqs {
		wireReqs = append(wireReqs, listUpdateRequest{
			ThreatType:      r.List.ThreatType,
			PlatformType:    r.List.PlatformType,
			ThreatEntryType: r.List.ThreatEntryType,
			State:           r.State,
			Constraints:     constraints{SupportedCompressions: []string{"RAW"}},
		})
	}

	body := fetchRequest{
		Client:             clientInfo{ClientID: clientID, ClientVersion: clientVersion},
		ListUpdateRequests: wireReqs,
	}

	var resp fetchResponse
	err = c.do(ctx, http.MethodPost, "/v4/threatListUpdates:fetch", body, &resp)
	if err != nil {
		return FetchUpdatesResult{}, err
	}

	wait, err := parseDurationSeconds(resp.MinimumWaitDuration)
	if err != nil {
		return FetchUpdatesResult{}, fmt.Errorf("%w: minimumWaitDuration: %s", safeerrors.ErrProtocol, err)
	}

	result.MinimumWaitDuration = wait
	result.Lists = make([]ListUpdateResult, 0, len(resp.ListUpdateResponses))

	for _, lu := range resp.ListUpdateResponses {
		lr := ListUpdateResult{
			List: threatlist.ID{
				ThreatType:      lu.ThreatType,
				PlatformType:    lu.PlatformType,
				ThreatEntryType: lu.ThreatEntryType,
			},
			FullUpdate:     lu.ResponseType == "FULL_UPDATE",
			NewClientState: lu.NewClientState,
			ChecksumSHA256: string(lu.Checksum.SHA256),
		}

		for _, add := range lu.Additions {
			if add.RawHashes == nil {
				continue
			}

			chunks, chunkErr := splitFixedWidth(add.RawHashes.RawHashes, add.RawHashes.PrefixSize)
			if chunkErr != nil {
				return FetchUpdatesResult{}, fmt.Errorf("%w: %s", safeerrors.ErrProtocol, chunkErr)
			}

			lr.Additions = append(lr.Additions, Addition{
				PrefixSize: add.RawHashes.PrefixSize,
				Prefixes:   chunks,
			})
		}

		for _, rem := range lu.Removals {
			if rem.RawIndices == nil {
				continue
			}

			lr.RemoveIndices = append(lr.RemoveIndices, rem.RawIndices.Indices...)
		}

		result.Lists = append(result.Lists, lr)
	}

	return result, nil
}

// splitFixedWidth splits raw into fixed-width chunks of size n, returning an
// error if raw's length isn't a multiple of n.
func splitFixedWidth(raw []byte, n int) (chunks []string, err error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid prefix size %d", n)
	}
	if len(raw)%n != 0 {
		return nil, fmt.Errorf("raw hash block of %d bytes is not a multiple of prefix size %d", len(raw), n)
	}

	for i := 0; i < len(raw); i += n {
		chunks = append(chunks, string(raw[i:i+n]))
	}

	return chunks, nil
}

// FindRequest holds the distinct hash prefixes to confirm, the lists they
// might belong to, and the client state of each of those lists.
type FindRequest struct {
	Prefixes []string
	Lists    []threatlist.ID
	States   map[threatlist.ID]string
}

// Match is one confirmed full hash returned by FindFullHashes.
type Match struct {
	Hash          string
	List          threatlist.ID
	Metadata      map[string][]byte
	CacheDuration time.Duration
}

// FindFullHashes requests full-hash confirmation for req.Prefixes via POST
// /v4/fullHashes:find.
func (c *Client) FindFullHashes(
	ctx context.Context,
	clientID, clientVersion string,
	req FindRequest,
) (matches []Match, err error) {
	threatTypes, platformTypes, entryTypes := distinctFields(req.Lists)

	states := make([]string, 0, len(req.Lists))
	for _, l := range req.Lists {
		states = append(states, req.States[l])
	}

	entries := make([]threatEntry, 0, len(req.Prefixes))
	for _, p := range req.Prefixes {
		entries = append(entries, threatEntry{Hash: []byte(p)})
	}

	body := findRequest{
		Client:       clientInfo{ClientID: clientID, ClientVersion: clientVersion},
		ClientStates: states,
		ThreatInfo: threatInfo{
			ThreatTypes:      threatTypes,
			PlatformTypes:    platformTypes,
			ThreatEntryTypes: entryTypes,
			ThreatEntries:    entries,
		},
	}

	var resp findResponse
	err = c.do(ctx, http.MethodPost, "/v4/fullHashes:find", body, &resp)
	if err != nil {
		return nil, err
	}

	matches = make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		cacheDuration, durErr := parseDurationSeconds(m.CacheDuration)
		if durErr != nil {
			return nil, fmt.Errorf("%w: cacheDuration: %s", safeerrors.ErrProtocol, durErr)
		}

		metadata := map[string][]byte{}
		if m.ThreatEntryMetadata != nil {
			for _, e := range m.ThreatEntryMetadata.Entries {
				metadata[string(e.Key)] = e.Value
			}
		}

		matches = append(matches, Match{
			Hash: string(m.Threat.Hash),
			List: threatlist.ID{
				ThreatType:      m.ThreatType,
				PlatformType:    m.PlatformType,
				ThreatEntryType: m.ThreatEntryType,
			},
			Metadata:      metadata,
			CacheDuration: cacheDuration,
		})
	}

	return matches, nil
}

// distinctFields returns the distinct threatType, platformType, and
// threatEntryType values across lists, in first-seen order.
func distinctFields(lists []threatlist.ID) (threatTypes, platformTypes, entryTypes []string) {
	tt, pt, et := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}

	for _, l := range lists {
		if _, ok := tt[l.ThreatType]; !ok {
			tt[l.ThreatType] = struct{}{}
			threatTypes = append(threatTypes, l.ThreatType)
		}
		if _, ok := pt[l.PlatformType]; !ok {
			pt[l.PlatformType] = struct{}{}
			platformTypes = append(platformTypes, l.PlatformType)
		}
		if _, ok := et[l.ThreatEntryType]; !ok {
			et[l.ThreatEntryType] = struct{}{}
			entryTypes = append(entryTypes, l.ThreatEntryType)
		}
	}

	return threatTypes, platformTypes, entryTypes
}

// parseDurationSeconds parses a protocol duration string like "1234.5s"
// into a [time.Duration]. An empty string parses as zero.
func parseDurationSeconds(s string) (d time.Duration, err error) {
	if s == "" {
		return 0, nil
	}

	s = strings.TrimSuffix(s, "s")
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", s, err)
	}

	return time.Duration(secs * float64(time.Second)), nil
}

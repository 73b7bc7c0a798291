// Package apiclient implements the JSON wire protocol of the Safe Browsing
// v4 Update API: the threat-list catalog, the incremental list-update
// request/response shape, and the full-hash confirmation request/response
// shape. It is a thin, stateless transport layer; all decision logic about
// what to request and how to apply the response lives in the update and
// lookup engines.
package apiclient

// threatListsResponse is the body of a GET /v4/threatLists response.
type threatListsResponse struct {
	ThreatLists []threatListDescriptor `json:"threatLists"`
}

// threatListDescriptor names one catalog entry.
type threatListDescriptor struct {
	ThreatType     string `json:"threatType"`
	PlatformType   string `json:"platformType"`
	ThreatEntryType string `json:"threatEntryType"`
}

// fetchRequest is the body of a POST /v4/threatListUpdates:fetch request.
type fetchRequest struct {
	Client             clientInfo           `json:"client"`
	ListUpdateRequests []listUpdateRequest  `json:"listUpdateRequests"`
}

// clientInfo identifies this client implementation to the service.
type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

// listUpdateRequest asks for an incremental update of one threat list.
type listUpdateRequest struct {
	ThreatType      string      `json:"threatType"`
	PlatformType    string      `json:"platformType"`
	ThreatEntryType string      `json:"threatEntryType"`
	State           string      `json:"state,omitempty"`
	Constraints     constraints `json:"constraints"`
}

// constraints restricts the form of the update response; this client only
// ever requests the uncompressed RAW encoding.
type constraints struct {
	SupportedCompressions []string `json:"supportedCompressions"`
}

// fetchResponse is the body of a POST /v4/threatListUpdates:fetch response.
type fetchResponse struct {
	ListUpdateResponses []listUpdateResponse `json:"listUpdateResponses"`
	MinimumWaitDuration  string               `json:"minimumWaitDuration"`
}

// listUpdateResponse carries one threat list's worth of additions and
// removals.
type listUpdateResponse struct {
	ThreatType      string       `json:"threatType"`
	PlatformType    string       `json:"platformType"`
	ThreatEntryType string       `json:"threatEntryType"`
	ResponseType    string       `json:"responseType"`
	Additions       []threatEntrySet `json:"additions"`
	Removals        []threatEntrySet `json:"removals"`
	NewClientState  string       `json:"newClientState"`
	Checksum        checksum     `json:"checksum"`
}

// threatEntrySet is either an addition (rawHashes populated) or a removal
// (rawIndices populated).
type threatEntrySet struct {
	RawHashes  *rawHashes  `json:"rawHashes,omitempty"`
	RawIndices *rawIndices `json:"rawIndices,omitempty"`
}

// rawHashes is a run of fixed-width, concatenated, base64-encoded hash
// prefixes.
type rawHashes struct {
	PrefixSize int    `json:"prefixSize"`
	RawHashes  []byte `json:"rawHashes"`
}

// rawIndices is a list of indices into the pre-removal sorted prefix table.
type rawIndices struct {
	Indices []int `json:"indices"`
}

// checksum is the server's attestation of the post-update sorted prefix
// table for a list.
type checksum struct {
	SHA256 []byte `json:"sha256"`
}

// findRequest is the body of a POST /v4/fullHashes:find request.
type findRequest struct {
	Client       clientInfo   `json:"client"`
	ClientStates []string     `json:"clientStates"`
	ThreatInfo   threatInfo   `json:"threatInfo"`
}

// threatInfo describes the hash prefixes being confirmed and the lists they
// may belong to.
type threatInfo struct {
	ThreatTypes      []string       `json:"threatTypes"`
	PlatformTypes    []string       `json:"platformTypes"`
	ThreatEntryTypes []string       `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry  `json:"threatEntries"`
}

// threatEntry is one base64-encoded hash prefix being confirmed.
type threatEntry struct {
	Hash []byte `json:"hash"`
}

// findResponse is the body of a POST /v4/fullHashes:find response.
type findResponse struct {
	Matches             []threatMatch `json:"matches"`
	MinimumWaitDuration  string       `json:"minimumWaitDuration"`
	NegativeCacheDuration string      `json:"negativeCacheDuration"`
}

// threatMatch is one confirmed full hash and the metadata the server
// attaches to it.
type threatMatch struct {
	ThreatType          string               `json:"threatType"`
	PlatformType        string               `json:"platformType"`
	ThreatEntryType     string               `json:"threatEntryType"`
	Threat              threatEntry          `json:"threat"`
	CacheDuration       string               `json:"cacheDuration"`
	ThreatEntryMetadata *threatEntryMetadata `json:"threatEntryMetadata,omitempty"`
}

// threatEntryMetadata carries arbitrary server-supplied key/value pairs
// about a threat match.
type threatEntryMetadata struct {
	Entries []metadataEntry `json:"entries"`
}

// metadataEntry is one base64-encoded key/value pair.
type metadataEntry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

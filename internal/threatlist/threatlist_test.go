package threatlist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

var catalog = []threatlist.ID{
	{ThreatType: "MALWARE", PlatformType: "WINDOWS", ThreatEntryType: "URL"},
	{ThreatType: "MALWARE", PlatformType: "LINUX", ThreatEntryType: "URL"},
	{ThreatType: "SOCIAL_ENGINEERING", PlatformType: "ANY_PLATFORM", ThreatEntryType: "URL"},
	{ThreatType: "UNWANTED_SOFTWARE", PlatformType: "ANY_PLATFORM", ThreatEntryType: "URL"},
}

func TestID_String(t *testing.T) {
	id := threatlist.ID{ThreatType: "MALWARE", PlatformType: "WINDOWS", ThreatEntryType: "URL"}
	assert.Equal(t, "MALWARE/WINDOWS/URL", id.String())
}

func TestParseSelectors_All(t *testing.T) {
	sels, err := threatlist.ParseSelectors("ALL")
	require.NoError(t, err)

	got := threatlist.Expand(sels, catalog)
	assert.ElementsMatch(t, catalog, got)
}

func TestParseSelectors_Wildcard(t *testing.T) {
	sels, err := threatlist.ParseSelectors("MALWARE/*/*")
	require.NoError(t, err)

	got := threatlist.Expand(sels, catalog)
	assert.ElementsMatch(t, []threatlist.ID{catalog[0], catalog[1]}, got)
}

func TestParseSelectors_Exact(t *testing.T) {
	sels, err := threatlist.ParseSelectors("malware/windows/url")
	require.NoError(t, err)

	got := threatlist.Expand(sels, catalog)
	assert.ElementsMatch(t, []threatlist.ID{catalog[0]}, got)
}

func TestParseSelectors_MultipleCommaSeparated(t *testing.T) {
	sels, err := threatlist.ParseSelectors("MALWARE/WINDOWS/URL, SOCIAL_ENGINEERING/ANY_PLATFORM/URL")
	require.NoError(t, err)

	got := threatlist.Expand(sels, catalog)
	assert.ElementsMatch(t, []threatlist.ID{catalog[0], catalog[2]}, got)
}

func TestExpand_EmptySelectorsReturnsEverything(t *testing.T) {
	got := threatlist.Expand(nil, catalog)
	assert.ElementsMatch(t, catalog, got)
}

func TestExpand_Deduplicates(t *testing.T) {
	sels, err := threatlist.ParseSelectors("MALWARE/WINDOWS/URL,*/WINDOWS/*")
	require.NoError(t, err)

	got := threatlist.Expand(sels, catalog)
	assert.Len(t, got, 1)
	assert.Equal(t, catalog[0], got[0])
}

func TestParseSelector_Invalid(t *testing.T) {
	testCases := []string{
		"MALWARE/WINDOWS",
		"MALWARE//URL",
		"MALWARE/WINDOWS/URL/EXTRA",
	}

	for _, in := range testCases {
		t.Run(in, func(t *testing.T) {
			_, err := threatlist.ParseSelector(in)
			assert.Error(t, err)
		})
	}
}

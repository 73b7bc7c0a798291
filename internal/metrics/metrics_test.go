package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb4client/safebrowsing4/internal/metrics"
)

func TestNewPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.ObserveUpdate("Successful")
		m.SetListPrefixCount("MALWARE/ANY_PLATFORM/URL", 42)
		m.ObserveCacheLookup(true)
		m.ObserveCacheLookup(false)
		m.ObserveFullHashRequest()
	})
}

func TestEmpty(t *testing.T) {
	var m metrics.Empty

	assert.NotPanics(t, func() {
		m.ObserveUpdate("NoData")
		m.SetListPrefixCount("x", 0)
		m.ObserveCacheLookup(true)
		m.ObserveFullHashRequest()
	})
}

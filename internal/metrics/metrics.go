// Package metrics defines the observability interfaces consumed by the
// update and lookup engines, and a Prometheus-based implementation of them,
// the way AdGuardDNS's internal/metrics package backs internal/filter's
// metrics interfaces with concrete collectors.
package metrics

// Updates is the interface for observing the outcome of update engine runs.
type Updates interface {
	// ObserveUpdate records that an update finished with the given status
	// string (e.g. "Successful", "ServerError").
	ObserveUpdate(status string)

	// SetListPrefixCount records the current size of a list's prefix table.
	SetListPrefixCount(list string, count int)
}

// Lookups is the interface for observing lookup engine cache behavior.
type Lookups interface {
	// ObserveCacheLookup records a full-hash cache lookup, hit or miss.
	ObserveCacheLookup(hit bool)

	// ObserveFullHashRequest records that a full-hash request was made to
	// the remote service.
	ObserveFullHashRequest()
}

// Empty implements both [Updates] and [Lookups] and does nothing; it is the
// default when no metrics sink is configured.
type Empty struct{}

// type check
var (
	_ Updates = Empty{}
	_ Lookups = Empty{}
)

// ObserveUpdate implements the [Updates] interface for Empty.
func (Empty) ObserveUpdate(string) {}

// SetListPrefixCount implements the [Updates] interface for Empty.
func (Empty) SetListPrefixCount(string, int) {}

// ObserveCacheLookup implements the [Lookups] interface for Empty.
func (Empty) ObserveCacheLookup(bool) {}

// ObserveFullHashRequest implements the [Lookups] interface for Empty.
func (Empty) ObserveFullHashRequest() {}

package bus

import "time"

// Event kinds published by the cache and the send coordinator.
const (
	QueryUpdated         = "query.updated"
	QueryInvalidated     = "query.invalidated"
	QueryFetchFailed     = "query.fetch_failed"
	MutationStateChanged = "mutation.state_changed"
)

// Event is a notification published on the bus.
// Key names the cache entry the event is about, if any.
type Event struct {
	Kind      string
	Key       string
	Timestamp time.Time
	Payload   any
}

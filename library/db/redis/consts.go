package redis

const (
	keyPrefix = "docspace/"

	// KeyPrefixSyncReport is the key prefix for the last reconciler sweep report
	KeyPrefixSyncReport = keyPrefix + "sync/report"
	// DefaultEventsChannel is the pub/sub channel job lifecycle events are published to
	DefaultEventsChannel = keyPrefix + "jobs/events"
)

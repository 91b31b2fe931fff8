package cdc

import (
	"time"

	"github.com/jackc/pglogrepl"
)

// Operation tags the kind of a decoded change event.
type Operation string

const (
	OpBegin    Operation = "BEGIN"
	OpCommit   Operation = "COMMIT"
	OpRelation Operation = "RELATION"
	OpInsert   Operation = "INSERT"
	OpUpdate   Operation = "UPDATE"
	OpDelete   Operation = "DELETE"

	// OpHeartbeat is synthesized into subscription streams on an interval;
	// it never comes off the wire and carries no row data.
	OpHeartbeat Operation = "HEARTBEAT"
)

// Event is one decoded logical-replication message. New holds the row for
// INSERT/UPDATE; Old holds the key or previous row for UPDATE/DELETE when the
// server sent it. Unchanged TOAST columns are omitted from the maps.
type Event struct {
	Operation Operation
	Schema    string
	Table     string
	LSN       pglogrepl.LSN
	Timestamp time.Time
	New       map[string]any
	Old       map[string]any
	// Err marks a terminal stream error delivered to subscribers that are
	// being dropped; no further events follow on that subscription.
	Err error
}

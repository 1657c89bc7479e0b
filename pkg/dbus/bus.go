// Package dbus is the message-bus client: it maps the four logical
// namespaces (config, application, state, counters) that the real daemon
// keeps on separate Redis DB indices onto a small interface the Orch
// framework consumes, plus a keyspace-notification stream that wakes
// Consumers when a watched table changes.
package dbus

import "context"

// FieldValue is a single table-row field map, keyed by column name.
// A row with no fields still exists on the bus as an empty FieldValue —
// callers distinguish "row absent" (nil, false) from "row present, no
// fields" (FieldValue{}, true).
type FieldValue map[string]string

// Op identifies whether a notification is a set or a delete of a row.
type Op int

const (
	OpSet Op = iota
	OpDel
)

// Notification is a single table-row change observed on the bus.
type Notification struct {
	Table string
	Key   string
	Op    Op
	Fields FieldValue
}

// Bus is the message-bus surface every Orch's Consumer depends on. It is
// satisfied by RedisBus in production and by the in-memory FakeBus in
// tests; orch code never imports go-redis directly.
type Bus interface {
	// Get reads one table row. ok is false if the row does not exist.
	Get(ctx context.Context, table, key string) (fields FieldValue, ok bool, err error)

	// Set writes (or overwrites) a table row. An empty fields map still
	// creates the row, mirroring the bus's NULL-field sentinel convention
	// for keys that carry no attributes of their own.
	Set(ctx context.Context, table, key string, fields FieldValue) error

	// Del removes a table row. Deleting an absent row is not an error.
	Del(ctx context.Context, table, key string) error

	// Keys lists every key currently present in a table.
	Keys(ctx context.Context, table string) ([]string, error)

	// GetAll reads every row of a table at once.
	GetAll(ctx context.Context, table string) (map[string]FieldValue, error)

	// Subscribe returns a channel of Notifications for the given tables.
	// The channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, tables ...string) (<-chan Notification, error)

	// Close releases any underlying connection.
	Close() error
}

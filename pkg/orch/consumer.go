// Package orch is the dispatch and dependency framework every component
// Orch builds on: a table Consumer with sequence-ordered dedup, an
// Executor that drains Orches by priority with deferred retry, a
// synchronous Observer/Subject notification bus, and a generic Bulker for
// batched SAI calls.
package orch

import (
	"sort"
	"sync"

	"github.com/lumenswitch/orchagent/pkg/dbus"
)

// Op mirrors dbus.Op at the Consumer's granularity: a Row is either a SET
// (create-or-update) or a DEL.
type Op = dbus.Op

const (
	OpSet = dbus.OpSet
	OpDel = dbus.OpDel
)

// Row is one pending table entry, annotated with the sequence number of the
// write that produced it.
type Row struct {
	Key    string
	Op     Op
	Fields dbus.FieldValue
	Seq    uint64
}

// Consumer accumulates inbound rows for one (Orch, table) pair. Repeated
// writes for the same key collapse to the latest write: every inbound
// write is stamped with a new, strictly increasing sequence number, and the
// stamped Row simply replaces whatever was pending for that key — map
// overwrite order is irrelevant because the sequence number, not insertion
// order, is what downstream code trusts.
//
// This also satisfies the "SET after DEL must collapse to a single
// effective SET" requirement without a special "erase pending DEL" branch:
// since the SET's sequence number is by construction greater than the
// DEL's, it simply replaces the pending DEL like any other later write. A
// DEL arriving after a SET replaces the SET the same way, collapsing to DEL.
type Consumer struct {
	mu      sync.Mutex
	Table   string
	pending map[string]Row
	nextSeq uint64
}

// NewConsumer returns an empty Consumer for the given table name.
func NewConsumer(table string) *Consumer {
	return &Consumer{Table: table, pending: make(map[string]Row)}
}

// Push records an inbound row, stamping it with the next sequence number.
func (c *Consumer) Push(key string, op Op, fields dbus.FieldValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	c.pending[key] = Row{Key: key, Op: op, Fields: fields, Seq: c.nextSeq}
}

// Batch returns every pending row ordered by sequence number — the
// insertion order doTask must process rows in, per row collapse rules
// above.
func (c *Consumer) Batch() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]Row, 0, len(c.pending))
	for _, r := range c.pending {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return rows
}

// Ack removes a row from the pending batch if, and only if, its sequence
// number still matches what doTask observed — a newer write that arrived
// mid-processing must survive the ack, not be silently dropped.
func (c *Consumer) Ack(key string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.pending[key]; ok && r.Seq == seq {
		delete(c.pending, key)
	}
}

// Len reports the number of rows still awaiting processing.
func (c *Consumer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

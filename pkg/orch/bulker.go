package orch

import "github.com/lumenswitch/orchagent/pkg/sai"

// BulkOp identifies what kind of SAI call a buffered bulker entry
// represents.
type BulkOp int

const (
	BulkCreate BulkOp = iota
	BulkSet
	BulkRemove
)

// call is one pending SAI call, parameterized over the object key type K
// and the attribute/value payload type V.
type call[K comparable, V any] struct {
	Op    BulkOp
	Value V
}

// Bulker buffers pending SAI calls keyed by object key, flushed at the end
// of the current event-loop iteration via Flush. Flush takes the apply
// function so Bulker stays independent of any specific sai.*API — each
// Orch supplies the create/set/remove calls for its own object kind.
type Bulker[K comparable, V any] struct {
	pending map[K]call[K, V]
	order   []K
}

// NewBulker returns an empty Bulker.
func NewBulker[K comparable, V any]() *Bulker[K, V] {
	return &Bulker[K, V]{pending: make(map[K]call[K, V])}
}

// Create, Set and Remove buffer a call, replacing any earlier buffered call
// for the same key still pending this flush — only one op per key survives
// to Flush, matching the semantics of a Consumer row collapse.
func (b *Bulker[K, V]) Create(key K, value V) {
	b.push(key, call[K, V]{Op: BulkCreate, Value: value})
}

func (b *Bulker[K, V]) Set(key K, value V) {
	b.push(key, call[K, V]{Op: BulkSet, Value: value})
}

func (b *Bulker[K, V]) Remove(key K, value V) {
	b.push(key, call[K, V]{Op: BulkRemove, Value: value})
}

func (b *Bulker[K, V]) push(key K, c call[K, V]) {
	if _, exists := b.pending[key]; !exists {
		b.order = append(b.order, key)
	}
	b.pending[key] = c
}

// Len reports the number of buffered calls.
func (b *Bulker[K, V]) Len() int {
	return len(b.pending)
}

// Flush applies every buffered call via apply, in insertion order, and
// returns a per-key status map the caller consults to retry/swallow/fatal
// per the {success, item-already-exists, item-not-found, transient-retry,
// fatal} taxonomy. The bulker is emptied regardless of outcome — a failed
// call is the caller's responsibility to re-push next pass, not the
// bulker's to retain.
func (b *Bulker[K, V]) Flush(apply func(key K, op BulkOp, value V) sai.Status) map[K]sai.Status {
	results := make(map[K]sai.Status, len(b.order))
	for _, key := range b.order {
		c := b.pending[key]
		results[key] = apply(key, c.Op, c.Value)
	}
	b.pending = make(map[K]call[K, V])
	b.order = nil
	return results
}

package dbus

import (
	"context"
	"sync"
)

// FakeBus is an in-memory Bus used by Orch tests in place of a real Redis
// connection, the same role the teacher's shadow ConfigDB plays for device
// tests.
type FakeBus struct {
	mu     sync.Mutex
	tables map[string]map[string]FieldValue
	subs   []*fakeSub
}

type fakeSub struct {
	tables map[string]bool
	ch     chan Notification
}

// NewFakeBus returns an empty bus ready for Set/Get/Subscribe calls.
func NewFakeBus() *FakeBus {
	return &FakeBus{tables: make(map[string]map[string]FieldValue)}
}

func (b *FakeBus) Get(_ context.Context, table, key string) (FieldValue, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.tables[table]
	if !ok {
		return nil, false, nil
	}
	fields, ok := rows[key]
	if !ok {
		return nil, false, nil
	}
	return cloneFields(fields), true, nil
}

func (b *FakeBus) Set(_ context.Context, table, key string, fields FieldValue) error {
	b.mu.Lock()
	if b.tables[table] == nil {
		b.tables[table] = make(map[string]FieldValue)
	}
	stored := cloneFields(fields)
	if stored == nil {
		stored = FieldValue{}
	}
	b.tables[table][key] = stored
	subs := b.snapshotSubs()
	b.mu.Unlock()

	b.notify(subs, Notification{Table: table, Key: key, Op: OpSet, Fields: stored})
	return nil
}

func (b *FakeBus) Del(_ context.Context, table, key string) error {
	b.mu.Lock()
	if rows, ok := b.tables[table]; ok {
		delete(rows, key)
	}
	subs := b.snapshotSubs()
	b.mu.Unlock()

	b.notify(subs, Notification{Table: table, Key: key, Op: OpDel})
	return nil
}

func (b *FakeBus) Keys(_ context.Context, table string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.tables[table]
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *FakeBus) GetAll(_ context.Context, table string) (map[string]FieldValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]FieldValue, len(b.tables[table]))
	for k, v := range b.tables[table] {
		out[k] = cloneFields(v)
	}
	return out, nil
}

func (b *FakeBus) Subscribe(ctx context.Context, tables ...string) (<-chan Notification, error) {
	wanted := make(map[string]bool, len(tables))
	for _, t := range tables {
		wanted[t] = true
	}
	sub := &fakeSub{tables: wanted, ch: make(chan Notification, 64)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (b *FakeBus) Close() error {
	return nil
}

func (b *FakeBus) snapshotSubs() []*fakeSub {
	subs := make([]*fakeSub, len(b.subs))
	copy(subs, b.subs)
	return subs
}

func (b *FakeBus) notify(subs []*fakeSub, n Notification) {
	for _, s := range subs {
		if s.tables[n.Table] {
			s.ch <- n
		}
	}
}

func cloneFields(fields FieldValue) FieldValue {
	if fields == nil {
		return nil
	}
	out := make(FieldValue, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

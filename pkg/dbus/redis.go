package dbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/lumenswitch/orchagent/pkg/config"
)

// keySeparator returns the field separating table name from row key for a
// namespace. CONFIG_DB and STATE_DB use "|" (SONiC convention); APPL_DB
// uses ":" the way fpmsyncd and friends write ROUTE_TABLE entries.
func keySeparator(ns config.Namespace) string {
	if ns == config.ApplDB {
		return ":"
	}
	return "|"
}

// RedisBus is the production Bus implementation, backed by a single
// redis-server split across DB indices the way swss splits config_db,
// appl_db, state_db and counters_db.
type RedisBus struct {
	client *redis.Client
	ns     config.Namespace
	sep    string
}

// NewRedisBus dials the bus for a single logical namespace. Callers
// construct one RedisBus per namespace they need, same as the teacher's
// ConfigDBClient / StateDB split by DB index rather than by connection.
func NewRedisBus(cfg *config.Config, ns config.Namespace) *RedisBus {
	return &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr: cfg.GetRedisAddr(),
			DB:   ns.DefaultDBIndex(),
		}),
		ns:  ns,
		sep: keySeparator(ns),
	}
}

func (b *RedisBus) redisKey(table, key string) string {
	return fmt.Sprintf("%s%s%s", table, b.sep, key)
}

func (b *RedisBus) Get(ctx context.Context, table, key string) (FieldValue, bool, error) {
	vals, err := b.client.HGetAll(ctx, b.redisKey(table, key)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s%s%s: %w", table, b.sep, key, err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	return FieldValue(vals), true, nil
}

func (b *RedisBus) Set(ctx context.Context, table, key string, fields FieldValue) error {
	redisKey := b.redisKey(table, key)
	if len(fields) == 0 {
		return b.client.HSet(ctx, redisKey, "NULL", "NULL").Err()
	}
	pairs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		pairs = append(pairs, k, v)
	}
	return b.client.HSet(ctx, redisKey, pairs...).Err()
}

func (b *RedisBus) Del(ctx context.Context, table, key string) error {
	return b.client.Del(ctx, b.redisKey(table, key)).Err()
}

func (b *RedisBus) Keys(ctx context.Context, table string) ([]string, error) {
	pattern := fmt.Sprintf("%s%s*", table, b.sep)
	redisKeys, err := b.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(redisKeys))
	for _, rk := range redisKeys {
		_, key, ok := strings.Cut(rk, b.sep)
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *RedisBus) GetAll(ctx context.Context, table string) (map[string]FieldValue, error) {
	keys, err := b.Keys(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]FieldValue, len(keys))
	for _, key := range keys {
		vals, ok, err := b.Get(ctx, table, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = vals
		}
	}
	return out, nil
}

// Subscribe watches for keyspace notifications on the given tables. It
// requires the bus's redis-server to have notify-keyspace-events enabled
// for generic and hash commands ("KEA" or similar), the way swss's
// orchagent expects of its redis-server.conf.
func (b *RedisBus) Subscribe(ctx context.Context, tables ...string) (<-chan Notification, error) {
	patterns := make([]string, len(tables))
	for i, t := range tables {
		patterns[i] = fmt.Sprintf("__keyspace@%d__:%s%s*", b.ns.DefaultDBIndex(), t, b.sep)
	}
	sub := b.client.PSubscribe(ctx, patterns...)

	out := make(chan Notification)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, open := <-ch:
				if !open {
					return
				}
				notif, ok := b.parseKeyspaceEvent(ctx, msg)
				if !ok {
					continue
				}
				select {
				case out <- notif:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) parseKeyspaceEvent(ctx context.Context, msg *redis.Message) (Notification, bool) {
	const prefix = "__keyspace@"
	idx := strings.Index(msg.Channel, "__:")
	if !strings.HasPrefix(msg.Channel, prefix) || idx < 0 {
		return Notification{}, false
	}
	redisKey := msg.Channel[idx+len("__:"):]
	table, key, ok := strings.Cut(redisKey, b.sep)
	if !ok {
		return Notification{}, false
	}

	if msg.Payload == "del" || msg.Payload == "expired" {
		return Notification{Table: table, Key: key, Op: OpDel}, true
	}

	fields, ok, err := b.Get(ctx, table, key)
	if err != nil || !ok {
		return Notification{Table: table, Key: key, Op: OpDel}, true
	}
	return Notification{Table: table, Key: key, Op: OpSet, Fields: fields}, true
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

package dbus

import (
	"context"
	"testing"
	"time"
)

func TestFakeBus_SetGet(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	if err := b.Set(ctx, "PORT_TABLE", "Ethernet0", FieldValue{"admin_status": "up"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	fields, ok, err := b.Get(ctx, "PORT_TABLE", "Ethernet0")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if fields["admin_status"] != "up" {
		t.Errorf("admin_status = %q, want up", fields["admin_status"])
	}
}

func TestFakeBus_GetMissing(t *testing.T) {
	b := NewFakeBus()
	_, ok, err := b.Get(context.Background(), "PORT_TABLE", "Ethernet99")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("Get() on missing row should return ok=false")
	}
}

func TestFakeBus_SetEmptyFieldsCreatesRow(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	if err := b.Set(ctx, "PORTCHANNEL_MEMBER", "PortChannel1|Ethernet0", nil); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	_, ok, err := b.Get(ctx, "PORTCHANNEL_MEMBER", "PortChannel1|Ethernet0")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Error("Set() with empty fields should still create the row")
	}
}

func TestFakeBus_Del(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	b.Set(ctx, "NEIGH_TABLE", "Ethernet0:10.0.0.1", FieldValue{"neigh": "aa:bb:cc:dd:ee:ff"})
	if err := b.Del(ctx, "NEIGH_TABLE", "Ethernet0:10.0.0.1"); err != nil {
		t.Fatalf("Del() failed: %v", err)
	}

	_, ok, _ := b.Get(ctx, "NEIGH_TABLE", "Ethernet0:10.0.0.1")
	if ok {
		t.Error("Del() should remove the row")
	}
}

func TestFakeBus_DelMissingIsNotError(t *testing.T) {
	b := NewFakeBus()
	if err := b.Del(context.Background(), "NEIGH_TABLE", "nonexistent"); err != nil {
		t.Errorf("Del() on missing row should not error, got %v", err)
	}
}

func TestFakeBus_KeysAndGetAll(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	b.Set(ctx, "ROUTE_TABLE", "10.0.0.0/24", FieldValue{"ifname": "Ethernet0"})
	b.Set(ctx, "ROUTE_TABLE", "10.0.1.0/24", FieldValue{"ifname": "Ethernet4"})

	keys, err := b.Keys(ctx, "ROUTE_TABLE")
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys() returned %d keys, want 2", len(keys))
	}

	all, err := b.GetAll(ctx, "ROUTE_TABLE")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("GetAll() returned %d rows, want 2", len(all))
	}
	if all["10.0.0.0/24"]["ifname"] != "Ethernet0" {
		t.Errorf("GetAll()[10.0.0.0/24][ifname] = %q, want Ethernet0", all["10.0.0.0/24"]["ifname"])
	}
}

func TestFakeBus_SubscribeReceivesSetAndDel(t *testing.T) {
	b := NewFakeBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "ROUTE_TABLE")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	b.Set(ctx, "ROUTE_TABLE", "10.0.0.0/24", FieldValue{"ifname": "Ethernet0"})

	select {
	case n := <-ch:
		if n.Op != OpSet || n.Table != "ROUTE_TABLE" || n.Key != "10.0.0.0/24" {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for set notification")
	}

	b.Del(ctx, "ROUTE_TABLE", "10.0.0.0/24")

	select {
	case n := <-ch:
		if n.Op != OpDel || n.Key != "10.0.0.0/24" {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for del notification")
	}
}

func TestFakeBus_SubscribeIgnoresOtherTables(t *testing.T) {
	b := NewFakeBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "ROUTE_TABLE")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	b.Set(ctx, "NEIGH_TABLE", "Ethernet0:10.0.0.1", FieldValue{"neigh": "aa:bb:cc:dd:ee:ff"})

	select {
	case n := <-ch:
		t.Fatalf("unexpected notification for unsubscribed table: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFakeBus_SubscribeClosesOnContextCancel(t *testing.T) {
	b := NewFakeBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, "ROUTE_TABLE")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Error("channel should be closed after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel to close")
	}
}

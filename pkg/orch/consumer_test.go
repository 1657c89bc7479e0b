package orch

import "testing"

func TestConsumer_LatestWriteWinsBySequence(t *testing.T) {
	c := NewConsumer("NEIGH_TABLE")

	c.Push("Ethernet0:10.0.0.1", OpSet, map[string]string{"neigh": "aa:bb:cc:dd:ee:01"})
	c.Push("Ethernet0:10.0.0.1", OpSet, map[string]string{"neigh": "aa:bb:cc:dd:ee:02"})

	batch := c.Batch()
	if len(batch) != 1 {
		t.Fatalf("Batch() returned %d rows, want 1", len(batch))
	}
	if batch[0].Fields["neigh"] != "aa:bb:cc:dd:ee:02" {
		t.Errorf("surviving row = %v, want the most recent write", batch[0].Fields)
	}
}

func TestConsumer_DelThenSetCollapsesToSet(t *testing.T) {
	c := NewConsumer("NEIGH_TABLE")

	c.Push("Ethernet0:10.0.0.1", OpDel, nil)
	c.Push("Ethernet0:10.0.0.1", OpSet, map[string]string{"neigh": "aa:bb:cc:dd:ee:ff"})

	batch := c.Batch()
	if len(batch) != 1 {
		t.Fatalf("Batch() returned %d rows, want 1", len(batch))
	}
	if batch[0].Op != OpSet {
		t.Errorf("Op = %v, want OpSet (DEL-then-SET must collapse to SET)", batch[0].Op)
	}
}

func TestConsumer_SetThenDelCollapsesToDel(t *testing.T) {
	c := NewConsumer("NEIGH_TABLE")

	c.Push("Ethernet0:10.0.0.1", OpSet, map[string]string{"neigh": "aa:bb:cc:dd:ee:ff"})
	c.Push("Ethernet0:10.0.0.1", OpDel, nil)

	batch := c.Batch()
	if len(batch) != 1 {
		t.Fatalf("Batch() returned %d rows, want 1", len(batch))
	}
	if batch[0].Op != OpDel {
		t.Errorf("Op = %v, want OpDel", batch[0].Op)
	}
}

func TestConsumer_BatchOrderedBySequence(t *testing.T) {
	c := NewConsumer("ROUTE_TABLE")

	c.Push("10.0.2.0/24", OpSet, nil)
	c.Push("10.0.0.0/24", OpSet, nil)
	c.Push("10.0.1.0/24", OpSet, nil)

	batch := c.Batch()
	want := []string{"10.0.2.0/24", "10.0.0.0/24", "10.0.1.0/24"}
	if len(batch) != len(want) {
		t.Fatalf("Batch() returned %d rows, want %d", len(batch), len(want))
	}
	for i, row := range batch {
		if row.Key != want[i] {
			t.Errorf("Batch()[%d].Key = %q, want %q (insertion order)", i, row.Key, want[i])
		}
	}
}

func TestConsumer_AckRemovesProcessedRow(t *testing.T) {
	c := NewConsumer("ROUTE_TABLE")
	c.Push("10.0.0.0/24", OpSet, nil)

	batch := c.Batch()
	c.Ack(batch[0].Key, batch[0].Seq)

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Ack, want 0", c.Len())
	}
}

func TestConsumer_AckDoesNotDropNewerWrite(t *testing.T) {
	c := NewConsumer("ROUTE_TABLE")
	c.Push("10.0.0.0/24", OpSet, map[string]string{"v": "1"})

	batch := c.Batch()
	staleSeq := batch[0].Seq

	// A newer write races in after doTask read the batch but before it acks.
	c.Push("10.0.0.0/24", OpSet, map[string]string{"v": "2"})
	c.Ack("10.0.0.0/24", staleSeq)

	if c.Len() != 1 {
		t.Errorf("Len() = %d after stale Ack, want 1 (newer write must survive)", c.Len())
	}
}

func TestConsumer_AckUnknownKeyIsNoop(t *testing.T) {
	c := NewConsumer("ROUTE_TABLE")
	c.Ack("nonexistent", 1)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

package orch

import (
	"context"
	"testing"
)

// fakeOrch is a minimal Orch for exercising the Executor's priority draining
// and DoTask error propagation without any real SAI or dbus dependency.
type fakeOrch struct {
	name      string
	consumer  *Consumer
	processed []string
	doTaskErr error
	onDoTask  func()
}

func (o *fakeOrch) Name() string             { return o.name }
func (o *fakeOrch) Consumers() []*Consumer    { return []*Consumer{o.consumer} }
func (o *fakeOrch) DoTask(ctx context.Context) error {
	if o.onDoTask != nil {
		o.onDoTask()
	}
	for _, row := range o.consumer.Batch() {
		o.processed = append(o.processed, row.Key)
		o.consumer.Ack(row.Key, row.Seq)
	}
	return o.doTaskErr
}

func TestExecutor_DrainsInRegistrationOrder(t *testing.T) {
	var order []string

	ports := &fakeOrch{name: "PortsOrch", consumer: NewConsumer("PORT_TABLE")}
	ports.onDoTask = func() { order = append(order, "PortsOrch") }
	intfs := &fakeOrch{name: "IntfsOrch", consumer: NewConsumer("INTF_TABLE")}
	intfs.onDoTask = func() { order = append(order, "IntfsOrch") }

	ports.consumer.Push("Ethernet0", OpSet, nil)
	intfs.consumer.Push("Ethernet0", OpSet, nil)

	e := NewExecutor()
	e.Register(ports)
	e.Register(intfs)

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	want := []string{"PortsOrch", "IntfsOrch"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestExecutor_SkipsOrchesWithNoPendingRows(t *testing.T) {
	idle := &fakeOrch{name: "Idle", consumer: NewConsumer("T")}
	called := false
	idle.onDoTask = func() { called = true }

	e := NewExecutor()
	e.Register(idle)

	if err := e.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if called {
		t.Error("DoTask should not be called when Consumer has no pending rows")
	}
}

func TestExecutor_StopsPassOnError(t *testing.T) {
	failing := &fakeOrch{name: "Failing", consumer: NewConsumer("T"), doTaskErr: errBoom}
	failing.consumer.Push("k", OpSet, nil)

	after := &fakeOrch{name: "After", consumer: NewConsumer("T")}
	after.consumer.Push("k", OpSet, nil)
	afterCalled := false
	after.onDoTask = func() { afterCalled = true }

	e := NewExecutor()
	e.Register(failing)
	e.Register(after)

	if err := e.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() expected error")
	}
	if afterCalled {
		t.Error("lower-priority Orch should not run after a higher-priority one errors")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

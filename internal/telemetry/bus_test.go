// SPDX-License-Identifier: MIT
package telemetry

import (
	"testing"
	"time"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus[int](8)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}
	for want := 0; want < 5; want++ {
		select {
		case got := <-sub.C():
			if got != want {
				t.Errorf("received %d, want %d", got, want)
			}
		default:
			t.Fatalf("event %d missing", want)
		}
	}
}

func TestBusOverflowEvictsOldest(t *testing.T) {
	bus := NewBus[int](3)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}

	if bus.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", bus.Dropped())
	}

	// The survivors are the newest three, still in order.
	for _, want := range []int{2, 3, 4} {
		select {
		case got := <-sub.C():
			if got != want {
				t.Errorf("received %d, want %d", got, want)
			}
		default:
			t.Fatalf("event %d missing after eviction", want)
		}
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus[int](1)
	sub := bus.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			bus.Publish(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBusNoSubscribersIsNoop(t *testing.T) {
	bus := NewBus[string](4)
	bus.Publish("nobody home")
	if bus.Dropped() != 0 {
		t.Errorf("publishing to no subscribers counted drops: %d", bus.Dropped())
	}
}

func TestBusCloseDetachesSubscriber(t *testing.T) {
	bus := NewBus[int](4)
	sub := bus.Subscribe()
	other := bus.Subscribe()
	defer other.Close()

	sub.Close()
	bus.Publish(1)

	if bus.SubscriberCount() != 1 {
		t.Errorf("subscriber count = %d, want 1", bus.SubscriberCount())
	}
	select {
	case <-other.C():
	default:
		t.Error("remaining subscriber missed the event")
	}
	select {
	case <-sub.C():
		t.Error("closed subscriber received an event")
	default:
	}
}

func TestBusMultipleSubscribersIndependentBuffers(t *testing.T) {
	bus := NewBus[int](2)
	fast := bus.Subscribe()
	slow := bus.Subscribe()
	defer fast.Close()
	defer slow.Close()

	bus.Publish(1)
	bus.Publish(2)
	<-fast.C()
	<-fast.C()

	// Slow subscriber overflows, fast one does not.
	bus.Publish(3)
	bus.Publish(4)

	if got := <-fast.C(); got != 3 {
		t.Errorf("fast subscriber got %d, want 3", got)
	}
	if got := <-slow.C(); got != 2 {
		t.Errorf("slow subscriber head = %d, want 2 after evicting 1", got)
	}
	if bus.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", bus.Dropped())
	}
}

func BenchmarkBusPublish(b *testing.B) {
	bus := NewBus[MetricEvent](256)
	sub := bus.Subscribe()
	defer sub.Close()
	ev := NewOccupancyEvent("analysis", 42.0)
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ev)
	}
}

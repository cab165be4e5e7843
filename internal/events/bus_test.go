package events_test

import (
	"testing"
	"time"

	"github.com/micro-nova/panmix/internal/events"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := events.NewBus()

	ch := bus.Subscribe("test1")
	bus.Publish(events.VolumeChanged{DeviceID: "dev-1", Volume: 42})

	select {
	case got := <-ch:
		vc, ok := got.(events.VolumeChanged)
		if !ok {
			t.Fatalf("got %T, want VolumeChanged", got)
		}
		if vc.DeviceID != "dev-1" || vc.Volume != 42 {
			t.Errorf("got %+v", vc)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe("test-unsub")

	bus.Unsubscribe("test-unsub")

	// Channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBusResubscribeClosesOldChannel(t *testing.T) {
	bus := events.NewBus()
	old := bus.Subscribe("dup")
	bus.Subscribe("dup")

	if _, ok := <-old; ok {
		t.Error("old channel still open after resubscribe with the same id")
	}
	if n := bus.SubscriberCount(); n != 1 {
		t.Errorf("SubscriberCount = %d, want 1", n)
	}
}

func TestBusDropsEventsWhenFull(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe("slow-reader")

	// Publish many events without reading; should not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			bus.Publish(events.PanChanged{DeviceID: "dev", Pan: float64(i % 100)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Publish blocked for too long (should drop events)")
	}

	bus.Unsubscribe("slow-reader")
	_ = ch
}

func TestBusSubscriberCount(t *testing.T) {
	bus := events.NewBus()
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	bus.Subscribe("s1")
	bus.Subscribe("s2")
	if n := bus.SubscriberCount(); n != 2 {
		t.Errorf("expected 2 subscribers, got %d", n)
	}
	bus.Unsubscribe("s1")
	if n := bus.SubscriberCount(); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}

func TestEventKinds(t *testing.T) {
	tests := []struct {
		ev   events.Event
		kind string
	}{
		{events.VolumeChanged{}, "volume_changed"},
		{events.PanChanged{}, "pan_changed"},
		{events.DeviceAdded{}, "device_added"},
		{events.DeviceRemoved{}, "device_removed"},
	}
	for _, tc := range tests {
		if got := tc.ev.Kind(); got != tc.kind {
			t.Errorf("%T.Kind() = %q, want %q", tc.ev, got, tc.kind)
		}
	}
}

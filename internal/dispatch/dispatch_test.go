package dispatch_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/micro-nova/panmix/internal/dispatch"
)

func TestPostRunsInOrder(t *testing.T) {
	d := dispatch.New()
	defer d.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.Post(func() { got = append(got, i) })
	}
	if err := d.Invoke(func() {}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("ran %d posts, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("post %d ran as %d: out of order", i, v)
		}
	}
}

func TestPostFromManyGoroutinesIsSerial(t *testing.T) {
	d := dispatch.New()
	defer d.Stop()

	// counter is only touched on the dispatcher; the race detector flags any overlap.
	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	if err := d.Invoke(func() { final = counter }); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if final != 400 {
		t.Errorf("counter = %d, want 400", final)
	}
}

func TestPostFromDispatchedFunction(t *testing.T) {
	d := dispatch.New()
	defer d.Stop()

	done := make(chan struct{})
	d.Post(func() {
		d.Post(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestStopDrainsQueuedWork(t *testing.T) {
	d := dispatch.New()

	ran := 0
	block := make(chan struct{})
	d.Post(func() { <-block })
	for i := 0; i < 10; i++ {
		d.Post(func() { ran++ })
	}
	close(block)
	d.Stop()

	if ran != 10 {
		t.Errorf("ran %d queued posts before stopping, want 10", ran)
	}
}

func TestInvokeAfterStop(t *testing.T) {
	d := dispatch.New()
	d.Stop()
	d.Stop() // idempotent

	if err := d.Invoke(func() { t.Error("ran after stop") }); !errors.Is(err, dispatch.ErrStopped) {
		t.Errorf("Invoke after Stop = %v, want ErrStopped", err)
	}
	d.Post(func() { t.Error("post ran after stop") })
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	d := dispatch.New()
	defer d.Stop()

	d.Post(func() { panic("boom") })
	ok := false
	if err := d.Invoke(func() { ok = true }); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !ok {
		t.Error("loop did not survive a panicking function")
	}
}

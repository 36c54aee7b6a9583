package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("snapshot.", 8)
	defer cancel()

	b.Publish("snapshot.published", 42)

	select {
	case evt := <-ch:
		if evt.Kind != "snapshot.published" {
			t.Errorf("kind = %q, want snapshot.published", evt.Kind)
		}
		if evt.Payload != 42 {
			t.Errorf("payload = %v, want 42", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("conn.", 8)
	defer cancel()

	b.Publish("snapshot.published", nil)
	b.Publish("conn.status_changed", nil)

	select {
	case evt := <-ch:
		if evt.Kind != "conn.status_changed" {
			t.Errorf("kind = %q, want conn.status_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected second event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("conn.", 8)
	cancel()

	b.Publish("conn.status_changed", nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after cancel: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("x.", 1)
	defer cancel()

	b.Publish("x.first", nil)
	done := make(chan struct{})
	go func() {
		b.Publish("x.second", nil) // must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on full subscriber")
	}

	if evt := <-ch; evt.Kind != "x.first" {
		t.Errorf("kind = %q, want x.first", evt.Kind)
	}
}

package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageInserted, Timestamp: time.Now(), Payload: MessageRef{MessageID: "m1"}})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageInserted {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessageInserted)
		}
		ref, ok := evt.Payload.(MessageRef)
		if !ok || ref.MessageID != "m1" {
			t.Errorf("payload = %v, want MessageRef{m1}", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageInserted})
	b.Publish(Event{Kind: KindConversationChanged})

	select {
	case evt := <-ch:
		if evt.Kind != KindConversationChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindConversationChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the message event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageInserted})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	// Fill buffer; the second publish must not block.
	b.Publish(Event{Kind: KindMessageInserted, Payload: 1})
	b.Publish(Event{Kind: KindMessageInserted, Payload: 2})

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
}

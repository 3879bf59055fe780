package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	PublishNotification(b, TypeShown, NotificationEvent{Tag: "t"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			ne, ok := ev.Data.(NotificationEvent)
			if ev.Type != TypeShown || !ok || ne.Tag != "t" || ev.Time.IsZero() || ne.At.IsZero() {
				t.Fatalf("event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypeAdmitted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if n := len(ch); n != 1 {
		t.Fatalf("buffered = %d, want 1", n)
	}
	if d := b.Dropped(); d != 99 {
		t.Fatalf("dropped = %d, want 99", d)
	}
}

func TestSubscribeTypesFilters(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.SubscribeTypes(4, TypeSessionState, TypeSessionFatal)
	defer unsub()

	b.Publish(Event{Type: TypeAdmitted})
	b.Publish(Event{Type: TypeSessionState})
	b.Publish(Event{Type: TypeShown})
	b.Publish(Event{Type: TypeSessionFatal})

	if n := len(ch); n != 2 {
		t.Fatalf("buffered = %d, want 2", n)
	}
	if ev := <-ch; ev.Type != TypeSessionState {
		t.Fatalf("first = %q", ev.Type)
	}
	if ev := <-ch; ev.Type != TypeSessionFatal {
		t.Fatalf("second = %q", ev.Type)
	}
	if d := b.Dropped(); d != 0 {
		t.Fatalf("filtered events counted as dropped: %d", d)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TypeClosed})
}

func TestPublishNotificationNilBus(t *testing.T) {
	t.Parallel()
	PublishNotification(nil, TypeShown, NotificationEvent{Tag: "t"})
}

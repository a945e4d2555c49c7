package bus

import (
	"testing"
	"time"
)

func recvOne(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return Message{}
	}
}

func TestFanOut(t *testing.T) {
	b := New(8)
	a := b.Subscribe(TopicTick)
	defer a.Unsubscribe()
	c := b.Subscribe(TopicTick)
	defer c.Unsubscribe()

	b.Publish(TopicTick, int64(7))

	for _, sub := range []*Subscription{a, c} {
		msg := recvOne(t, sub)
		if msg.Topic != TopicTick || msg.Payload.(int64) != 7 {
			t.Fatalf("unexpected message: %+v", msg)
		}
	}
}

func TestPerSubscriberOrder(t *testing.T) {
	b := New(16)
	sub := b.Subscribe(TopicReflex)
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		b.Publish(TopicReflex, i)
	}
	for i := 0; i < 10; i++ {
		if got := recvOne(t, sub).Payload.(int); got != i {
			t.Fatalf("message %d arrived out of order as %d", i, got)
		}
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New(3)
	sub := b.Subscribe(TopicTick)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(TopicTick, i)
	}

	var got []int
	for len(sub.C()) > 0 {
		got = append(got, recvOne(t, sub).Payload.(int))
	}
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Fatalf("expected newest 3 messages [2 3 4], got %v", got)
	}
}

func TestMultiTopicSubscription(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(TopicReflex, TopicReflexTriggered)
	defer sub.Unsubscribe()

	b.Publish(TopicReflex, "a")
	b.Publish(TopicReflexTriggered, "b")
	b.Publish(TopicEmergency, "c")

	if got := recvOne(t, sub).Payload.(string); got != "a" {
		t.Fatalf("expected a, got %q", got)
	}
	if got := recvOne(t, sub).Payload.(string); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if len(sub.C()) != 0 {
		t.Fatalf("received a message from an unsubscribed topic")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(8)
	sub := b.Subscribe(TopicTick)
	sub.Unsubscribe()

	b.Publish(TopicTick, 1)

	if _, open := <-sub.C(); open {
		t.Fatalf("mailbox still open after unsubscribe")
	}

	// Idempotent.
	sub.Unsubscribe()
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New(8)
	b.Publish(TopicTick, 1)
}

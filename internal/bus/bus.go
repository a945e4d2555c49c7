// Package bus provides in-process named-topic broadcast between actors.
//
// Delivery is fan-out: every subscriber of a topic receives every message
// published to it, in publish order, through its own bounded mailbox.
// No ordering is guaranteed across subscribers. A full mailbox drops the
// oldest undelivered message.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

// #region topics

const (
	TopicTick                = "tick.broadcast"
	TopicReflex              = "reflex.event"
	TopicReflexTriggered     = "reflex.event.triggered"
	TopicReflexChunk         = "reflex.event.chunk_aggregate"
	TopicAcknowledgment      = "reflex.ack"
	TopicEmergency           = "reflex.emergency"
	TopicCascadeWarning      = "reflex.cascade_warning"
	TopicContainmentRequest  = "containment.request"
	TopicQuarantineRequest   = "quarantine.request"
	TopicHeuristicDecision   = "reflex.heuristic_decision"
	TopicCrossDomain         = "reflex.cross_domain"
	TopicMonitorAlert        = "monitor.alert"
)

// #endregion topics

// #region message

// Message is one broadcast envelope.
type Message struct {
	Topic   string
	Payload any
}

// #endregion message

// #region subscription

// Subscription is one consumer's ordered mailbox across its topics.
type Subscription struct {
	id     string
	topics []string
	ch     chan Message
	bus    *Bus
	once   sync.Once
}

// C returns the mailbox channel. Closed on Unsubscribe.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Unsubscribe detaches the mailbox and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.drop(s)
		close(s.ch)
	})
}

// #endregion subscription

// #region bus

// Bus is an in-process topic broadcaster. Safe for concurrent use.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string][]*Subscription // topic → subscribers
	depth int
}

// New creates a bus whose subscriber mailboxes hold depth messages.
func New(depth int) *Bus {
	if depth <= 0 {
		depth = 256
	}
	return &Bus{
		subs:  make(map[string][]*Subscription),
		depth: depth,
	}
}

// Subscribe registers one mailbox fed by all the given topics.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		topics: topics,
		ch:     make(chan Message, b.depth),
		bus:    b,
	}
	b.mu.Lock()
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], sub)
	}
	b.mu.Unlock()
	return sub
}

// Publish delivers payload to every subscriber of topic. Never blocks:
// a full mailbox sheds its oldest message first.
func (b *Bus) Publish(topic string, payload any) {
	msg := Message{Topic: topic, Payload: payload}
	b.mu.RLock()
	targets := b.subs[topic]
	for _, sub := range targets {
		select {
		case sub.ch <- msg:
		default:
			// Mailbox full: drop oldest, then deliver.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) drop(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range sub.topics {
		list := b.subs[t]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[t] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// #endregion bus

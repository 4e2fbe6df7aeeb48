package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

type Topic string

const (
	TopicMessages     Topic = "room_messages"
	TopicParticipants Topic = "room_participants"
	TopicSettings     Topic = "room_settings"
)

const subscriptionBufferSize = 256

var Topics = []Topic{TopicMessages, TopicParticipants, TopicSettings}

func (t Topic) valid() bool {
	switch t {
	case TopicMessages, TopicParticipants, TopicSettings:
		return true
	}
	return false
}

// Event is a single row change on one of the room topics.
type Event struct {
	Topic  Topic           `json:"-"`
	Op     string          `json:"op"`
	RoomId string          `json:"room_id"`
	Record json.RawMessage `json:"record"`
}

// ParseEvent decodes a notification payload received on the channel
// named by topic.
func ParseEvent(topic Topic, payload []byte) (Event, error) {
	if !topic.valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if ev.RoomId == "" {
		return Event{}, fmt.Errorf("%w: missing room id", ErrMalformedPayload)
	}

	ev.Topic = topic
	return ev, nil
}

type subscriptionKey struct {
	topic  Topic
	roomId string
}

type Subscription struct {
	C      <-chan Event
	c      chan Event
	key    subscriptionKey
	broker *Broker
	once   sync.Once
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s)
	})
}

// Broker fans change events out to subscribers of a (topic, room) pair.
type Broker struct {
	log  *log.Logger
	mu   sync.RWMutex
	subs map[subscriptionKey]map[*Subscription]struct{}
}

func NewBroker(logger *log.Logger) *Broker {
	return &Broker{
		log:  logger,
		subs: make(map[subscriptionKey]map[*Subscription]struct{}),
	}
}

func (b *Broker) Subscribe(ctx context.Context, topic Topic, roomId string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !topic.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	c := make(chan Event, subscriptionBufferSize)
	sub := &Subscription{
		C:      c,
		c:      c,
		key:    subscriptionKey{topic: topic, roomId: roomId},
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sub.key] == nil {
		b.subs[sub.key] = make(map[*Subscription]struct{})
	}
	b.subs[sub.key][sub] = struct{}{}

	return sub, nil
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[sub.key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.key)
		}
	}
	close(sub.c)
}

// Publish delivers ev to every current subscriber. Slow subscribers
// whose buffer is full miss the event.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[subscriptionKey{topic: ev.Topic, roomId: ev.RoomId}] {
		select {
		case sub.c <- ev:
		default:
			b.log.Printf("subscription buffer full for %s on room %q, dropping event", ev.Topic, ev.RoomId)
		}
	}
}

// publishRecord marshals record as the row payload of an event.
func publishRecord(p Publisher, topic Topic, op, roomId string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", topic, err)
	}

	p.Publish(Event{Topic: topic, Op: op, RoomId: roomId, Record: raw})
	return nil
}

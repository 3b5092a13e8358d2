// Package feed carries change notifications between writers and live
// subscribers. Messages only say "something changed"; subscribers re-read
// the state they care about, so delivery is best-effort and coalescing.
package feed

import (
	"context"
	"encoding/json"
	"sync"
)

// subscriberBuffer is the per-subscription queue length. A full queue drops
// new messages for that subscriber.
const subscriberBuffer = 16

// Message is a single notification.
type Message struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Broker publishes notifications and fans them out to local subscribers.
type Broker interface {
	Publish(ctx context.Context, topic, payload string) error
	Subscribe(topic string) *Subscription
	// Run pumps notifications from the transport until ctx is cancelled.
	Run(ctx context.Context) error
}

// Subscription receives messages for one topic until closed.
type Subscription struct {
	topic string
	ch    chan Message
	hub   *hub
	once  sync.Once
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

type hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		topic: topic,
		ch:    make(chan Message, subscriberBuffer),
		hub:   h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.topic)
		}
	}
	close(s.ch)
}

func (h *hub) dispatch(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[msg.Topic] {
		select {
		case s.ch <- msg:
		default:
		}
	}
}

func (h *hub) subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func encode(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw string) (Message, error) {
	var msg Message
	err := json.Unmarshal([]byte(raw), &msg)
	return msg, err
}

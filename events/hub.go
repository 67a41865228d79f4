// Package events fans committed ledger events out to live client
// connections. Publishing never blocks the writer: events flow through a
// fixed pool of dispatch workers sharded by account, and each connection
// has a bounded buffer whose overflow disconnects that one client.
package events

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

// Publisher is anything that accepts committed events.
type Publisher interface {
	Publish(ev domain.Event)
}

// Config sizes the hub. Zero fields fall back to defaults.
type Config struct {
	Workers    int
	QueueSize  int
	BufferSize int
}

// Subscription is one client connection's view of the stream. Events
// arrive on C in per-account publish order until Close, or until the hub
// disconnects the subscriber for falling behind.
type Subscription struct {
	ID     string
	Actor  domain.Actor
	topics map[string]struct{}
	ch     chan domain.Event
	hub    *Hub
}

// C is the receive side of the subscription. It is closed on Close, hub
// shutdown, or eviction; a closed channel tells the client to reconnect
// and re-fetch.
func (s *Subscription) C() <-chan domain.Event {
	return s.ch
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
}

func (s *Subscription) wants(topic string) bool {
	_, ok := s.topics[topic]
	return ok
}

// Hub is the connection registry and broadcast fan-out.
type Hub struct {
	cfg    Config
	logger *log.Logger

	mu   sync.Mutex
	subs map[string]*Subscription

	shards []chan domain.Event
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once

	dropped atomic.Uint64
	evicted atomic.Uint64
}

func NewHub(cfg Config, logger *log.Logger) *Hub {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	h := &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]*Subscription),
		shards: make([]chan domain.Event, cfg.Workers),
		closed: make(chan struct{}),
	}
	for i := range h.shards {
		h.shards[i] = make(chan domain.Event, cfg.QueueSize)
		h.wg.Add(1)
		go h.dispatch(h.shards[i])
	}
	return h
}

// Subscribe registers a connection. The actor's role decides its topics.
func (h *Hub) Subscribe(actor domain.Actor) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Actor:  actor,
		topics: make(map[string]struct{}),
		ch:     make(chan domain.Event, h.cfg.BufferSize),
		hub:    h,
	}
	for _, topic := range domain.TopicsForRole(actor.Role) {
		sub.topics[topic] = struct{}{}
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Publish hands the event to its dispatch shard and returns immediately.
// A full shard queue drops the event; clients reconcile by re-fetching,
// the stream is a push optimization, not the source of truth.
func (h *Hub) Publish(ev domain.Event) {
	select {
	case h.shards[h.shardFor(ev)] <- ev:
	default:
		h.dropped.Add(1)
		h.logger.Warnf("event hub shard full, dropped event, type=%s, total_dropped=%d", ev.Type, h.dropped.Load())
	}
}

// Close stops the dispatch workers and closes every subscriber channel.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.closed)
		h.wg.Wait()
		h.mu.Lock()
		defer h.mu.Unlock()
		for id, sub := range h.subs {
			delete(h.subs, id)
			close(sub.ch)
		}
	})
}

// Stats reports the live subscriber count and loss counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	return Stats{
		Subscribers: n,
		Dropped:     h.dropped.Load(),
		Evicted:     h.evicted.Load(),
	}
}

type Stats struct {
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
	Evicted     uint64 `json:"evicted"`
}

// shardFor keys dispatch by account so one account's events stay on one
// worker, which is what preserves their order per connection.
func (h *Hub) shardFor(ev domain.Event) int {
	key := ev.AccountID
	if key == "" {
		key = ev.ID
	}
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return int(hash.Sum32() % uint32(len(h.shards)))
}

func (h *Hub) dispatch(queue chan domain.Event) {
	defer h.wg.Done()
	for {
		select {
		case <-h.closed:
			return
		case ev := <-queue:
			h.deliver(ev)
		}
	}
}

// deliver sends to every interested subscriber. A subscriber whose buffer
// is full is disconnected on the spot so it can never stall the others.
func (h *Hub) deliver(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if !sub.wants(ev.Topic) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			delete(h.subs, id)
			close(sub.ch)
			h.evicted.Add(1)
			h.logger.Warnf("subscriber too slow, disconnected, actor=%s, total_evicted=%d", sub.Actor.ID, h.evicted.Load())
		}
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}

package docstore

import (
	"fmt"
	"sync"
)

// Loader reads the current ordered contents of a channel.
type Loader func() ([]Record, error)

// Hub fans snapshots out to in-process subscribers. Each subscriber has its
// own delivery goroutine and an unbounded FIFO queue, so a slow consumer
// never blocks writers and snapshots are never reordered or coalesced.
// Drivers whose backend has no per-subscriber push (memory, bolt, a single
// LISTEN connection) build on it.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string]*topic
	closed bool
}

type topic struct {
	mu   sync.Mutex
	subs map[uint64]*hubSubscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: map[string]*topic{}}
}

// Subscribe registers fn on channelID and queues the initial snapshot read
// through load. Registration and the initial read happen under the channel
// lock, so a concurrent Refresh is delivered either entirely before or
// entirely after the initial snapshot.
func (h *Hub) Subscribe(channelID string, fn SnapshotFunc, load Loader) (Unsubscribe, error) {
	if channelID == "" {
		return nil, ErrChannelRequired
	}
	if fn == nil {
		return nil, fmt.Errorf("snapshot callback is required")
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	t := h.topics[channelID]
	if t == nil {
		t = &topic{subs: map[uint64]*hubSubscriber{}}
		h.topics[channelID] = t
	}
	h.nextID++
	id := h.nextID
	t.mu.Lock()
	h.mu.Unlock()

	records, err := load()
	if err != nil {
		t.mu.Unlock()
		h.dropIfEmpty(channelID, t)
		return nil, err
	}
	sub := newHubSubscriber(fn)
	t.subs[id] = sub
	sub.enqueue(Snapshot{ChannelID: channelID, Records: records})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			t.mu.Lock()
			delete(t.subs, id)
			if len(t.subs) == 0 && h.topics[channelID] == t {
				delete(h.topics, channelID)
			}
			t.mu.Unlock()
			h.mu.Unlock()
			sub.stop()
		})
	}, nil
}

// Refresh reads the channel through load and queues the result for every
// subscriber of the channel. A load failure is delivered as a Snapshot with
// Err set.
func (h *Hub) Refresh(channelID string, load Loader) {
	h.mu.Lock()
	t := h.topics[channelID]
	if t == nil || h.closed {
		h.mu.Unlock()
		return
	}
	t.mu.Lock()
	h.mu.Unlock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return
	}

	records, err := load()
	snap := Snapshot{ChannelID: channelID, Records: records, Err: err}
	for _, sub := range t.subs {
		sub.enqueue(snap)
	}
}

// Fail delivers err to every subscriber of every channel.
func (h *Hub) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channelID, t := range h.topics {
		t.mu.Lock()
		for _, sub := range t.subs {
			sub.enqueue(Snapshot{ChannelID: channelID, Err: err})
		}
		t.mu.Unlock()
	}
}

// Channels lists channels with at least one subscriber.
func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.topics))
	for id := range h.topics {
		out = append(out, id)
	}
	return out
}

// Close stops every subscriber. Later Subscribe calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, t := range h.topics {
		t.mu.Lock()
		for _, sub := range t.subs {
			sub.stop()
		}
		t.subs = map[uint64]*hubSubscriber{}
		t.mu.Unlock()
		delete(h.topics, id)
	}
}

func (h *Hub) dropIfEmpty(channelID string, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 && h.topics[channelID] == t {
		delete(h.topics, channelID)
	}
}

type hubSubscriber struct {
	fn       SnapshotFunc
	mu       sync.Mutex
	queue    []Snapshot
	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newHubSubscriber(fn SnapshotFunc) *hubSubscriber {
	s := &hubSubscriber{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *hubSubscriber) enqueue(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *hubSubscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *hubSubscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			snap := s.queue[0]
			s.queue[0] = Snapshot{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(snap)
		}
	}
}

package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans dashboard updates out to every registered subscriber. Only the
// newest update matters to a dashboard, so delivery is latest-wins: Broadcast
// never waits on subscribers, and a subscriber that is still writing an older
// update skips straight to the newest one.
type Hub struct {
	clients   map[Subscriber]*peer
	register  chan Subscriber
	unreg     chan unregRequest
	latest    *mailbox
	count     chan chan int
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	writers   sync.WaitGroup
	skipped   atomic.Int64
	log       *slog.Logger
}

// mailbox holds at most one pending payload; a newer offer replaces it.
type mailbox struct {
	ch chan []byte
}

func newMailbox() *mailbox { return &mailbox{ch: make(chan []byte, 1)} }

// offer stores payload and reports whether an unread payload was replaced.
func (m *mailbox) offer(payload []byte) (replaced bool) {
	for {
		select {
		case m.ch <- payload:
			return replaced
		default:
		}
		select {
		case <-m.ch:
			replaced = true
		default:
		}
	}
}

type peer struct {
	sub     Subscriber
	inbox   *mailbox
	quit    chan struct{}
	stopped chan struct{}
}

// unregRequest removes sub; reply, when set, receives the writer's stopped
// channel so the caller can wait for in-flight sends to finish.
type unregRequest struct {
	sub   Subscriber
	reply chan (<-chan struct{})
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:  make(map[Subscriber]*peer),
		register: make(chan Subscriber),
		unreg:    make(chan unregRequest),
		latest:   newMailbox(),
		count:    make(chan chan int),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		log:      logger.With("component", "ws_hub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			p := &peer{sub: c, inbox: newMailbox(), quit: make(chan struct{}), stopped: make(chan struct{})}
			h.clients[c] = p
			h.writers.Add(1)
			go h.write(p)
		case req := <-h.unreg:
			var stopped <-chan struct{}
			if p, ok := h.clients[req.sub]; ok {
				close(p.quit)
				delete(h.clients, req.sub)
				stopped = p.stopped
			}
			if req.reply != nil {
				req.reply <- stopped
			}
		case payload := <-h.latest.ch:
			for _, p := range h.clients {
				if p.inbox.offer(payload) {
					h.skipped.Add(1)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-h.done:
			for c, p := range h.clients {
				close(p.quit)
				c.Close()
				delete(h.clients, c)
			}
			return
		}
	}
}

// write delivers a peer's updates until it is unregistered or a send fails.
func (h *Hub) write(p *peer) {
	defer h.writers.Done()
	defer close(p.stopped)
	for {
		select {
		case <-p.quit:
			return
		case payload := <-p.inbox.ch:
			if err := p.sub.Send(payload); err != nil {
				h.log.Debug("dropping subscriber after failed send", "error", err)
				p.sub.Close()
				select {
				case h.unreg <- unregRequest{sub: p.sub}:
				case <-h.done:
				}
				return
			}
		}
	}
}

// Register adds a client.
func (h *Hub) Register(client Subscriber) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client and waits until no send to it is in flight.
// Its pending update, if any, is discarded.
func (h *Hub) Unregister(client Subscriber) {
	reply := make(chan (<-chan struct{}), 1)
	select {
	case h.unreg <- unregRequest{sub: client, reply: reply}:
	case <-h.done:
		return
	}
	if stopped := <-reply; stopped != nil {
		<-stopped
	}
}

// Broadcast queues payload for every client without blocking. An update not
// yet picked up by the dispatch loop is replaced.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	if h.latest.offer(payload) {
		h.skipped.Add(1)
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("failed to marshal hub payload", "error", err)
		return
	}
	h.Broadcast(payload)
}

// Len reports the number of registered clients.
func (h *Hub) Len() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Skipped reports how many updates were superseded before delivery.
func (h *Hub) Skipped() int64 { return h.skipped.Load() }

// Close disconnects every client, stops the dispatch loop and waits for the
// per-client writers to finish.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	<-h.stopped
	h.writers.Wait()
}

package streaming

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	clientBuffer      = 10
	sessionBuffer     = 100
	criticalWait      = 100 * time.Millisecond
	perClientWait     = 50 * time.Millisecond
	terminalLingerFor = 100 * time.Millisecond
)

// isTerminal reports whether an event ends the session stream. Terminal
// events get a bounded delivery retry instead of best-effort drop, and
// shut the broadcaster down once fanned out.
func isTerminal(t EventType) bool {
	return t == EventTypeComplete || t == EventTypeError
}

// Client represents a browser watching one import session over SSE
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a new SSE client
func NewClient() *Client {
	return &Client{Events: make(chan SSEEvent, clientBuffer)}
}

// SessionBroadcaster fans out events to every client watching one import
// session. Slow clients drop routine events; completion and error events get
// a bounded retry so the UI never hangs on an open session.
type SessionBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
}

// NewSessionBroadcaster creates a broadcaster tied to ctx. Cancelling ctx
// stops the fan-out loop and closes all client channels.
func NewSessionBroadcaster(ctx context.Context) *SessionBroadcaster {
	ctx, cancel := context.WithCancel(ctx)
	return &SessionBroadcaster{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, sessionBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a client to the broadcaster
func (b *SessionBroadcaster) Register(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	log.Printf("INFO: stream client joined, now %d watching", len(b.clients))
}

// Unregister removes a client. The client's channel is closed here unless
// Stop already closed it.
func (b *SessionBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; !ok {
		return
	}
	delete(b.clients, client)
	if !b.stopped {
		close(client.Events)
	}
	log.Printf("INFO: stream client left, now %d watching", len(b.clients))
}

// ClientCount returns the number of connected clients
func (b *SessionBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast queues an event for fan-out. Routine events are dropped when the
// queue is full; terminal events wait up to criticalWait before giving up.
func (b *SessionBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped {
		return
	}

	if isTerminal(event.Type) {
		select {
		case b.events <- event:
		case <-b.ctx.Done():
		case <-time.After(criticalWait):
			log.Printf("ERROR: could not queue %s event within %v, watchers may hang", event.Type, criticalWait)
		}
		return
	}

	select {
	case b.events <- event:
	case <-b.ctx.Done():
	default:
		log.Printf("WARN: session event queue full, dropping %s event", event.Type)
	}
}

// Stop closes every client channel and the event queue. Safe to call more
// than once.
func (b *SessionBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		for client := range b.clients {
			close(client.Events)
			delete(b.clients, client)
		}
		b.mu.Unlock()
		b.cancel()
		close(b.events)
	})
}

// Start launches the fan-out loop. The loop exits, after a short linger so
// clients can drain, once a terminal event has been delivered.
func (b *SessionBroadcaster) Start() {
	go func() {
		defer b.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case event, ok := <-b.events:
				if !ok {
					return
				}
				b.fanOut(event)
				if isTerminal(event.Type) {
					time.Sleep(terminalLingerFor)
					return
				}
			}
		}
	}()
}

func (b *SessionBroadcaster) fanOut(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	terminal := isTerminal(event.Type)
	for client := range b.clients {
		if b.offer(client, event, terminal) {
			continue
		}
		if terminal {
			log.Printf("ERROR: dropped %s event for a stalled client after %v", event.Type, perClientWait)
		} else {
			log.Printf("WARN: client buffer full, skipping %s event", event.Type)
		}
	}
}

// offer attempts delivery to one client. Terminal events block briefly,
// routine events never block.
func (b *SessionBroadcaster) offer(client *Client, event SSEEvent, terminal bool) bool {
	if terminal {
		select {
		case client.Events <- event:
			return true
		case <-time.After(perClientWait):
			return false
		}
	}
	select {
	case client.Events <- event:
		return true
	default:
		return false
	}
}

// StreamHub manages broadcasters for multiple parse sessions
type StreamHub struct {
	mu           sync.RWMutex
	broadcasters map[string]*SessionBroadcaster
}

// NewStreamHub creates a new stream hub
func NewStreamHub() *StreamHub {
	return &StreamHub{broadcasters: make(map[string]*SessionBroadcaster)}
}

// Register attaches a new client to sessionID's broadcaster, creating and
// starting the broadcaster on first use.
func (h *StreamHub) Register(ctx context.Context, sessionID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	broadcaster, ok := h.broadcasters[sessionID]
	if !ok {
		broadcaster = NewSessionBroadcaster(ctx)
		h.broadcasters[sessionID] = broadcaster
		broadcaster.Start()
		log.Printf("INFO: started event stream for session %s", sessionID)
	}

	client := NewClient()
	broadcaster.Register(client)
	return client
}

// Unregister detaches a client. The session's broadcaster is torn down when
// the last client leaves.
func (h *StreamHub) Unregister(sessionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	broadcaster, ok := h.broadcasters[sessionID]
	if !ok {
		return
	}
	broadcaster.Unregister(client)
	if broadcaster.ClientCount() == 0 {
		broadcaster.Stop()
		delete(h.broadcasters, sessionID)
		log.Printf("INFO: stopped event stream for session %s, no clients left", sessionID)
	}
}

// Broadcast sends an event to every client of a session. Events for unknown
// sessions are dropped so parsing never blocks on an absent watcher.
func (h *StreamHub) Broadcast(sessionID string, event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	broadcaster, ok := h.broadcasters[sessionID]
	if !ok {
		log.Printf("WARN: no stream open for session %s, dropping %s event", sessionID, event.Type)
		return
	}
	broadcaster.Broadcast(event)
}

// IsRunning reports whether a broadcaster exists for the session.
func (h *StreamHub) IsRunning(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.broadcasters[sessionID]
	return ok
}

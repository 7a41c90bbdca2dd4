// Package sse implements a Server-Sent Events broker for vault and
// companion updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/notify"
)

// Event types sent to clients. File changes go out as FileEventPrefix+kind.
const (
	TypeCompanionCreated = "companion.created"
	TypeCompanionRemoved = "companion.removed"
	TypeNotice           = "notice"
	TypeTreeUpdated      = "tree.updated"

	FileEventPrefix = "file."
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CompanionEvent is the payload of companion.* events.
type CompanionEvent struct {
	Source string `json:"source"`
	Note   string `json:"note"`
}

// Notice is the payload of notice events.
type Notice struct {
	Level notify.Level `json:"level"`
	Text  string       `json:"text"`
}

// FileEvent is the payload of file.* events.
type FileEvent struct {
	Kind string `json:"-"`
	Path string `json:"path"`
}

// fileKinds lists the watcher kinds forwarded to clients.
var fileKinds = map[string]bool{"created": true, "updated": true, "deleted": true}

// Broker fans events out to SSE clients.
//
// One goroutine owns the client set and the tree throttle; the public
// methods only talk to it over channels.
type Broker struct {
	joinCh  chan chan []byte
	leaveCh chan chan []byte
	eventCh chan Event
	fileCh  chan FileEvent
	countCh chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that emits tree.updated at most once per
// treeThrottle (2s when zero).
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}
	b := &Broker{
		joinCh:  make(chan chan []byte),
		leaveCh: make(chan chan []byte),
		eventCh: make(chan Event, 256),
		fileCh:  make(chan FileEvent, 256),
		countCh: make(chan chan int),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.loop(&hub{clients: make(map[chan []byte]struct{}), treeEvery: treeThrottle})
	return b
}

// hub is the loop-owned broker state.
type hub struct {
	clients   map[chan []byte]struct{}
	treeEvery time.Duration
	lastTree  time.Time
}

// encode renders e in text/event-stream framing.
func encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

// send delivers e to every client with buffer room. Slow clients miss it.
func (h *hub) send(e Event) {
	msg, err := encode(e)
	if err != nil {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *hub) fileChanged(fe FileEvent, now time.Time) {
	if fileKinds[fe.Kind] {
		h.send(Event{Type: FileEventPrefix + fe.Kind, Data: fe})
	}
	if now.Sub(h.lastTree) >= h.treeEvery {
		h.lastTree = now
		h.send(Event{Type: TypeTreeUpdated, Data: map[string]string{}})
	}
}

func (h *hub) leave(ch chan []byte) {
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (b *Broker) loop(h *hub) {
	defer close(b.stopped)
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				h.leave(ch)
			}
			return
		case ch := <-b.joinCh:
			h.clients[ch] = struct{}{}
		case ch := <-b.leaveCh:
			h.leave(ch)
		case e := <-b.eventCh:
			h.send(e)
		case fe := <-b.fileCh:
			h.fileChanged(fe, time.Now())
		case resp := <-b.countCh:
			resp <- len(h.clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.joinCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- event:
	case <-b.stopped:
	}
}

// PublishFileEvent publishes a vault file change and a throttled
// tree.updated event.
func (b *Broker) PublishFileEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.fileCh <- FileEvent{Kind: kind, Path: path}:
	case <-b.stopped:
	}
}

// PublishCompanion announces that the note of source was created or removed.
func (b *Broker) PublishCompanion(eventType, source, note string) {
	b.Publish(Event{Type: eventType, Data: CompanionEvent{Source: source, Note: note}})
}

// NoteCreated implements companion.Listener.
func (b *Broker) NoteCreated(src models.SourceFile, notePath string) {
	b.PublishCompanion(TypeCompanionCreated, src.Path, notePath)
}

// NoteRemoved implements companion.Listener.
func (b *Broker) NoteRemoved(src models.SourceFile, notePath string) {
	b.PublishCompanion(TypeCompanionRemoved, src.Path, notePath)
}

// Notify implements notify.Notifier by broadcasting a notice event.
func (b *Broker) Notify(level notify.Level, msg string) {
	b.Publish(Event{Type: TypeNotice, Data: Notice{Level: level, Text: msg}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

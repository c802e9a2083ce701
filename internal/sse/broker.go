// Package sse streams workspace changes to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event is one message on the stream. URI, when set, scopes the event to a
// single document: clients following another document do not receive it.
type Event struct {
	Type string `json:"type"`
	URI  string `json:"-"`
	Data any    `json:"data"`
}

// Event types sent to clients.
const (
	TypeDocumentUpdated = "document.updated"
	TypeDocumentRemoved = "document.removed"
	TypeProjectScanned  = "project.scanned"
	TypeTargetsUpdated  = "targets.updated"
)

// subscription is a client stream, optionally following one document.
type subscription struct {
	ch  chan []byte
	uri string
}

type workspaceEvent struct {
	kind string
	uri  string
}

// Broker fans workspace events out to stream clients.
//
// One goroutine owns the client set, the event sequence and the targets
// throttle. Everything else talks to it over channels.
type Broker struct {
	targetsMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	workspaceCh   chan workspaceEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. targetsThrottle is the minimum interval between
// two targets.updated events; zero selects two seconds.
func NewBroker(targetsThrottle time.Duration) *Broker {
	if targetsThrottle <= 0 {
		targetsThrottle = 2 * time.Second
	}

	b := &Broker{
		targetsMin:    targetsThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		workspaceCh:   make(chan workspaceEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.loop()
	return b
}

// frame renders one event in wire format. id is the event's sequence number.
func frame(id uint64, e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, e.Type, payload), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var (
		seq         uint64
		lastTargets time.Time
	)

	send := func(e Event) {
		seq++
		raw, err := frame(seq, e)
		if err != nil {
			return
		}
		for ch, follow := range clients {
			if follow != "" && e.URI != "" && follow != e.URI {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.uri

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			send(e)

		case we := <-b.workspaceCh:
			switch we.kind {
			case TypeDocumentUpdated, TypeDocumentRemoved:
				send(Event{Type: we.kind, URI: we.uri, Data: map[string]string{"uri": we.uri}})
			case TypeProjectScanned:
				// Every target was replaced, so this stands in for targets.updated.
				send(Event{Type: TypeProjectScanned, Data: map[string]string{}})
				lastTargets = time.Now()
				continue
			default:
				continue
			}

			if now := time.Now(); now.Sub(lastTargets) >= b.targetsMin {
				lastTargets = now
				send(Event{Type: TypeTargetsUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives every event.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeURI("")
}

// SubscribeURI adds a client that receives project-wide events and the
// document events of uri only. An empty uri follows everything.
func (b *Broker) SubscribeURI(uri string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, uri: uri}:
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
	case b.unsubscribeCh <- ch:
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
	case b.countReqCh <- resp:
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

// Publish sends an event to the connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishDocumentEvent forwards a workspace event. Document changes are
// followed by a throttled targets.updated. The signature matches
// workspace.EventCallback.
func (b *Broker) PublishDocumentEvent(kind, uri string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.workspaceCh <- workspaceEvent{kind: kind, uri: uri}:
	case <-b.stopped:
	}
}

// ServeHTTP is the stream endpoint (GET /api/events). The optional uri query
// parameter narrows document events to one document.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	// Tell the browser how long to wait before reconnecting.
	_, _ = w.Write([]byte("retry: " + strconv.Itoa(int(reconnectDelay/time.Millisecond)) + "\n\n"))
	flusher.Flush()

	ch := b.SubscribeURI(r.URL.Query().Get("uri"))
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
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

const reconnectDelay = 3 * time.Second

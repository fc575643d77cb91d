// Package operator contains the human-facing surfaces of the rendezvous
// broker: a websocket bridge that broadcasts ticket events and accepts
// answers, plain HTTP endpoints for listing and answering tickets, and an
// interactive console.
package operator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/toolhub/internal/rendezvous"
)

const (
	// clientQueue is the number of events buffered per websocket client.
	// A client that falls this far behind is disconnected.
	clientQueue = 32

	writeTimeout = 5 * time.Second
)

// Inbound is a message from an operator client.
type Inbound struct {
	Type     string `json:"type"` // "answer"
	TicketID string `json:"ticket_id"`
	Answer   string `json:"answer"`
}

// Outbound is a message to an operator client. Ticket events carry Kind
// "opened" or "closed"; replies to answers carry Kind "answer_result".
type Outbound struct {
	Kind     string                 `json:"kind"`
	Ticket   *rendezvous.TicketInfo `json:"ticket,omitempty"`
	TicketID string                 `json:"ticket_id,omitempty"`
	OK       bool                   `json:"ok,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Bridge fans broker events out to websocket clients. It implements
// [rendezvous.Notifier] and [http.Handler].
type Bridge struct {
	broker  *rendezvous.Broker
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan Outbound
	// kick is closed when the client is dropped for being too slow.
	kick chan struct{}
	once sync.Once
}

func (c *client) drop() { c.once.Do(func() { close(c.kick) }) }

var (
	_ rendezvous.Notifier = (*Bridge)(nil)
	_ http.Handler        = (*Bridge)(nil)
)

// NewBridge returns a bridge bound to b and subscribes it. origins are
// accepted Origin host patterns; empty means same-origin only.
func NewBridge(b *rendezvous.Broker, origins ...string) *Bridge {
	br := &Bridge{broker: b, origins: origins, clients: make(map[*client]struct{})}
	b.Subscribe(br)
	return br
}

// Clients returns the number of connected clients.
func (br *Bridge) Clients() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.clients)
}

// Notify implements [rendezvous.Notifier]. It never blocks.
func (br *Bridge) Notify(e rendezvous.Event) {
	info := e.Ticket
	msg := Outbound{Kind: e.Kind, Ticket: &info}

	br.mu.Lock()
	defer br.mu.Unlock()
	for c := range br.clients {
		select {
		case c.send <- msg:
		default:
			slog.Warn("operator: websocket client too slow, disconnecting")
			c.drop()
		}
	}
}

// ServeHTTP upgrades the request and serves one operator client until it
// disconnects. Pending tickets are replayed on connect.
func (br *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: br.origins})
	if err != nil {
		slog.Debug("operator: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	c := &client{send: make(chan Outbound, clientQueue), kick: make(chan struct{})}
	br.mu.Lock()
	for _, t := range br.broker.Pending() {
		if len(c.send) == cap(c.send) {
			break
		}
		c.send <- Outbound{Kind: "opened", Ticket: &t}
	}
	br.clients[c] = struct{}{}
	br.mu.Unlock()
	defer func() {
		br.mu.Lock()
		delete(br.clients, c)
		br.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go br.readLoop(ctx, cancel, conn, c)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-c.kick:
			conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				slog.Debug("operator: websocket write failed", "err", err)
				return
			}
		}
	}
}

// readLoop handles answers from the client. Replies go through the client's
// send queue so only the serving goroutine writes to conn.
func (br *Bridge) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()
	for {
		var in Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("operator: websocket read failed", "err", err)
			}
			return
		}
		reply := Outbound{Kind: "answer_result", TicketID: in.TicketID}
		switch in.Type {
		case "answer":
			if err := br.broker.Answer(in.TicketID, in.Answer); err != nil {
				reply.Error = err.Error()
			} else {
				reply.OK = true
			}
		default:
			reply.Kind = "error"
			reply.Error = "unknown message type " + in.Type
		}
		select {
		case c.send <- reply:
		case <-ctx.Done():
			return
		}
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/syncer"
	"github.com/desertthunder/portalsync/internal/tasks"
)

// MessageType discriminates messages sent to clients.
type MessageType string

const (
	MessageResponse       MessageType = "response"
	MessageEvent          MessageType = "event"
	MessageError          MessageType = "error"
	MessageSessionExpired MessageType = "session-expired"
)

// Request is what clients send over the socket.
type Request struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	Kind      string `json:"kind"`
	Course    string `json:"course,omitempty"`
	Directory string `json:"directory,omitempty"`
	SkipCache bool   `json:"skipCache,omitempty"`
}

// Message is what the bridge sends to clients.
type Message struct {
	Type      MessageType       `json:"type"`
	ID        string            `json:"id,omitempty"`
	Kind      models.Kind       `json:"kind,omitempty"`
	Response  any               `json:"response,omitempty"`
	Event     *tasks.Event[any] `json:"event,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// resource hides the item type of a [syncer.Resource] from the dispatcher.
type resource interface {
	get(ctx context.Context, scope models.Scope, skip bool) (any, error)
	refresh(ctx context.Context, scope models.Scope, sink func(tasks.Event[any])) (any, error)
	stream(ctx context.Context, scope models.Scope, sink func(tasks.Event[any])) (any, error)
}

type adapter[T models.Item] struct {
	r *syncer.Resource[T]
}

func (a adapter[T]) get(ctx context.Context, scope models.Scope, skip bool) (any, error) {
	return a.r.Get(ctx, scope, syncer.GetOpts{SkipCache: skip})
}

func (a adapter[T]) refresh(ctx context.Context, scope models.Scope, sink func(tasks.Event[any])) (any, error) {
	return a.r.Refresh(ctx, scope, func(ev tasks.Event[T]) { sink(ev.Erase()) })
}

func (a adapter[T]) stream(ctx context.Context, scope models.Scope, sink func(tasks.Event[any])) (any, error) {
	return a.r.Stream(ctx, scope, func(ev tasks.Event[T]) { sink(ev.Erase()) })
}

// Bridge serves the sync engine to WebSocket clients. It implements [Handler].
type Bridge struct {
	ctx       context.Context
	resources map[models.Kind]resource
	logger    *log.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewBridge creates a bridge for engine. Operations run under ctx, not the connection,
// so a client disconnecting does not abort upstream work.
func NewBridge(ctx context.Context, engine *syncer.Engine, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	b := &Bridge{
		ctx: ctx,
		resources: map[models.Kind]resource{
			models.KindHomework:  adapter[models.Homework]{r: engine.Homework},
			models.KindDocuments: adapter[models.Document]{r: engine.Documents},
		},
		logger:  shared.WithLogger(logger, "component", "bridge"),
		clients: make(map[*client]struct{}),
	}
	engine.OnSessionExpired(b.NotifySessionExpired)
	return b
}

// Routes implements [Handler].
func (b *Bridge) Routes() []string { return []string{"/ws"} }

// ServeHTTP upgrades the request and serves the connection until it closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		b.logger.Warn("websocket accept failed", "err", err)
		return
	}

	c := newClient(conn)
	b.register(c)
	defer b.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx, b.logger)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				b.logger.Debug("websocket read ended", "err", err)
			}
			break
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(Message{Type: MessageError, Error: fmt.Sprintf("%v: %v", shared.ErrInvalidInput, err)})
			continue
		}
		b.dispatch(c, req)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// ClientCount is the number of connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// NotifySessionExpired tells every client to drop its working sets.
func (b *Bridge) NotifySessionExpired() {
	b.broadcast(Message{Type: MessageSessionExpired})
}

func (b *Bridge) broadcast(msg Message) {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.send(msg)
	}
}

func (b *Bridge) register(c *client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug("client connected", "clients", n)
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	n := len(b.clients)
	b.mu.Unlock()
	b.logger.Debug("client disconnected", "clients", n)
}

// dispatch runs req in its own goroutine so a slow refresh does not block the connection.
func (b *Bridge) dispatch(c *client, req Request) {
	kind, ok := models.ParseKind(req.Kind)
	if !ok {
		c.send(Message{Type: MessageError, ID: req.ID, Error: fmt.Sprintf("%v: unknown kind %q", shared.ErrInvalidInput, req.Kind)})
		return
	}
	res := b.resources[kind]
	scope := models.Scope{CourseCode: req.Course, DirectoryID: req.Directory}

	sink := func(ev tasks.Event[any]) {
		c.send(Message{Type: MessageEvent, ID: req.ID, Kind: kind, Event: &ev})
	}

	var run func() (any, error)
	switch req.Op {
	case "get":
		run = func() (any, error) { return res.get(b.ctx, scope, req.SkipCache) }
	case "refresh":
		run = func() (any, error) { return res.refresh(b.ctx, scope, sink) }
	case "stream":
		run = func() (any, error) { return res.stream(b.ctx, scope, sink) }
	default:
		c.send(Message{Type: MessageError, ID: req.ID, Kind: kind, Error: fmt.Sprintf("%v: unknown op %q", shared.ErrInvalidInput, req.Op)})
		return
	}

	go func() {
		resp, err := run()
		if err != nil {
			c.send(Message{Type: MessageError, ID: req.ID, Kind: kind, Error: err.Error()})
			return
		}
		c.send(Message{Type: MessageResponse, ID: req.ID, Kind: kind, Response: resp})
	}()
}

// client is one connection with an unbounded outbox, so engine sinks never block on a slow socket.
type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	outbox []Message
	wake   chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, wake: make(chan struct{}, 1)}
}

func (c *client) send(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.outbox = append(c.outbox, msg)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) drain() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.outbox
	c.outbox = nil
	return out
}

func (c *client) writeLoop(ctx context.Context, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for _, msg := range c.drain() {
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("failed to marshal message", "type", msg.Type, "err", err)
				continue
			}

			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Debug("websocket write failed", "err", err)
				return
			}
		}
	}
}

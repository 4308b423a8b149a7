// Package realtime maintains the single persistent socket connection to the
// backend. The channel is constructed explicitly, started and stopped with
// the session, and handed to consumers by reference; there is no package
// level connection. Reconnection policy belongs to the caller: on disconnect
// the channel reports the error and a fresh Dial replaces it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sierrachat/client/internal/logger"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 1 << 20
	defaultSendBufSize    = 256
	subscriberBufSize     = 64
)

// Options configure a channel. Zero fields fall back to defaults.
type Options struct {
	URL            string
	Token          string
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	SendBufferSize int

	// OnDisconnect is called once when the connection is lost for any reason
	// other than Close. May be nil.
	OnDisconnect func(error)
}

func (o *Options) withDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteWait
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = defaultSendBufSize
	}
}

type subscriber struct {
	name string
	ch   chan MessageEvent
}

// Channel is one long-lived socket connection shared by the conversation
// index and every open thread. Events fan out to all subscribers; a slow or
// failing subscriber never affects the others.
// Lifecycle: Dial -> Start -> [JoinRoom, Subscribe...] -> Close -> Wait.
type Channel struct {
	conn *websocket.Conn
	opts Options
	send chan outgoing

	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int

	done     chan struct{}
	cancel   context.CancelFunc
	once     sync.Once
	discOnce sync.Once
	wg       sync.WaitGroup
}

// Dial opens the socket connection with the session bearer token attached.
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	opts.withDefaults()
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial %s: status %d: %w", opts.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial %s: %w", opts.URL, err)
	}
	return &Channel{
		conn: conn,
		opts: opts,
		send: make(chan outgoing, opts.SendBufferSize),
		subs: make(map[int]*subscriber),
		done: make(chan struct{}),
	}, nil
}

// Start launches the read and write pumps. ctx bounds their lifetime;
// cancel is stored for Close.
func (c *Channel) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pumps have exited.
func (c *Channel) Wait() {
	c.wg.Wait()
}

// Close stops the channel. Safe to call multiple times from any goroutine.
func (c *Channel) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		// Force both pumps to unblock (ReadMessage / WriteMessage will error).
		c.conn.Close()

		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[int]*subscriber)
		c.mu.Unlock()
		for _, s := range subs {
			close(s.ch)
		}
	})
}

// JoinRoom announces presence for userID after a successful login.
func (c *Channel) JoinRoom(userID string) {
	c.enqueue(outgoing{Type: eventJoinRoom, Payload: roomPayload{UserID: userID}})
}

// LeaveRoom withdraws presence on logout.
func (c *Channel) LeaveRoom(userID string) {
	c.enqueue(outgoing{Type: eventLeaveRoom, Payload: roomPayload{UserID: userID}})
}

func (c *Channel) enqueue(msg outgoing) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("realtime send buffer full, dropping %s", msg.Type)
	}
}

// Subscribe registers handler for every message event. Delivery runs on a
// dedicated goroutine per subscriber with a bounded buffer; if the buffer
// fills, events are dropped for that subscriber only, with a log line.
// The returned function unsubscribes.
func (c *Channel) Subscribe(name string, handler func(MessageEvent)) func() {
	sub := &subscriber{name: name, ch: make(chan MessageEvent, subscriberBufSize)}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		close(sub.ch)
		return func() {}
	default:
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = sub
	c.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			deliver(sub.name, handler, ev)
		}
	}()

	return func() {
		c.mu.Lock()
		s, ok := c.subs[id]
		if ok {
			delete(c.subs, id)
		}
		c.mu.Unlock()
		if ok {
			close(s.ch)
		}
	}
}

// deliver isolates a panicking handler from the rest of the fan-out.
func deliver(name string, handler func(MessageEvent), ev MessageEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("realtime subscriber %s panic: %v", name, r)
		}
	}()
	handler(ev)
}

func (c *Channel) dispatch(ev MessageEvent) {
	c.mu.RLock()
	targets := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		targets = append(targets, s)
	}
	c.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		default:
			logger.Errorf("realtime subscriber %s buffer full, dropping %s id=%s", s.name, ev.Type, ev.Message.ID)
		}
	}
}

func (c *Channel) disconnected(err error) {
	select {
	case <-c.done:
		// Deliberate Close, not a transport failure.
		return
	default:
	}
	if c.opts.OnDisconnect != nil {
		c.discOnce.Do(func() { c.opts.OnDisconnect(err) })
	}
}

// readPump reads frames from the socket and fans decoded events out.
// Exits on read error (triggered by conn.Close from Close()).
func (c *Channel) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer c.conn.Close()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout)); err != nil {
		logger.Errorf("realtime set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("realtime read error: %v", err)
			}
			c.disconnected(err)
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Errorf("realtime unmarshal error: %v", err)
			continue
		}

		switch env.Type {
		case EventNewMessage, EventMessageSent:
			var p messagePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				logger.Errorf("realtime decode %s payload: %v", env.Type, err)
				continue
			}
			c.dispatch(MessageEvent{Type: env.Type, Message: p.Message, ClientToken: p.ClientToken})
		default:
			// Unknown inbound events are skipped; newer backends may emit more.
		}
	}
}

// writePump writes control messages and keepalive pings.
func (c *Channel) writePump(ctx context.Context) {
	defer c.wg.Done()
	pingPeriod := (c.opts.PongTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil && err != websocket.ErrCloseSent {
				logger.Errorf("realtime close message: %v", err)
			}
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				logger.Errorf("realtime set write deadline: %v", err)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.disconnected(err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				logger.Errorf("realtime set write deadline: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.disconnected(err)
				return
			}
		}
	}
}

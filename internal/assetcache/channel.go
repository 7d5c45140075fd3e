package assetcache

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageSkipWaiting is sent by a page to promote the waiting version.
const MessageSkipWaiting = "SKIP_WAITING"

const (
	writeWait  = 10 * time.Second
	sendBuffer = 8
)

// channelMessage is the wire format in both directions.
type channelMessage struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Channel is the websocket hub connecting page contexts to a Registration.
// It implements Notifier.
type Channel struct {
	reg      *Registration
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan channelMessage
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewChannel creates a hub and subscribes it to reg.
func NewChannel(reg *Registration, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := &Channel{
		reg:     reg,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	reg.Subscribe(ch)
	return ch
}

func (ch *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ch.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ch.logger.Warn("asset channel upgrade", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan channelMessage, sendBuffer),
		done: make(chan struct{}),
	}
	if !ch.add(c) {
		conn.Close()
		return
	}
	defer ch.remove(c)

	// Pages that connect while a version is already waiting still need to
	// hear about it.
	if waiting, ok := ch.reg.Waiting(); ok {
		c.send <- channelMessage{Type: string(SignalUpdateAvailable), Version: waiting.Version}
	}

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		ch.writeLoop(c)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ch.logger.Debug("asset channel read", zap.Error(err))
			}
			return
		}

		var msg channelMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ch.enqueue(c, channelMessage{Type: "error", Error: "invalid message format"})
			continue
		}

		switch msg.Type {
		case MessageSkipWaiting:
			if _, err := ch.reg.Promote(r.Context()); err != nil {
				if !errors.Is(err, ErrNoWaiting) {
					ch.logger.Warn("promoting waiting asset cache", zap.Error(err))
				}
				ch.enqueue(c, channelMessage{Type: "error", Error: err.Error()})
			}
		default:
			ch.enqueue(c, channelMessage{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}

func (ch *Channel) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				ch.logger.Debug("asset channel write", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func (ch *Channel) add(c *client) bool {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return false
	}
	ch.clients[c] = struct{}{}
	ch.wg.Add(1)
	n := len(ch.clients)
	ch.mu.Unlock()

	ch.reg.observer.ClientsConnected(n)
	ch.logger.Debug("asset channel client connected", zap.Int("clients", n))
	return true
}

func (ch *Channel) remove(c *client) {
	c.close()
	ch.mu.Lock()
	delete(ch.clients, c)
	n := len(ch.clients)
	ch.mu.Unlock()
	ch.wg.Done()

	ch.reg.observer.ClientsConnected(n)
	ch.logger.Debug("asset channel client disconnected", zap.Int("clients", n))
}

func (ch *Channel) enqueue(c *client, msg channelMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		ch.logger.Warn("asset channel client too slow, dropping message", zap.String("type", msg.Type))
	}
}

// Notify sends sig to every connected page.
func (ch *Channel) Notify(sig Signal, version string) {
	ch.mu.Lock()
	clients := make([]*client, 0, len(ch.clients))
	for c := range ch.clients {
		clients = append(clients, c)
	}
	ch.mu.Unlock()

	msg := channelMessage{Type: string(sig), Version: version}
	for _, c := range clients {
		ch.enqueue(c, msg)
	}
	ch.logger.Debug("asset channel broadcast",
		zap.String("signal", string(sig)),
		zap.Int("clients", len(clients)))
}

// Clients returns the number of connected pages.
func (ch *Channel) Clients() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.clients)
}

// Close disconnects every page and waits for their goroutines to exit.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	ch.closed = true
	for c := range ch.clients {
		c.close()
	}
	ch.mu.Unlock()
	ch.wg.Wait()
	return nil
}

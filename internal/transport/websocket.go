// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"beatbox/internal/errs"
	applog "beatbox/internal/log"
)

// clientQueueDepth bounds each connection's outbound queue. A client that
// falls this far behind starts losing events rather than backpressuring the
// engine.
const clientQueueDepth = 256

// WebsocketBroadcaster fans classification results and metric events out to
// connected debug clients as JSON text frames.
//
// Thread Safety:
// - Mutex protects the client map
// - Each connection writes from its own goroutine fed by a bounded queue
// - Send marshals once and never blocks on a slow client
type WebsocketBroadcaster struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	server  *http.Server
	ln      net.Listener
	up      websocket.Upgrader

	dropped uint64 // frames lost to slow clients, read under mu
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebsocketBroadcaster binds addr and serves the stream endpoint at
// /stream. The listener is bound synchronously so the caller knows the port
// is taken (or free) immediately; serving runs in its own goroutine until
// Close.
func NewWebsocketBroadcaster(addr string) (*WebsocketBroadcaster, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStreamOpen, err, "websocket listen on %q", addr)
	}

	b := &WebsocketBroadcaster{
		clients: make(map[*wsClient]struct{}),
		ln:      ln,
		up: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", b.handleWebsocket)
	b.server = &http.Server{Handler: mux}

	go func() {
		applog.Infof("Websocket: listening on %s", ln.Addr())
		if err := b.server.Serve(ln); err != http.ErrServerClosed {
			applog.Errorf("Websocket: server error: %v", err)
		}
	}()

	return b, nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (b *WebsocketBroadcaster) Addr() string {
	return b.ln.Addr().String()
}

func (b *WebsocketBroadcaster) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.up.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("Websocket: upgrade failed: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientQueueDepth)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	applog.Infof("Websocket: client connected (%d active)", n)

	go b.writeLoop(c)

	// The read loop only watches for disconnect; clients never send payloads.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.detach(c)
				return
			}
		}
	}()
}

func (b *WebsocketBroadcaster) writeLoop(c *wsClient) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.detach(c)
			return
		}
	}
	c.conn.Close()
}

func (b *WebsocketBroadcaster) detach(c *wsClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Send marshals the payload once and queues it on every client. Full client
// queues drop the frame for that client only.
func (b *WebsocketBroadcaster) Send(data any) error {
	msg, err := json.Marshal(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.dropped++
		}
	}
	b.mu.Unlock()
	return nil
}

// ClientCount reports the number of connected clients.
func (b *WebsocketBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped reports frames lost to slow clients.
func (b *WebsocketBroadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close disconnects every client and shuts the HTTP server down.
func (b *WebsocketBroadcaster) Close() error {
	b.mu.Lock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
	return b.server.Close()
}

var _ Transport = (*WebsocketBroadcaster)(nil)

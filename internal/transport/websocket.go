package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"spectro/internal/log"
	"spectro/internal/observe"

	"github.com/gorilla/websocket"
)

const (
	sinkWebSocket = "websocket"
	writeTimeout  = time.Second
)

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Every Send is encoded once and written to all clients.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	server    *http.Server
	listener  net.Listener
	metrics   *observe.Metrics
}

// NewWebSocketTransport creates a transport that serves /ws on addr once
// Start is called. A nil metrics uses observe.DefaultMetrics().
func NewWebSocketTransport(addr string, metrics *observe.Metrics) *WebSocketTransport {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]bool),
		metrics: metrics,
	}
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// Start binds the listener and serves in the background. Bind errors are
// returned to the caller.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", wst.addr, err)
	}
	wst.listener = ln
	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Transport: Starting WebSocket server on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Transport: WebSocket server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start, or the configured one.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("Transport: WebSocket upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.metrics.SinkClients.Add(r.Context(), 1)
	log.Infof("Transport: Client connected, total: %d", total)

	// Clients never send; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

// drop removes conn once and closes it.
func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	if !ok {
		return
	}
	conn.Close()
	wst.metrics.SinkClients.Add(context.Background(), -1)
	log.Infof("Transport: Client disconnected, total: %d", total)
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Send encodes data as JSON and writes it to every connected client before
// returning. Clients that fail a write are dropped.
func (wst *WebSocketTransport) Send(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	msg, err := websocket.NewPreparedMessage(websocket.TextMessage, payload)
	if err != nil {
		return fmt.Errorf("prepare frame: %w", err)
	}

	wst.clientsMu.Lock()
	clients := make([]*websocket.Conn, 0, len(wst.clients))
	for client := range wst.clients {
		clients = append(clients, client)
	}
	wst.clientsMu.Unlock()

	ctx := context.Background()
	for _, client := range clients {
		if err := writeFrame(client, msg); err != nil {
			log.Warnf("Transport: Error sending to client: %v", err)
			wst.metrics.RecordSinkSend(ctx, sinkWebSocket, "error")
			wst.drop(client)
			continue
		}
		wst.metrics.RecordSinkSend(ctx, sinkWebSocket, "ok")
	}
	return nil
}

// frameWriter is the part of *websocket.Conn that Send writes through.
type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WritePreparedMessage(pm *websocket.PreparedMessage) error
}

// writeFrame writes msg to one client within writeTimeout.
func writeFrame(client frameWriter, msg *websocket.PreparedMessage) error {
	if err := client.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := client.WritePreparedMessage(msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close disconnects every client and shuts down the server.
func (wst *WebSocketTransport) Close() error {
	log.Infof("Transport: Closing WebSocket server")

	wst.clientsMu.Lock()
	clients := make([]*websocket.Conn, 0, len(wst.clients))
	for client := range wst.clients {
		clients = append(clients, client)
	}
	wst.clientsMu.Unlock()
	for _, client := range clients {
		wst.drop(client)
	}

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)

package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport adapts a *websocket.Conn to the Transport interface,
// speaking one text line per WebSocket text frame. This is the second
// concrete transport alongside TCPTransport; the connection manager and
// everything above it stay transport-agnostic.
type WebSocketTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	buf    []byte // leftover bytes from a frame that held more than one line
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewWebSocketTransport upgrades an HTTP connection to a WebSocket and
// wraps it as a Transport.
func NewWebSocketTransport(w http.ResponseWriter, r *http.Request) (*WebSocketTransport, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

// ReadLine reads one line of input, buffering across frame boundaries so a
// client that sends multiple newline-separated commands in one frame (or
// splits one command across frames) both work.
func (t *WebSocketTransport) ReadLine() (string, error) {
	for {
		if idx := indexByte(t.buf, '\n'); idx >= 0 {
			line := string(trimCR(t.buf[:idx]))
			t.buf = t.buf[idx+1:]
			return line, nil
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		t.buf = append(t.buf, data...)
		if len(t.buf) > 0 && t.buf[len(t.buf)-1] != '\n' {
			// A frame with no trailing newline is still a complete command
			// from a browser client that sends one message per line.
			line := string(trimCR(t.buf))
			t.buf = nil
			return line, nil
		}
	}
}

// WriteLine writes one text frame per line.
func (t *WebSocketTransport) WriteLine(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Close closes the underlying WebSocket connection.
func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the remote address of the underlying connection.
func (t *WebSocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func trimCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

// ListenWebSocket starts an HTTP server serving a WebSocket endpoint at
// path, handing each upgraded connection to the same HandleConnection loop
// TCP connections use.
func (cm *ConnectionManager) ListenWebSocket(addr, path string) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		transport, err := NewWebSocketTransport(w, r)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		conn := cm.NewConnectionFromTransport(transport)
		log.Printf("New WebSocket connection from %s (ID: %d)", conn.RemoteAddr(), conn.ID)
		go cm.HandleConnection(conn)
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket listen failed: %w", err)
	}

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket server error: %v", err)
		}
	}()

	log.Printf("Listening for WebSocket connections on %s%s", addr, path)
	return nil
}

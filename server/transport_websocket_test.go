package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer wires a single WebSocketTransport up behind an httptest server
// and hands it back to the test along with a dialed client connection.
func wsServer(t *testing.T) (*WebSocketTransport, *websocket.Conn, func()) {
	t.Helper()

	transportCh := make(chan *WebSocketTransport, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/moo", func(w http.ResponseWriter, r *http.Request) {
		transport, err := NewWebSocketTransport(w, r)
		require.NoError(t, err)
		transportCh <- transport
	})

	srv := httptest.NewServer(mux)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/moo"

	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	serverTransport := <-transportCh

	cleanup := func() {
		clientConn.Close()
		serverTransport.Close()
		srv.Close()
	}
	return serverTransport, clientConn, cleanup
}

func TestWebSocketTransportReadLine(t *testing.T) {
	serverTransport, clientConn, cleanup := wsServer(t)
	defer cleanup()

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("look\n")))

	line, err := serverTransport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "look", line)
}

func TestWebSocketTransportReadLineNoTrailingNewline(t *testing.T) {
	serverTransport, clientConn, cleanup := wsServer(t)
	defer cleanup()

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("@quit")))

	line, err := serverTransport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "@quit", line)
}

func TestWebSocketTransportReadLineMultipleInOneFrame(t *testing.T) {
	serverTransport, clientConn, cleanup := wsServer(t)
	defer cleanup()

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("first\r\nsecond\r\n")))

	first, err := serverTransport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	second, err := serverTransport.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "second", second)
}

func TestWebSocketTransportWriteLine(t *testing.T) {
	serverTransport, clientConn, cleanup := wsServer(t)
	defer cleanup()

	require.NoError(t, serverTransport.WriteLine("You see a rubber chicken."))

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "You see a rubber chicken.", string(data))
}

func TestWebSocketTransportRemoteAddr(t *testing.T) {
	serverTransport, _, cleanup := wsServer(t)
	defer cleanup()

	assert.NotEmpty(t, serverTransport.RemoteAddr())
}

package moonraker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + websocketPath
}

func TestWSDialer_RoundTrip(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	gotKey := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey <- r.Header.Get("X-Api-Key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"connection_id": 1}})
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	conn, err := WSDialer{APIKey: "k"}.Dial(ctx, wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(NewRequest(MethodIdentify, nil, 1)))
	data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, "1", msg.IDString())
	require.Equal(t, "k", <-gotKey)

	// Server handler returned and closed the socket.
	_, err = conn.ReadMessage()
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestWSDialer_UnauthorizedIsReject(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	_, err := WSDialer{}.Dial(context.Background(), wsURL(server))
	require.True(t, IsAuthError(err), "err = %v, want auth reject", err)
}

func TestWSDialer_UnreachableIsTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	_, err := WSDialer{HandshakeTimeout: time.Second}.Dial(context.Background(), url)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

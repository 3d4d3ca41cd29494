package network

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proximityvoice/relay/pkg/messages"
)

// wsPair dials a real websocket connection against an in-process server and
// returns the server-side transport plus the client conn for reading.
func wsPair(t *testing.T) (*wsTransport, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	conn := <-serverSide
	t.Cleanup(func() { conn.Close() })
	return newWSTransport(conn), client
}

func TestWSTransportSendJSON(t *testing.T) {
	transport, client := wsPair(t)

	require.NoError(t, transport.SendJSON(messages.Pong{
		Type:      messages.MessageTypePong,
		Timestamp: 42,
	}))

	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"type":"pong","timestamp":42}`, string(data))
}

func TestWSTransportSendBinary(t *testing.T) {
	transport, client := wsPair(t)

	frame := messages.TagAudioFrame(7, []byte{1, 2, 3})
	require.NoError(t, transport.SendBinary(frame))

	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, frame, data)
}

func TestWSTransportConcurrentWrites(t *testing.T) {
	transport, client := wsPair(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, transport.SendBinary([]byte{9}))
		}()
	}

	for i := 0; i < 8; i++ {
		_, _, err := client.ReadMessage()
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestWSTransportWriteAfterCloseErrors(t *testing.T) {
	transport, _ := wsPair(t)
	require.NoError(t, transport.Close())

	// Writes never block on a dead connection; they fail and are isolated
	// by the caller like any other delivery error.
	assert.Error(t, transport.SendBinary([]byte{9}))
	assert.Error(t, transport.SendJSON(messages.Pong{Type: messages.MessageTypePong}))
}

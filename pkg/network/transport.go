package network

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every transport write so a wedged peer fails fast instead
// of blocking the broadcast tick or the audio fan-out behind the write mutex.
const writeWait = 10 * time.Second

// wsTransport wraps a websocket connection behind the sessions.Transport
// interface. A single mutex serializes writes; gorilla connections allow at
// most one concurrent writer.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("writing text message: %w", err)
	}
	return nil
}

func (t *wsTransport) SendBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writing binary message: %w", err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

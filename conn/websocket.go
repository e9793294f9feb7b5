package conn

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketConnection adapts a gorilla/websocket connection to the byte-stream
// Connection interface, buffering partially-consumed binary messages since the
// wire codec reads arbitrary byte counts rather than whole messages.
type WebSocketConnection struct {
	ws *websocket.Conn

	readMu  sync.Mutex
	pending bytes.Buffer

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// DialWebSocket connects to a VM exposing a debug endpoint over WebSocket.
func DialWebSocket(url string) (*WebSocketConnection, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial vm at %s: %w", url, err)
	}
	return NewWebSocketConnection(ws), nil
}

// NewWebSocketConnection wraps an already-established *websocket.Conn.
func NewWebSocketConnection(ws *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{ws: ws, done: make(chan struct{})}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()

	for w.pending.Len() == 0 {
		_, data, err := w.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.pending.Write(data)
	}
	return w.pending.Read(p)
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.ws.Close()
		close(w.done)
	})
	return err
}

func (w *WebSocketConnection) Done() <-chan struct{} { return w.done }

func (w *WebSocketConnection) Description() string {
	return fmt.Sprintf("websocket://%s", w.ws.RemoteAddr())
}

var _ io.ReadWriteCloser = (*WebSocketConnection)(nil)

package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// leg serializes writes to one socket; gorilla allows a single concurrent
// writer. Close may be called from any goroutine and runs once.
type leg struct {
	name         string
	conn         Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newLeg(name string, conn Conn, writeTimeout time.Duration) *leg {
	return &leg{name: name, conn: conn, writeTimeout: writeTimeout}
}

func (l *leg) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeTimeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// close sends a normal-closure frame, best effort, then drops the connection.
func (l *leg) close() {
	l.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = l.conn.Close()
	})
}

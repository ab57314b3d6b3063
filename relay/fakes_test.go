package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AVVKavvk/voz-balance/models"
	"github.com/AVVKavvk/voz-balance/tools"
)

type fakeConn struct {
	in      chan []byte
	readErr chan error
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	closes   int
	closedAt time.Time
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 256),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}
	select {
	case m := <-c.in:
		return websocket.TextMessage, m, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	if c.closedAt.IsZero() {
		c.closedAt = time.Now()
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	var data []byte
	switch x := v.(type) {
	case string:
		data = []byte(x)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	c.in <- data
}

func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.written))
	for _, w := range c.written {
		var m map[string]any
		if err := json.Unmarshal(w, &m); err != nil {
			t.Fatalf("written frame is not json: %q", w)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) count(t *testing.T, key, value string) int {
	n := 0
	for _, m := range c.messages(t) {
		if m[key] == value {
			n++
		}
	}
	return n
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) closeTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt
}

func (c *fakeConn) closeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeDialer struct {
	gate chan struct{}
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type memSink struct {
	mu  sync.Mutex
	got []models.TranscriptModel
}

func (m *memSink) AppendTranscript(_ context.Context, t models.TranscriptModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, t)
	return nil
}

func (m *memSink) all() []models.TranscriptModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TranscriptModel(nil), m.got...)
}

type fakeTools struct {
	called chan json.RawMessage
}

func (f *fakeTools) Known(name string) bool { return name == tools.SendEmail }

func (f *fakeTools) Dispatch(_ context.Context, _ string, params json.RawMessage) (tools.Output, error) {
	f.called <- params
	return tools.Output{Success: true}, nil
}

// --- helpers ---

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	s       *Session
	tel     *fakeConn
	ai      *fakeConn
	dialer  *fakeDialer
	runDone chan struct{}
}

func startSession(t *testing.T, dialer *fakeDialer, opts Options) *harness {
	t.Helper()
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	h := &harness{tel: newFakeConn(), ai: dialer.conn, dialer: dialer, runDone: make(chan struct{})}
	h.s = NewSession(h.tel, dialer, opts)
	go func() {
		defer close(h.runDone)
		h.s.Run(context.Background())
	}()
	t.Cleanup(func() {
		_ = h.tel.Close()
		select {
		case <-h.runDone:
		case <-time.After(3 * time.Second):
			t.Errorf("session did not shut down")
		}
	})
	return h
}

// startActive starts a session whose AI leg opens immediately and waits for Active.
func startActive(t *testing.T, opts Options) *harness {
	t.Helper()
	h := startSession(t, &fakeDialer{conn: newFakeConn()}, opts)
	eventually(t, "session active", func() bool { return h.s.State() == StateActive })
	return h
}

func mediaMsg(audio []byte) map[string]any {
	return map[string]any{
		"event": "media",
		"media": map[string]any{"track": "inbound", "payload": base64.StdEncoding.EncodeToString(audio)},
	}
}

func startMsg(streamSid, callSid string) map[string]any {
	return map[string]any{
		"event": "start",
		"start": map[string]any{"streamSid": streamSid, "callSid": callSid, "accountSid": "AC1"},
	}
}

// syncStart sends a start event and waits for it to be applied. Since the
// telephony leg is processed in order, everything sent before it is handled too.
func (h *harness) syncStart(t *testing.T, streamSid string) {
	t.Helper()
	h.tel.send(t, startMsg(streamSid, "CA"+streamSid))
	eventually(t, "stream start", func() bool { return h.s.StreamSid() == streamSid })
}

var errBoom = errors.New("boom")

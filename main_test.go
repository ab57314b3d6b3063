package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/AVVKavvk/voz-balance/config"
	"github.com/AVVKavvk/voz-balance/models"
	"github.com/AVVKavvk/voz-balance/notify"
	"github.com/AVVKavvk/voz-balance/relay"
	"github.com/AVVKavvk/voz-balance/telephony"
	"github.com/AVVKavvk/voz-balance/tools"
)

type fakeNotifier struct {
	got []models.IntakeRecord
	res notify.Result
}

func (f *fakeNotifier) Send(_ context.Context, rec models.IntakeRecord) notify.Result {
	f.got = append(f.got, rec)
	return f.res
}

type fakeCalls struct {
	got  telephony.OutboundCall
	info telephony.CallInfo
	err  error
}

func (f *fakeCalls) PlaceCall(_ context.Context, call telephony.OutboundCall) (telephony.CallInfo, error) {
	f.got = call
	return f.info, f.err
}

func testConfig() config.Config {
	return config.Config{
		Port:        "8001",
		RoutePrefix: "/voz-balance",
		Relay: config.Relay{
			ConnectTimeout: 2 * time.Second,
			CloseGrace:     100 * time.Millisecond,
			WriteTimeout:   time.Second,
		},
	}
}

func newTestServer(n tools.Notifier, calls callPlacer, dialer relay.Dialer) *server {
	s := &server{
		cfg:      testConfig(),
		dialer:   dialer,
		tools:    tools.NewDispatcher(),
		calls:    calls,
		upgrader: newUpgrader(),
	}
	s.tools.Register(tools.SendEmail, tools.NewSendEmail(n, nil))
	return s
}

func do(e *echo.Echo, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("body is not json: %q", rec.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	e := newTestServer(&fakeNotifier{}, &fakeCalls{}, nil).routes()
	rec := do(e, http.MethodGet, "/voz-balance/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if got := decode(t, rec)["message"]; got != "Server is running-balance-port-8001" {
		t.Fatalf("message=%v", got)
	}
}

func TestInboundCallAnyMethod(t *testing.T) {
	e := newTestServer(&fakeNotifier{}, &fakeCalls{}, nil).routes()
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/voz-balance/inbound_call", strings.NewReader("CallSid=CA1&From=%2B1555"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		req.Host = "balance.example.com"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", method, rec.Code)
		}
		if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/xml") {
			t.Fatalf("content-type=%q", ct)
		}
		if !strings.Contains(rec.Body.String(), `url="wss://balance.example.com/voz-balance/media-stream"`) {
			t.Fatalf("%s twiml=%s", method, rec.Body.String())
		}
	}
}

func TestSendEmail(t *testing.T) {
	n := &fakeNotifier{res: notify.Result{Success: true, MessageID: "<m1@x>"}}
	e := newTestServer(n, &fakeCalls{}, nil).routes()

	rec := do(e, http.MethodPost, "/voz-balance/send-email", echo.MIMEApplicationJSON,
		`{"nombre":"Ana Ruiz","telefono":3001234567,"necesidad_dental":"Limpieza"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != true || !strings.Contains(body["message"].(string), "enviados correctamente") {
		t.Fatalf("body=%v", body)
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if len(n.got) != 1 || n.got[0].Phone != "3001234567" {
		t.Fatalf("notifier got %+v", n.got)
	}
}

func TestSendEmailDeliveryFailure(t *testing.T) {
	n := &fakeNotifier{res: notify.Result{Success: false, Error: notify.ErrRecipientNotConfigured.Error()}}
	e := newTestServer(n, &fakeCalls{}, nil).routes()

	rec := do(e, http.MethodPost, "/voz-balance/send-email", echo.MIMEApplicationJSON, `{"nombre":"Ana"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != false || !strings.Contains(body["message"].(string), "Hubo un problema") {
		t.Fatalf("body=%v", body)
	}
}

func TestSendEmailMalformedBody(t *testing.T) {
	n := &fakeNotifier{}
	e := newTestServer(n, &fakeCalls{}, nil).routes()

	rec := do(e, http.MethodPost, "/voz-balance/send-email", echo.MIMEApplicationJSON, `{"nombre":`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != false || body["message"] != internalErrorMessage || body["error"] == "" {
		t.Fatalf("body=%v", body)
	}
	if len(n.got) != 0 {
		t.Fatalf("notifier must not be called")
	}
}

func TestSendEmailFormBody(t *testing.T) {
	n := &fakeNotifier{res: notify.Result{Success: true}}
	e := newTestServer(n, &fakeCalls{}, nil).routes()

	rec := do(e, http.MethodPost, "/voz-balance/send-email", echo.MIMEApplicationForm,
		"nombre=Ana+Ruiz&telefono=3001234567&callSid=CA77")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["success"] != true {
		t.Fatalf("body=%v", body)
	}
	if len(n.got) != 1 {
		t.Fatalf("notifier got %+v", n.got)
	}
	if got := n.got[0]; got.Name != "Ana Ruiz" || got.Phone != "3001234567" || got.CallSid != "CA77" {
		t.Fatalf("intake=%+v", got)
	}
}

func TestSendEmailBodyTooLarge(t *testing.T) {
	n := &fakeNotifier{}
	e := newTestServer(n, &fakeCalls{}, nil).routes()

	big := `{"nombre":"Ana","notas_adicionales":"` + strings.Repeat("x", 65*1024) + `"}`
	rec := do(e, http.MethodPost, "/voz-balance/send-email", echo.MIMEApplicationJSON, big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", rec.Code)
	}
	if len(n.got) != 0 {
		t.Fatalf("notifier must not be called")
	}
}

func TestPanicBecomesJSON500(t *testing.T) {
	e := newTestServer(&fakeNotifier{}, &fakeCalls{}, nil).routes()
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })

	rec := do(e, http.MethodGet, "/boom", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	body := decode(t, rec)
	if body["message"] != internalErrorMessage || !strings.Contains(body["error"].(string), "kaboom") {
		t.Fatalf("body=%v", body)
	}
}

func TestDebugRoutes(t *testing.T) {
	e := newTestServer(&fakeNotifier{}, &fakeCalls{}, nil).routes()
	for _, path := range []string{"/debug/routes", "/voz-balance/debug/routes"} {
		rec := do(e, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rec.Code)
		}
		var body struct {
			Routes []string `json:"routes"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		joined := strings.Join(body.Routes, "\n")
		for _, want := range []string{"GET /voz-balance/health", "POST /voz-balance/send-email", "GET /voz-balance/media-stream"} {
			if !strings.Contains(joined, want) {
				t.Fatalf("%s missing %q in %v", path, want, body.Routes)
			}
		}
	}
}

func TestMetricsExposed(t *testing.T) {
	e := newTestServer(&fakeNotifier{}, &fakeCalls{}, nil).routes()
	rec := do(e, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "relay_sessions_active") {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestOutboundCall(t *testing.T) {
	calls := &fakeCalls{info: telephony.CallInfo{Sid: "CA9", Status: "queued"}}
	s := newTestServer(&fakeNotifier{}, calls, nil)
	s.cfg.PublicHost = "balance.example.com"
	e := s.routes()

	rec := do(e, http.MethodPost, "/voz-balance/outbound-call", echo.MIMEApplicationJSON,
		`{"from_number":"+15550001","to_number":"+573001234567"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if calls.got.To != "+573001234567" || calls.got.StatusCallback != "https://balance.example.com/voz-balance/call-status" {
		t.Fatalf("call=%+v", calls.got)
	}
	if !strings.Contains(calls.got.TwiML, "wss://balance.example.com/voz-balance/media-stream") {
		t.Fatalf("twiml=%s", calls.got.TwiML)
	}
	data := decode(t, rec)["data"].(map[string]any)
	if data["sid"] != "CA9" {
		t.Fatalf("data=%v", data)
	}
}

func TestOutboundCallErrors(t *testing.T) {
	cases := []struct {
		name  string
		calls callPlacer
		body  string
		code  int
	}{
		{"missing numbers", &fakeCalls{}, `{"from_number":"+1"}`, http.StatusBadRequest},
		{"not configured", telephony.NewClient("", ""), `{"from_number":"+1","to_number":"+2"}`, http.StatusServiceUnavailable},
		{"twilio error", &fakeCalls{err: errors.New("21211")}, `{"from_number":"+1","to_number":"+2"}`, http.StatusBadGateway},
	}
	for _, c := range cases {
		e := newTestServer(&fakeNotifier{}, c.calls, nil).routes()
		rec := do(e, http.MethodPost, "/voz-balance/outbound-call", echo.MIMEApplicationJSON, c.body)
		if rec.Code != c.code {
			t.Errorf("%s: status=%d want %d", c.name, rec.Code, c.code)
		}
		if decode(t, rec)["success"] != false {
			t.Errorf("%s: body=%s", c.name, rec.Body.String())
		}
	}
}

func TestCallStatus(t *testing.T) {
	e := newTestServer(&fakeNotifier{}, &fakeCalls{}, nil).routes()
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"42"}}
	rec := do(e, http.MethodPost, "/voz-balance/call-status", echo.MIMEApplicationForm, form.Encode())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d", rec.Code)
	}
}

// TestMediaStreamRelay runs a real telephony client and a fake ConvAI server
// against the echo server over WebSockets.
func TestMediaStreamRelay(t *testing.T) {
	aiGot := make(chan map[string]any, 16)
	aiConn := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		aiConn <- c
		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				return
			}
			aiGot <- m
		}
	}))
	defer ai.Close()

	dialer, err := relay.NewElevenLabsDialer("ws"+strings.TrimPrefix(ai.URL, "http"), "agent", "key")
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	srv := httptest.NewServer(newTestServer(&fakeNotifier{}, &fakeCalls{}, dialer).routes())
	defer srv.Close()

	tel, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/voz-balance/media-stream", nil)
	if err != nil {
		t.Fatalf("dial media-stream: %v", err)
	}
	defer tel.Close()
	_ = tel.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready map[string]any
	if err := tel.ReadJSON(&ready); err != nil || ready["event"] != "server_ready" {
		t.Fatalf("server_ready: %v %v", ready, err)
	}
	aiSide := <-aiConn

	if err := tel.WriteJSON(map[string]any{"event": "start", "start": map[string]any{"streamSid": "MZ1", "callSid": "CA1"}}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	if err := tel.WriteJSON(map[string]any{"event": "media", "media": map[string]any{"payload": "AAEC"}}); err != nil {
		t.Fatalf("write media: %v", err)
	}
	select {
	case m := <-aiGot:
		if m["user_audio_chunk"] != "AAEC" {
			t.Fatalf("ai got %v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("audio not relayed to ai")
	}

	if err := aiSide.WriteJSON(map[string]any{"type": "audio", "audio_event": map[string]any{"audio_base_64": "BBCC"}}); err != nil {
		t.Fatalf("ai write: %v", err)
	}
	var media map[string]any
	if err := tel.ReadJSON(&media); err != nil {
		t.Fatalf("read media: %v", err)
	}
	if media["event"] != "media" || media["streamSid"] != "MZ1" || media["media"].(map[string]any)["payload"] != "BBCC" {
		t.Fatalf("media=%v", media)
	}

	if err := aiSide.WriteJSON(map[string]any{"type": "ping", "ping_event": map[string]any{"event_id": 7}}); err != nil {
		t.Fatalf("ai write ping: %v", err)
	}
	select {
	case m := <-aiGot:
		if m["type"] != "pong" || m["event_id"] != float64(7) {
			t.Fatalf("pong=%v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no pong")
	}

	// A normal AI closure ends the call after the grace period.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation ended")
	_ = aiSide.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	for {
		if _, _, err := tel.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) || ce.Code != websocket.CloseNormalClosure {
				t.Fatalf("telephony closed with %v", err)
			}
			break
		}
	}
}

package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

const userAgent = "Twilio-WebSocket-Bridge/1.0"

// WSDialer opens the conversational AI WebSocket for one agent.
type WSDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewElevenLabsDialer builds a dialer for the ConvAI conversation endpoint,
// authenticated with the xi-api-key header.
func NewElevenLabsDialer(baseURL, agentID, apiKey string) (*WSDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse conversational AI url: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("xi-api-key", apiKey)
	header.Set("User-Agent", userAgent)

	return &WSDialer{
		URL:    u.String(),
		Header: header,
		Dialer: &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  16384,
			WriteBufferSize: 16384,
		},
	}, nil
}

// Dial connects; the handshake is bounded by ctx.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.Dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial conversational AI: %w (http %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial conversational AI: %w", err)
	}
	return conn, nil
}

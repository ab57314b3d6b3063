package relay

import (
	"errors"

	"github.com/gorilla/websocket"
)

// ElevenLabs closes with 3000 when the API key or agent id is rejected.
const closeAuthFailed = 3000

const (
	classNormal        = "normal"
	classAuth          = "auth"
	classNetwork       = "network"
	classUnclassified  = "unclassified"
	classConnectFailed = "connect_failed"
)

func closeCode(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return 0, ""
}

// classifyClose maps an AI close code to a log/metric class. Code 0 means the
// socket failed without a close frame.
func classifyClose(code int) string {
	switch code {
	case websocket.CloseNormalClosure:
		return classNormal
	case closeAuthFailed:
		return classAuth
	case websocket.CloseAbnormalClosure, 0:
		return classNetwork
	}
	return classUnclassified
}

func closeMessage(class string) string {
	switch class {
	case classAuth:
		return "authentication error, check the API key and agent id"
	case classNetwork:
		return "connection error, network or server issue"
	}
	return "conversational AI closed abnormally"
}

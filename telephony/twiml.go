// Package telephony holds the Twilio side of the service: the TwiML that points
// a call at the media-stream WebSocket, and placing outbound calls.
package telephony

import (
	"fmt"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// StreamURL is the secure WebSocket URL Twilio should open for a call.
func StreamURL(host, path string) string {
	return "wss://" + strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(path, "/")
}

// ConnectStream renders <Response><Connect><Stream url=.../></Connect></Response>.
func ConnectStream(streamURL string) (string, error) {
	stream := &twiml.VoiceStream{Url: streamURL}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	doc, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return "", fmt.Errorf("render twiml: %w", err)
	}
	return doc, nil
}

package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/telephony"
)

// HandleIncomingCall answers Twilio's voice webhook with TwiML that connects
// the call to our media-stream WebSocket on the host Twilio called.
func (s *server) HandleIncomingCall(c echo.Context) error {
	req := c.Request()
	log.Info().
		Str("method", req.Method).
		Str("call_sid", c.FormValue("CallSid")).
		Str("from", c.FormValue("From")).
		Str("to", c.FormValue("To")).
		Msg("incoming call received")

	doc, err := telephony.ConnectStream(telephony.StreamURL(req.Host, s.cfg.Route("media-stream")))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(doc))
}

package main

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/relay"
)

// HandleMediaStream upgrades the Twilio media-stream request and relays it to
// the conversational AI until either side hangs up.
func (s *server) HandleMediaStream(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		log.Warn().Err(err).Msg("media stream upgrade failed")
		return nil
	}

	session := relay.NewSession(ws, s.dialer, s.relayOptions())
	session.Run(c.Request().Context())
	return nil
}

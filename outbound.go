package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/telephony"
)

// OutboundCallRequest is the JSON body of POST /outbound-call.
type OutboundCallRequest struct {
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
}

// HandleOutboundCall dials a number through Twilio and connects the answered
// call to the media stream, the same way an inbound call is connected.
func (s *server) HandleOutboundCall(c echo.Context) error {
	req := new(OutboundCallRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	if req.FromNumber == "" || req.ToNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing 'from_number' or 'to_number' in request body")
	}

	host := s.cfg.PublicHost
	if host == "" {
		host = c.Request().Host
	}
	doc, err := telephony.ConnectStream(telephony.StreamURL(host, s.cfg.Route("media-stream")))
	if err != nil {
		return err
	}

	info, err := s.calls.PlaceCall(c.Request().Context(), telephony.OutboundCall{
		From:           req.FromNumber,
		To:             req.ToNumber,
		TwiML:          doc,
		StatusCallback: "https://" + host + s.cfg.Route("call-status"),
	})
	switch {
	case errors.Is(err, telephony.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Twilio credentials not configured")
	case err != nil:
		log.Error().Err(err).Str("to", req.ToNumber).Msg("outbound call failed")
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("Twilio API request failed: %v", err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    info,
	})
}

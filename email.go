package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/metrics"
	"github.com/AVVKavvk/voz-balance/tools"
)

// sendEmailBodyLimit caps an intake record, transcript included.
const sendEmailBodyLimit = "64K"

type sendEmailResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HandleSendEmail is called by the voice agent's webhook tool with the
// client intake record collected during the call.
func (s *server) HandleSendEmail(c echo.Context) error {
	body, err := readToolParams(c)
	if err != nil {
		return err
	}
	log.Info().Bytes("body", body).Msg("send-email request")
	metrics.ToolCalls.WithLabelValues(tools.SendEmail, "http").Inc()

	// The agent may drop the HTTP call once it has its answer; the email
	// still has to go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 30*time.Second)
	defer cancel()

	out, err := s.tools.Dispatch(ctx, tools.SendEmail, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sendEmailResponse{
		Success:   out.Success,
		Message:   out.Message,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// readToolParams returns the request body as tool parameters. Form posts are
// re-encoded as a flat JSON object so both shapes decode the same way.
func readToolParams(c echo.Context) ([]byte, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		return io.ReadAll(c.Request().Body)
	}
	form, err := c.FormParams()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid form body")
	}
	params := make(map[string]any, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return json.Marshal(params)
}

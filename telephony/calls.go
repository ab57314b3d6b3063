package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrNotConfigured = errors.New("twilio credentials not configured")

// OutboundCall describes a call to place.
type OutboundCall struct {
	From           string
	To             string
	TwiML          string
	StatusCallback string
}

// CallInfo is what Twilio reports back after accepting a call.
type CallInfo struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

type callCreator interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
}

// Client places calls through the Twilio REST API.
type Client struct {
	api callCreator
}

// NewClient returns nil when either credential is missing.
func NewClient(accountSID, authToken string) *Client {
	if accountSID == "" || authToken == "" {
		return nil
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{api: rc.Api}
}

func (c *Client) PlaceCall(ctx context.Context, call OutboundCall) (CallInfo, error) {
	if c == nil || c.api == nil {
		return CallInfo{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return CallInfo{}, err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(call.To)
	params.SetFrom(call.From)
	params.SetTwiml(call.TwiML)
	if call.StatusCallback != "" {
		params.SetStatusCallback(call.StatusCallback)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}

	resp, err := c.api.CreateCall(params)
	if err != nil {
		return CallInfo{}, fmt.Errorf("create call: %w", err)
	}

	info := CallInfo{
		Sid:    deref(resp.Sid),
		Status: deref(resp.Status),
		To:     deref(resp.To),
		From:   deref(resp.From),
	}
	log.Info().Str("call_sid", info.Sid).Str("status", info.Status).Str("to", info.To).Msg("outbound call placed")
	return info, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

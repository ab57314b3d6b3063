package tools

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/models"
	"github.com/AVVKavvk/voz-balance/notify"
)

const (
	sendEmailOK   = "Los datos del cliente han sido enviados correctamente al equipo de Balance Industry. Se contactarán pronto para confirmar la cita."
	sendEmailFail = "Hubo un problema al procesar los datos. Por favor, anote el número para que nos contactemos directamente."
)

// Notifier is the part of notify.Sender the send_email tool needs.
type Notifier interface {
	Send(ctx context.Context, rec models.IntakeRecord) notify.Result
}

// TranscriptSource looks up what was said on a call.
type TranscriptSource interface {
	GetAllTranscript(ctx context.Context, callId string) ([]models.TranscriptModel, error)
}

// NewSendEmail returns the send_email tool. When the agent omits the
// transcript but passes a call sid, transcripts (may be nil) fills it in.
func NewSendEmail(n Notifier, transcripts TranscriptSource) Func {
	return func(ctx context.Context, params json.RawMessage) (Output, error) {
		rec, err := models.ParseIntake(params)
		if err != nil {
			return Output{}, err
		}
		return SendIntake(ctx, n, transcripts, rec), nil
	}
}

// SendIntake notifies the supervisor about one intake record.
func SendIntake(ctx context.Context, n Notifier, transcripts TranscriptSource, rec models.IntakeRecord) Output {
	log.Info().Str("nombre", rec.Name).Str("telefono", rec.Phone).Msg("sending client data")

	if rec.Transcript == "" && rec.CallSid != "" && transcripts != nil {
		lines, err := transcripts.GetAllTranscript(ctx, rec.CallSid)
		if err != nil {
			log.Warn().Err(err).Str("call_sid", rec.CallSid).Msg("transcript lookup failed")
		} else {
			rec.Transcript = models.FormatTranscript(lines)
		}
	}

	res := n.Send(ctx, rec)
	if !res.Success {
		log.Error().Str("error", res.Error).Msg("client data notification failed")
		return Output{Success: false, Message: sendEmailFail, Error: res.Error}
	}
	log.Info().Str("message_id", res.MessageID).Msg("client data sent")
	return Output{Success: true, Message: sendEmailOK}
}

package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/AVVKavvk/voz-balance/models"
)

const noTranscript = "Transcripción no disponible"

type emailData struct {
	Name              string
	Phone             string
	BirthDate         string
	Timestamp         string
	Duration          string
	DentalNeed        string
	DentalInsurance   string
	PreferredDate     string
	PreferredSchedule string
	Notes             string
	CallSid           string
	Transcript        string
	HasTranscript     bool
}

func newEmailData(rec models.IntakeRecord, now time.Time) emailData {
	transcript := strings.TrimSpace(rec.Transcript)
	return emailData{
		Name:              or(rec.Name, "No proporcionado"),
		Phone:             or(rec.Phone, "No proporcionado"),
		BirthDate:         or(rec.BirthDate, "No proporcionada"),
		Timestamp:         now.Format("2/1/2006, 15:04:05"),
		Duration:          or(rec.Duration, "No disponible"),
		DentalNeed:        or(rec.DentalNeed, "No especificada"),
		DentalInsurance:   or(rec.DentalInsurance, "No proporcionado / Sin seguro"),
		PreferredDate:     or(rec.PreferredDate, "Flexible"),
		PreferredSchedule: or(rec.PreferredSchedule, "No especificado"),
		Notes:             or(rec.Notes, "Ninguna"),
		CallSid:           or(rec.CallSid, "N/A"),
		Transcript:        or(transcript, noTranscript),
		HasTranscript:     transcript != "" && transcript != noTranscript,
	}
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

var textTmpl = texttemplate.Must(texttemplate.New("text").Parse(`NUEVA SOLICITUD DE CITA DENTAL - BALANCE INDUSTRY

Información del Cliente:
- Nombre: {{.Name}}
- Teléfono: {{.Phone}}
- Fecha de Nacimiento: {{.BirthDate}}
- Fecha y Hora de Llamada: {{.Timestamp}}
- Duración: {{.Duration}}

Información Dental:
- Necesidad: {{.DentalNeed}}
- Seguro: {{.DentalInsurance}}
- Fecha Preferida: {{.PreferredDate}}
- Horario Preferido: {{.PreferredSchedule}}
- Notas Adicionales: {{.Notes}}

ACCIÓN REQUERIDA: Contactar al cliente para confirmar y agendar la cita dental.

Transcripción:
{{.Transcript}}

Call SID: {{.CallSid}}
`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 10px;">
  <h2 style="color: #0066cc; text-align: center;">🦷 Balance - Nueva Solicitud de Cita</h2>

  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <h3 style="color: #333; margin-top: 0;">👤 Información del Cliente</h3>
    <p><strong>Nombre:</strong> {{.Name}}</p>
    <p><strong>📞 Teléfono:</strong> {{.Phone}}</p>
    <p><strong>🎂 Fecha de Nacimiento:</strong> {{.BirthDate}}</p>
    <p><strong>🕐 Fecha y Hora de Llamada:</strong> {{.Timestamp}}</p>
    <p><strong>⏱️ Duración:</strong> {{.Duration}}</p>
  </div>

  <div style="background-color: #e7f3ff; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <h3 style="color: #333; margin-top: 0;">🦷 Información Dental</h3>
    <p><strong>Necesidad Dental:</strong> {{.DentalNeed}}</p>
    <p><strong>🛡️ Seguro Dental:</strong> {{.DentalInsurance}}</p>
    <p><strong>📅 Fecha Preferida:</strong> {{.PreferredDate}}</p>
    <p><strong>🕒 Horario Preferido:</strong> {{.PreferredSchedule}}</p>
    <p><strong>📝 Notas Adicionales:</strong> {{.Notes}}</p>
  </div>

  <div style="background-color: #e8f5e8; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <h3 style="color: #333; margin-top: 0;">📋 Información Importante</h3>
    <p><strong>📍 Ubicación de la Clínica:</strong> Duluth, Georgia</p>
    <p><strong>⏰ Horarios de Atención:</strong></p>
    <ul style="margin: 5px 0 0 20px;">
      <li>Lunes, Miércoles, Viernes: 8:00 AM - 2:00 PM</li>
      <li>Martes, Jueves: 9:00 AM - 4:00 PM</li>
    </ul>
  </div>

  <div style="background-color: #fff3cd; padding: 15px; border-radius: 5px; margin: 20px 0; border-left: 4px solid #ffc107;">
    <p style="margin: 0;"><strong>⚡ Acción Requerida:</strong> Contactar al cliente para confirmar y agendar la cita dental.</p>
  </div>
{{if .HasTranscript}}
  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <h3 style="color: #333; margin-top: 0;">📝 Transcripción de la Conversación</h3>
    <div style="background-color: white; padding: 10px; border-radius: 3px; border-left: 4px solid #007bff;">
      <pre style="white-space: pre-wrap; font-family: inherit; margin: 0; font-size: 14px;">{{.Transcript}}</pre>
    </div>
  </div>
{{end}}
  <hr style="margin: 30px 0; border: 0; border-top: 1px solid #eee;">

  <p style="text-align: center; color: #6c757d; font-size: 12px;">
    🤖 Balance Industry - Sistema Automatizado de Notificaciones<br>
    Call SID: {{.CallSid}}<br>
    {{.Timestamp}}
  </p>
</div>
`))

func renderBodies(data emailData) (string, string, error) {
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, data); err != nil {
		return "", "", err
	}
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return "", "", err
	}
	return text.String(), html.String(), nil
}

package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// IntakeRecord holds the client data the voice agent collected during a call.
// JSON keys match the parameters of the agent's send_email tool.
type IntakeRecord struct {
	Name              string `json:"nombre"`
	BirthDate         string `json:"fecha_nacimiento"`
	Phone             string `json:"telefono"`
	DentalNeed        string `json:"necesidad_dental"`
	DentalInsurance   string `json:"seguro_dental"`
	PreferredSchedule string `json:"horario_preferido"`
	PreferredDate     string `json:"fecha_preferida"`
	Notes             string `json:"notas_adicionales"`
	CallSid           string `json:"call_sid,omitempty"`
	Duration          string `json:"duration,omitempty"`
	Transcript        string `json:"transcript,omitempty"`
}

// ParseIntake decodes a flat key-value object into an IntakeRecord.
// Non-string scalars (numbers, booleans) are accepted and stringified, since
// the agent does not always quote phone numbers or durations.
func ParseIntake(data []byte) (IntakeRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return IntakeRecord{}, fmt.Errorf("decode intake: %w", err)
	}
	return IntakeFromMap(raw), nil
}

// IntakeFromMap builds an IntakeRecord from already decoded tool parameters.
func IntakeFromMap(raw map[string]any) IntakeRecord {
	return IntakeRecord{
		Name:              str(raw["nombre"]),
		BirthDate:         str(raw["fecha_nacimiento"]),
		Phone:             str(raw["telefono"]),
		DentalNeed:        str(raw["necesidad_dental"]),
		DentalInsurance:   str(raw["seguro_dental"]),
		PreferredSchedule: str(raw["horario_preferido"]),
		PreferredDate:     str(raw["fecha_preferida"]),
		Notes:             str(raw["notas_adicionales"]),
		CallSid:           firstNonEmpty(str(raw["call_sid"]), str(raw["callSid"])),
		Duration:          str(raw["duration"]),
		Transcript:        str(raw["transcript"]),
	}
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

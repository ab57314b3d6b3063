package models

import (
	"encoding/json"
	"strings"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// TranscriptModel is one utterance of a call, keyed by the telephony call id.
type TranscriptModel struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	CallId  string `json:"callId"`
}

func (t *TranscriptModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(t)
}

func (t *TranscriptModel) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, t)
}

// FormatTranscript renders utterances as "role: content" lines.
func FormatTranscript(lines []TranscriptModel) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Role)
		b.WriteString(": ")
		b.WriteString(l.Content)
	}
	return b.String()
}

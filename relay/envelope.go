package relay

import "encoding/json"

// --- Telephony (Twilio Media Streams) envelopes ---

type telephonyInbound struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
	Start     *struct {
		StreamSid  string `json:"streamSid"`
		CallSid    string `json:"callSid"`
		AccountSid string `json:"accountSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Track   string `json:"track"`
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

// telephonyOutbound is written back to the telephony leg. StreamSid is a
// pointer so that events emitted before "start" carry an explicit null.
type telephonyOutbound struct {
	Event     string          `json:"event"`
	StreamSid *string         `json:"streamSid"`
	Media     *telephonyMedia `json:"media,omitempty"`
}

type telephonyMedia struct {
	Payload string `json:"payload"`
}

// --- Conversational AI (ElevenLabs ConvAI) envelopes ---

type aiInbound struct {
	Type string `json:"type"`

	ConversationInitiationMetadataEvent *struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event,omitempty"`

	PingEvent *struct {
		EventID json.RawMessage `json:"event_id"`
	} `json:"ping_event,omitempty"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	AgentToolRequest  *toolEvent `json:"agent_tool_request,omitempty"`
	AgentToolResponse *toolEvent `json:"agent_tool_response,omitempty"`
}

type toolEvent struct {
	ToolName   string          `json:"tool_name"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolParams json.RawMessage `json:"tool_params,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

type aiAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type aiPong struct {
	Type    string          `json:"type"`
	EventID json.RawMessage `json:"event_id"`
}

const (
	eventStart       = "start"
	eventMedia       = "media"
	eventStop        = "stop"
	eventClear       = "clear"
	eventServerReady = "server_ready"

	typeInitiationMetadata = "conversation_initiation_metadata"
	typeAudio              = "audio"
	typeInterruption       = "interruption"
	typePing               = "ping"
	typePong               = "pong"
	typeUserTranscript     = "user_transcript"
	typeAgentResponse      = "agent_response"
	typeAgentToolRequest   = "agent_tool_request"
	typeAgentToolResponse  = "agent_tool_response"
)

func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

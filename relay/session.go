// Package relay bridges one telephony media stream with one conversational AI
// WebSocket, translating envelopes in both directions.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/metrics"
	"github.com/AVVKavvk/voz-balance/models"
	"github.com/AVVKavvk/voz-balance/tools"
)

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens the AI leg.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// TranscriptSink receives utterances reported by the AI provider.
type TranscriptSink interface {
	AppendTranscript(ctx context.Context, transcript models.TranscriptModel) error
}

// ToolDispatcher runs agent tools by name.
type ToolDispatcher interface {
	Known(name string) bool
	Dispatch(ctx context.Context, name string, params json.RawMessage) (tools.Output, error)
}

type Options struct {
	ConnectTimeout time.Duration
	// CloseGrace delays closing the telephony leg after a normal AI closure
	// so queued audio can finish playing.
	CloseGrace   time.Duration
	WriteTimeout time.Duration

	Transcripts TranscriptSink
	Tools       ToolDispatcher
	// DispatchToolCalls makes the relay run known tools it sees in
	// agent_tool_request events, in addition to logging them.
	DispatchToolCalls bool
}

type State int32

const (
	StatePending State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session owns one telephony leg and its companion AI leg.
type Session struct {
	id      string
	opts    Options
	dialer  Dialer
	log     zerolog.Logger
	sampled zerolog.Logger

	telephony *leg

	mu        sync.Mutex
	state     State
	ai        *leg
	streamSid *string
	callSid   string
	grace     *time.Timer
	cancel    context.CancelFunc

	wg   sync.WaitGroup
	done chan struct{}
}

func NewSession(telephony Conn, dialer Dialer, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	id := uuid.NewString()
	l := log.With().Str("session_id", id).Logger()
	return &Session{
		id:        id,
		opts:      opts,
		dialer:    dialer,
		log:       l,
		sampled:   l.Sample(&zerolog.BasicSampler{N: 100}),
		telephony: newLeg(metrics.LegTelephony, telephony, opts.WriteTimeout),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StreamSid returns the telephony stream id, or "" before "start".
func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamSid == nil {
		return ""
	}
	return *s.streamSid
}

// Done is closed once both legs are closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run opens the AI leg and relays until the session closes. It blocks on the
// telephony read loop and returns after every session goroutine has exited.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	s.log.Info().Msg("telephony connected to media stream")

	s.wg.Add(1)
	go s.connectAI(ctx)

	s.readTelephony(ctx)
	s.beginClose("telephony disconnected", false)
	s.wg.Wait()
	s.log.Info().Msg("session closed")
}

func (s *Session) connectAI(ctx context.Context) {
	defer s.wg.Done()

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	started := time.Now()
	conn, err := s.dialer.Dial(dialCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error().Err(err).Dur("timeout", s.opts.ConnectTimeout).Msg("failed to connect to conversational AI")
		metrics.AICloses.WithLabelValues(classConnectFailed).Inc()
		s.beginClose("ai connect failed", false)
		return
	}
	metrics.AIConnectDuration.Observe(time.Since(started).Seconds())

	ai := newLeg(metrics.LegAI, conn, s.opts.WriteTimeout)

	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		ai.close()
		return
	}
	s.ai = ai
	s.state = StateActive
	s.mu.Unlock()

	s.log.Info().Msg("connected to conversational AI")
	if err := s.telephony.writeJSON(telephonyOutbound{Event: eventServerReady}); err != nil {
		s.log.Warn().Err(err).Msg("send server_ready")
	}

	s.wg.Add(1)
	go s.readAI(ctx, ai)
}

// beginClose moves the session to Closing. A graceful close shuts the AI leg
// now and the telephony leg after CloseGrace; otherwise both close at once.
// Calls after the first are no-ops unless they turn a pending graceful close
// into an immediate one.
func (s *Session) beginClose(reason string, graceful bool) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasClosing := s.state == StateClosing
	if graceful && wasClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	ai := s.ai
	if graceful && s.opts.CloseGrace > 0 {
		s.grace = time.AfterFunc(s.opts.CloseGrace, func() { s.finish("close grace elapsed") })
		s.mu.Unlock()
		s.log.Info().Str("reason", reason).Dur("grace", s.opts.CloseGrace).Msg("session closing")
		if ai != nil {
			ai.close()
		}
		return
	}
	s.mu.Unlock()

	if !wasClosing {
		s.log.Info().Str("reason", reason).Msg("session closing")
	}
	s.finish(reason)
}

func (s *Session) finish(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	if s.grace != nil {
		s.grace.Stop()
	}
	ai := s.ai
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ai != nil {
		ai.close()
	}
	s.telephony.close()
	s.log.Debug().Str("reason", reason).Msg("legs closed")
	close(s.done)
}

// --- telephony -> AI ---

func (s *Session) readTelephony(ctx context.Context) {
	for {
		_, data, err := s.telephony.conn.ReadMessage()
		if err != nil {
			if s.State() < StateClosing {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Warn().Err(err).Msg("telephony websocket error")
				} else {
					s.log.Info().Msg("telephony client disconnected")
				}
			}
			return
		}
		s.handleTelephony(ctx, data)
	}
}

func (s *Session) handleTelephony(_ context.Context, data []byte) {
	var msg telephonyInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.MalformedMessages.WithLabelValues(metrics.LegTelephony).Inc()
		s.log.Error().Err(err).Msg("error processing telephony message")
		return
	}
	s.sampled.Debug().Str("event", msg.Event).Msg("telephony message")

	switch msg.Event {
	case eventStart:
		s.onStart(msg)
	case eventMedia:
		s.onMedia(msg)
	case eventStop:
		s.log.Info().Msg("telephony stream stopped")
		s.beginClose("telephony stop", true)
	default:
		s.log.Debug().Str("event", msg.Event).Msg("unhandled telephony event")
	}
}

func (s *Session) onStart(msg telephonyInbound) {
	if msg.Start == nil || msg.Start.StreamSid == "" {
		s.log.Warn().Msg("start event without stream sid")
		return
	}
	s.mu.Lock()
	if s.streamSid != nil {
		current := *s.streamSid
		s.mu.Unlock()
		s.log.Warn().Str("stream_sid", current).Str("ignored", msg.Start.StreamSid).Msg("duplicate start event")
		return
	}
	sid := msg.Start.StreamSid
	s.streamSid = &sid
	s.callSid = msg.Start.CallSid
	s.mu.Unlock()

	s.log.Info().Str("stream_sid", sid).Str("call_sid", msg.Start.CallSid).Msg("stream started")
}

func (s *Session) onMedia(msg telephonyInbound) {
	s.mu.Lock()
	state, ai := s.state, s.ai
	s.mu.Unlock()

	if state != StateActive || ai == nil {
		metrics.FramesDropped.WithLabelValues("ai_not_connected").Inc()
		s.sampled.Warn().Str("state", state.String()).Msg("conversational AI not connected, dropping audio")
		return
	}
	if msg.Media == nil || msg.Media.Payload == "" {
		return
	}

	audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues(metrics.LegTelephony).Inc()
		s.log.Error().Err(err).Msg("invalid media payload")
		return
	}

	if err := ai.writeJSON(aiAudioChunk{UserAudioChunk: base64.StdEncoding.EncodeToString(audio)}); err != nil {
		s.log.Warn().Err(err).Msg("conversational AI disconnected during call")
		s.beginClose("ai write failed", false)
		return
	}
	metrics.FramesForwarded.WithLabelValues(metrics.DirectionToAI).Inc()
	s.sampled.Debug().Int("bytes", len(audio)).Msg("audio sent to conversational AI")
}

// --- AI -> telephony ---

func (s *Session) readAI(ctx context.Context, ai *leg) {
	defer s.wg.Done()
	for {
		_, data, err := ai.conn.ReadMessage()
		if err != nil {
			s.onAIGone(err)
			return
		}
		s.handleAI(ctx, ai, data)
	}
}

func (s *Session) onAIGone(err error) {
	if s.State() >= StateClosing {
		return
	}

	code, reason := closeCode(err)
	class := classifyClose(code)
	metrics.AICloses.WithLabelValues(class).Inc()

	if code == websocket.CloseNormalClosure {
		s.log.Info().Msg("conversation ended normally")
		s.beginClose("ai closed normally", true)
		return
	}

	ev := s.log.Error().Err(err).Str("class", class)
	if code != 0 {
		ev = ev.Int("code", code).Str("close_reason", reason)
	}
	ev.Msg(closeMessage(class))
	s.beginClose("ai closed: "+class, false)
}

func (s *Session) handleAI(ctx context.Context, ai *leg, data []byte) {
	var msg aiInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.MalformedMessages.WithLabelValues(metrics.LegAI).Inc()
		s.log.Error().Err(err).Msg("error parsing conversational AI message")
		return
	}

	switch msg.Type {
	case typeInitiationMetadata:
		ev := s.log.Info()
		if m := msg.ConversationInitiationMetadataEvent; m != nil {
			ev = ev.Str("conversation_id", m.ConversationID).Str("output_format", m.AgentOutputAudioFormat)
		}
		ev.Msg("received conversation initiation metadata")

	case typeAudio:
		if msg.AudioEvent == nil || msg.AudioEvent.AudioBase64 == "" {
			return
		}
		err := s.telephony.writeJSON(telephonyOutbound{
			Event:     eventMedia,
			StreamSid: s.streamSidPtr(),
			Media:     &telephonyMedia{Payload: msg.AudioEvent.AudioBase64},
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("send audio to telephony")
			return
		}
		metrics.FramesForwarded.WithLabelValues(metrics.DirectionToTelephony).Inc()

	case typeInterruption:
		s.log.Debug().Msg("interruption, clearing telephony playback")
		if err := s.telephony.writeJSON(telephonyOutbound{Event: eventClear, StreamSid: s.streamSidPtr()}); err != nil {
			s.log.Warn().Err(err).Msg("send clear to telephony")
		}

	case typePing:
		if msg.PingEvent == nil || !hasValue(msg.PingEvent.EventID) {
			return
		}
		if err := ai.writeJSON(aiPong{Type: typePong, EventID: msg.PingEvent.EventID}); err != nil {
			s.log.Warn().Err(err).Msg("send pong")
		}

	case typeUserTranscript:
		if e := msg.UserTranscriptionEvent; e != nil && e.UserTranscript != "" {
			s.recordTranscript(ctx, models.RoleUser, e.UserTranscript)
		}

	case typeAgentResponse:
		if e := msg.AgentResponseEvent; e != nil && e.AgentResponse != "" {
			s.recordTranscript(ctx, models.RoleAgent, e.AgentResponse)
		}

	case typeAgentToolRequest:
		if msg.AgentToolRequest != nil {
			s.onToolRequest(msg.AgentToolRequest)
		}

	case typeAgentToolResponse:
		if t := msg.AgentToolResponse; t != nil {
			switch t.ToolName {
			case tools.SendEmail:
				s.log.Info().Str("tool_call_id", t.ToolCallID).Bool("is_error", t.IsError).Msg("email tool response")
			case tools.EndCall:
				s.log.Info().Str("tool_call_id", t.ToolCallID).Msg("end call tool response")
			default:
				s.log.Debug().Str("tool", t.ToolName).Msg("tool response")
			}
		}

	default:
		s.log.Debug().Str("type", msg.Type).Msg("unhandled conversational AI message")
	}
}

func (s *Session) onToolRequest(t *toolEvent) {
	if t.ToolName != tools.SendEmail {
		s.log.Debug().Str("tool", t.ToolName).Msg("agent tool request")
		return
	}
	metrics.ToolCalls.WithLabelValues(t.ToolName, "relay").Inc()
	s.log.Info().Str("tool_call_id", t.ToolCallID).RawJSON("params", rawOrNull(t.ToolParams)).Msg("agent wants to send email")

	if !s.opts.DispatchToolCalls || s.opts.Tools == nil || !s.opts.Tools.Known(t.ToolName) {
		return
	}

	// Runs detached: a notification must not be cut short by the caller hanging up.
	go func(name string, params json.RawMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		out, err := s.opts.Tools.Dispatch(ctx, name, params)
		if err != nil {
			s.log.Error().Err(err).Str("tool", name).Msg("tool dispatch failed")
			return
		}
		s.log.Info().Str("tool", name).Bool("success", out.Success).Msg("tool dispatched from relay")
	}(t.ToolName, t.ToolParams)
}

func (s *Session) recordTranscript(ctx context.Context, role, content string) {
	s.mu.Lock()
	callSid := s.callSid
	s.mu.Unlock()

	s.log.Debug().Str("call_sid", callSid).Str("role", role).Str("content", content).Msg("transcript")
	if s.opts.Transcripts == nil || callSid == "" {
		return
	}
	err := s.opts.Transcripts.AppendTranscript(ctx, models.TranscriptModel{Role: role, Content: content, CallId: callSid})
	if err != nil {
		s.log.Warn().Err(err).Msg("record transcript")
	}
}

func (s *Session) streamSidPtr() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

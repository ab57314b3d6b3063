package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Call sessions currently relaying",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_total",
		Help: "Call sessions accepted",
	})

	FramesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_audio_frames_forwarded_total",
		Help: "Audio frames forwarded, by direction",
	}, []string{"direction"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_audio_frames_dropped_total",
		Help: "Telephony audio frames dropped, by reason",
	}, []string{"reason"})

	MalformedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_malformed_messages_total",
		Help: "Envelopes that could not be parsed, by leg",
	}, []string{"leg"})

	AICloses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_ai_closes_total",
		Help: "AI leg terminations by classification",
	}, []string{"class"})

	AIConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_ai_connect_duration_seconds",
		Help:    "Time to complete the AI provider WebSocket handshake",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tool_calls_total",
		Help: "Tool invocations observed or dispatched",
	}, []string{"tool", "source"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification sends by outcome",
	}, []string{"outcome"})
)

const (
	DirectionToAI        = "telephony_to_ai"
	DirectionToTelephony = "ai_to_telephony"

	LegTelephony = "telephony"
	LegAI        = "ai"
)

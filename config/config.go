package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingAgentID = errors.New("missing ELEVENLABS_AGENT_ID in environment variables")
	ErrMissingAPIKey  = errors.New("missing ELEVENLABS_API_KEY in environment variables")
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Port        string
	RoutePrefix string
	PublicHost  string

	LogLevel  string
	LogFormat string

	ElevenLabs ElevenLabs
	Relay      Relay
	Email      Email
	Redis      Redis
	AMQP       AMQP
	Twilio     Twilio
}

type ElevenLabs struct {
	AgentID string
	APIKey  string
	WSURL   string
}

type Relay struct {
	ConnectTimeout    time.Duration
	CloseGrace        time.Duration
	WriteTimeout      time.Duration
	DispatchToolCalls bool
}

type Email struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	Supervisor    string
	CC            string
	TimeZone      string
	VerifyOnStart bool
}

type Redis struct {
	Addr          string
	Password      string
	DB            int
	TranscriptTTL time.Duration
}

type AMQP struct {
	URL      string
	Exchange string
	// Queue is shared by all replicas so a transcript is consumed once.
	Queue string
}

type Twilio struct {
	AccountSID string
	AuthToken  string
}

// Load reads an optional .env file and then the process environment.
// Existing environment variables win over .env entries.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:        envOr("PORT", "8001"),
		RoutePrefix: "/" + strings.Trim(envOr("ROUTE_PREFIX", "/voz-balance"), "/"),
		PublicHost:  os.Getenv("PUBLIC_HOST"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "console"),
		ElevenLabs: ElevenLabs{
			AgentID: os.Getenv("ELEVENLABS_AGENT_ID"),
			APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
			WSURL:   envOr("ELEVENLABS_WS_URL", "wss://api.elevenlabs.io/v1/convai/conversation"),
		},
		Relay: Relay{
			ConnectTimeout:    envDurationOr("AI_CONNECT_TIMEOUT", 10*time.Second),
			CloseGrace:        envDurationOr("AI_CLOSE_GRACE", 2*time.Second),
			WriteTimeout:      envDurationOr("WS_WRITE_TIMEOUT", 5*time.Second),
			DispatchToolCalls: envBoolOr("RELAY_DISPATCH_TOOL_CALLS", false),
		},
		Email: Email{
			Host:          envOr("EMAIL_HOST", "smtp.sendgrid.net"),
			Port:          envIntOr("EMAIL_PORT", 587),
			User:          envOr("EMAIL_USER", "apikey"),
			Password:      os.Getenv("SENDGRID_API_KEY"),
			From:          envOr("EMAIL_FROM", `"Balance Industry" <grow@ultimmarketing.com>`),
			Supervisor:    os.Getenv("SUPERVISOR_EMAIL"),
			CC:            os.Getenv("EMAIL_CC"),
			TimeZone:      envOr("EMAIL_TIMEZONE", "America/Bogota"),
			VerifyOnStart: envBoolOr("EMAIL_VERIFY_ON_START", false),
		},
		Redis: Redis{
			Addr:          os.Getenv("REDIS_ADDR"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            envIntOr("REDIS_DB", 0),
			TranscriptTTL: envDurationOr("TRANSCRIPT_TTL", time.Hour),
		},
		AMQP: AMQP{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: envOr("AMQP_EXCHANGE", "transcript"),
			Queue:    envOr("AMQP_QUEUE", "transcript.store"),
		},
		Twilio: Twilio{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		},
	}

	if cfg.ElevenLabs.AgentID == "" {
		return Config{}, ErrMissingAgentID
	}
	if cfg.ElevenLabs.APIKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	if cfg.Relay.CloseGrace < 0 {
		return Config{}, fmt.Errorf("AI_CLOSE_GRACE must be >= 0")
	}
	if cfg.Relay.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("AI_CONNECT_TIMEOUT must be > 0")
	}
	return cfg, nil
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Route joins the route prefix with path.
func (c Config) Route(path string) string {
	if c.RoutePrefix == "/" {
		return "/" + strings.TrimPrefix(path, "/")
	}
	return c.RoutePrefix + "/" + strings.TrimPrefix(path, "/")
}

func envOr(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func envIntOr(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

// envDurationOr accepts Go durations ("2s") or bare milliseconds ("2000").
func envDurationOr(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

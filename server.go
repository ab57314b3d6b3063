package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/config"
	"github.com/AVVKavvk/voz-balance/notify"
	"github.com/AVVKavvk/voz-balance/rabbitmq"
	"github.com/AVVKavvk/voz-balance/redisClient"
	"github.com/AVVKavvk/voz-balance/relay"
	"github.com/AVVKavvk/voz-balance/telephony"
	"github.com/AVVKavvk/voz-balance/tools"
)

type callPlacer interface {
	PlaceCall(ctx context.Context, call telephony.OutboundCall) (telephony.CallInfo, error)
}

// server carries the dependencies shared by all handlers.
type server struct {
	cfg      config.Config
	dialer   relay.Dialer
	tools    *tools.Dispatcher
	sink     relay.TranscriptSink
	calls    callPlacer
	upgrader websocket.Upgrader
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

func (s *server) relayOptions() relay.Options {
	return relay.Options{
		ConnectTimeout:    s.cfg.Relay.ConnectTimeout,
		CloseGrace:        s.cfg.Relay.CloseGrace,
		WriteTimeout:      s.cfg.Relay.WriteTimeout,
		Transcripts:       s.sink,
		Tools:             s.tools,
		DispatchToolCalls: s.cfg.Relay.DispatchToolCalls,
	}
}

// buildServer connects the optional backends and assembles the handlers'
// dependencies. Redis and RabbitMQ are optional; when they are unreachable
// the service runs without transcript capture.
func buildServer(ctx context.Context, cfg config.Config) (*server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	dialer, err := relay.NewElevenLabsDialer(cfg.ElevenLabs.WSURL, cfg.ElevenLabs.AgentID, cfg.ElevenLabs.APIKey)
	if err != nil {
		return nil, cleanup, err
	}

	transport, err := notify.NewSMTPTransport(notify.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		User:     cfg.Email.User,
		Password: cfg.Email.Password,
		Timeout:  15 * time.Second,
	})
	if err != nil {
		return nil, cleanup, err
	}
	if cfg.Email.Supervisor == "" {
		log.Warn().Msg("SUPERVISOR_EMAIL not set, client data emails will fail")
	}
	if cfg.Email.VerifyOnStart {
		go verifySMTP(ctx, transport)
	}
	sender := notify.NewSender(transport, notify.SenderConfig{
		From:       cfg.Email.From,
		Supervisor: cfg.Email.Supervisor,
		CC:         cfg.Email.CC,
		Location:   notify.LoadLocation(cfg.Email.TimeZone),
	})

	s := &server{
		cfg:      cfg,
		dialer:   dialer,
		tools:    tools.NewDispatcher(),
		calls:    telephony.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken),
		upgrader: newUpgrader(),
	}

	var transcripts tools.TranscriptSource
	if store := connectStore(cfg, &closers); store != nil {
		transcripts = store
		s.sink = store
		if producer := connectBroker(ctx, cfg, store, &closers); producer != nil {
			s.sink = producer
		}
	} else {
		log.Info().Msg("REDIS_ADDR not set or unreachable, transcripts are only logged")
	}

	s.tools.Register(tools.SendEmail, tools.NewSendEmail(sender, transcripts))
	return s, cleanup, nil
}

func connectStore(cfg config.Config, closers *[]func()) *redisClient.Store {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rc, err := redisClient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error().Err(err).Msg("redis unavailable")
		return nil
	}
	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TranscriptTTL).Msg("redis transcript store ready")
	*closers = append(*closers, func() { _ = rc.Close() })
	return redisClient.NewStore(rc, cfg.Redis.TranscriptTTL)
}

// connectBroker routes transcripts through RabbitMQ and starts the consumer
// that appends them to the store.
func connectBroker(ctx context.Context, cfg config.Config, store *redisClient.Store, closers *[]func()) *rabbitmq.Producer {
	if cfg.AMQP.URL == "" {
		return nil
	}
	conn, err := rabbitmq.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Error().Err(err).Msg("rabbitmq unavailable, writing transcripts to redis directly")
		return nil
	}
	producer, err := rabbitmq.NewProducer(conn, cfg.AMQP.Exchange)
	if err != nil {
		log.Error().Err(err).Msg("rabbitmq producer")
		_ = conn.Close()
		return nil
	}
	*closers = append(*closers, func() {
		_ = producer.Close()
		_ = conn.Close()
	})

	go func() {
		if err := rabbitmq.Consume(ctx, conn, cfg.AMQP.Exchange, cfg.AMQP.Queue, store); err != nil {
			log.Error().Err(err).Msg("transcript consumer stopped")
		}
	}()
	return producer
}

func verifySMTP(ctx context.Context, t *notify.SMTPTransport) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := t.Verify(ctx); err != nil {
		log.Error().Err(err).Msg("email configuration check failed")
		return
	}
	log.Info().Msg("email configuration verified")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/config"
)

const internalErrorMessage = "Error interno del servidor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer cleanup()

	e := s.routes()
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("prefix", cfg.RoutePrefix).Msg("server listening")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func (s *server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))

	r := s.cfg.Route
	e.GET(r("health"), s.handleHealth)
	e.Any(r("inbound_call"), s.HandleIncomingCall)
	e.POST(r("send-email"), s.HandleSendEmail, middleware.BodyLimit(sendEmailBodyLimit))
	e.GET(r("media-stream"), s.HandleMediaStream)
	e.POST(r("outbound-call"), s.HandleOutboundCall)
	e.POST(r("call-status"), s.handleCallStatus)

	e.GET(r("debug/routes"), handleDebugRoutes)
	if r("debug/routes") != "/debug/routes" {
		e.GET("/debug/routes", handleDebugRoutes)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

func (s *server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Server is running-balance-port-" + s.cfg.Port,
	})
}

func handleDebugRoutes(c echo.Context) error {
	routes := make([]string, 0)
	for _, r := range c.Echo().Routes() {
		routes = append(routes, r.Method+" "+r.Path)
	}
	sort.Strings(routes)
	return c.JSON(http.StatusOK, map[string]any{"routes": routes})
}

// handleCallStatus receives Twilio status callbacks for outbound calls.
func (s *server) handleCallStatus(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}
	log.Info().
		Str("call_sid", params.Get("CallSid")).
		Str("status", params.Get("CallStatus")).
		Str("duration", params.Get("CallDuration")).
		Str("to", params.Get("To")).
		Msg("call status")
	return c.NoContent(http.StatusNoContent)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// httpErrorHandler renders every handler error, panics included, as JSON.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	resp := errorResponse{Message: internalErrorMessage, Error: err.Error()}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		resp.Error = fmt.Sprint(he.Message)
		if he.Internal != nil {
			resp.Error = he.Internal.Error()
		}
		if code < http.StatusInternalServerError {
			resp.Message = fmt.Sprint(he.Message)
		}
	}
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("handler error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		log.Error().Err(err).Msg("write error response")
	}
}

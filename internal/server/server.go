package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thanos-chat/internal/aggregator"
	"thanos-chat/internal/config"
	"thanos-chat/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg       config.Config
	agg       *aggregator.Aggregator
	app       *echo.Echo
	address   string
	logger    *slog.Logger
	startedAt time.Time
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, agg *aggregator.Aggregator, logger *slog.Logger) (*Server, error) {
	if agg == nil {
		return nil, errors.New("aggregator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:       cfg,
		agg:       agg,
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
		logger:    logger,
		startedAt: time.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port, s.agg.ModelCount())
	s.logger.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleModels)
	s.app.POST("/v1/turns", s.handleSubmitTurn)
	s.app.GET("/v1/turns", s.handleListTurns)
	s.app.GET("/v1/turns/:id", s.handleGetTurn)
	s.app.GET("/v1/turns/:id/events", s.handleTurnEvents)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.FromDescriptors(s.agg.Models(), s.startedAt))
}

func (s *Server) handleSubmitTurn(c echo.Context) error {
	var req translator.TurnRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	wait := false
	if raw := c.QueryParam("wait"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("invalid wait parameter %q", raw),
				Type:    "invalid_request_error",
			}
		}
		wait = parsed
	}

	h, err := s.agg.Submit(req.Prompt)
	if err != nil {
		return toHTTPError(err)
	}

	if !wait {
		c.Response().Header().Set(echo.HeaderLocation, "/v1/turns/"+h.ID())
		return c.JSON(http.StatusAccepted, translator.FromTurn(h.Snapshot(), s.agg.Models()))
	}

	clearWriteDeadline(c)
	turn, err := h.Wait(c.Request().Context())
	if err != nil {
		return requestError{
			Status:  http.StatusGatewayTimeout,
			Message: fmt.Sprintf("turn %s did not settle before the request ended", h.ID()),
			Type:    "timeout_error",
		}
	}
	return c.JSON(http.StatusOK, translator.FromTurn(turn, s.agg.Models()))
}

func (s *Server) handleListTurns(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.FromTurns(s.agg.Store().List(), s.agg.Models()))
}

func (s *Server) handleGetTurn(c echo.Context) error {
	turn, err := s.agg.Store().Get(c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromTurn(turn, s.agg.Models()))
}

func (s *Server) handleTurnEvents(c echo.Context) error {
	ctx := c.Request().Context()
	updates, err := s.agg.Store().Watch(ctx, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		s.logger.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	clearWriteDeadline(c)

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	models := s.agg.Models()
	for turn := range updates {
		event := "turn"
		if turn.Settled() {
			event = "settled"
		}
		if err := writeSSEEvent(writer, event, translator.FromTurn(turn, models)); err != nil {
			s.logger.Warn("failed to write SSE event", "event", event, "turn", turn.ID, "err", err)
			return nil
		}
		flusher.Flush()
	}

	return nil
}

// clearWriteDeadline lifts the server write timeout for responses that last as long as a turn.
func clearWriteDeadline(c echo.Context) {
	rc := http.NewResponseController(c.Response().Writer)
	_ = rc.SetWriteDeadline(time.Time{})
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, aggregator.ErrTurnNotFound) {
		return requestError{
			Status:  http.StatusNotFound,
			Message: err.Error(),
			Type:    "not_found_error",
		}
	}
	if errors.Is(err, aggregator.ErrEmptyPrompt) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Type:    "server_error",
	}
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}

func printStartupBanner(port, modelCount int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("thanos-chat ready")
	fmt.Printf("Listening on http://%s:%d (%d models per prompt)\n", host, port, modelCount)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /v1/models")
	fmt.Println("  POST /v1/turns")
	fmt.Println("  GET  /v1/turns")
	fmt.Println("  GET  /v1/turns/:id")
	fmt.Println("  GET  /v1/turns/:id/events")
	fmt.Printf("Example:\n  curl http://%s:%d/v1/turns?wait=true -H 'Content-Type: application/json' -d '{\"prompt\":\"Explain quantum computing in simple terms\"}'\n\n", host, port)
}

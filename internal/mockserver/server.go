package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"audiocaption/internal/model"
)

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 1 << 20
	mockModelName    = "mock-captioner"
	mockPromptTokens = 10
)

type ctxKey string

// Behavior controls how the mock answers chat completion requests. The zero
// value answers 200 with a generated caption and usage block.
type Behavior struct {
	Caption   string
	Status    int
	Delay     time.Duration
	OmitUsage bool
	// Body, when set, is written verbatim instead of a generated response.
	Body string
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	behavior     Behavior
	logger       *slog.Logger
	metrics      MetricsObserver
	metricsRoute http.Handler
}

func NewServer(behavior Behavior, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if behavior.Status == 0 {
		behavior.Status = http.StatusOK
	}

	s := &server{
		behavior:     behavior,
		logger:       logger,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}
	r.Post("/v1/chat/completions", s.handleChatCompletions)

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	var req model.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	audioURL, err := audioReference(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if s.behavior.Delay > 0 {
		select {
		case <-time.After(s.behavior.Delay):
		case <-r.Context().Done():
			s.logger.Info("client went away during delay", "request_id", requestIDFromContext(r.Context()))
			return
		}
	}

	if s.behavior.Body != "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(s.behavior.Status)
		_, _ = w.Write([]byte(s.behavior.Body))
		return
	}
	if s.behavior.Status < 200 || s.behavior.Status > 299 {
		s.writeError(w, r, s.behavior.Status, "mock_failure", "simulated failure", nil)
		return
	}

	caption := s.behavior.Caption
	if caption == "" {
		caption = fmt.Sprintf("Mock caption for %s", audioURL)
	}
	resp := model.ChatCompletionResponse{
		ID:     "chatcmpl-" + uuid.NewString(),
		Object: "chat.completion",
		Model:  mockModelName,
		Choices: []model.Choice{{
			Index:        0,
			Message:      &model.ChoiceMessage{Role: "assistant", Content: &caption},
			FinishReason: "stop",
		}},
	}
	if !s.behavior.OmitUsage {
		completion := len(strings.Fields(caption))
		resp.Usage = &model.TokenUsage{
			PromptTokens:     model.IntPtr(mockPromptTokens),
			CompletionTokens: model.IntPtr(completion),
			TotalTokens:      model.IntPtr(mockPromptTokens + completion),
		}
	}
	writeJSON(w, s.behavior.Status, resp)
}

// audioReference checks the request carries exactly one user message holding
// exactly one audio_url block, and returns that URL.
func audioReference(req model.ChatCompletionRequest) (string, error) {
	if len(req.Messages) != 1 {
		return "", fmt.Errorf("expected exactly one message, got %d", len(req.Messages))
	}
	msg := req.Messages[0]
	if msg.Role != model.RoleUser {
		return "", fmt.Errorf("message role must be %q", model.RoleUser)
	}
	if len(msg.Content) != 1 {
		return "", fmt.Errorf("captioner accepts exactly one content block, got %d", len(msg.Content))
	}
	part := msg.Content[0]
	if part.Type != model.ContentTypeAudio {
		return "", fmt.Errorf("content block type must be %q", model.ContentTypeAudio)
	}
	if part.AudioURL == nil || strings.TrimSpace(part.AudioURL.URL) == "" {
		return "", errors.New("audio_url.url is required")
	}
	return part.AudioURL.URL, nil
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

package caption

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"audiocaption/internal/model"
	"audiocaption/internal/upstream/openai"
)

const (
	DefaultBaseURL     = "http://localhost:8003"
	DefaultTemperature = 0.6
	DefaultTopP        = 0.95
	DefaultTopK        = 20
	DefaultMaxTokens   = 16384
	DefaultTimeout     = 300 * time.Second
)

type Client interface {
	Endpoint() string
	ChatCompletion(ctx context.Context, req model.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClientFactory returns a client bound to the given service base URL.
type ClientFactory func(baseURL string) Client

// Sink receives the progress of a single Run. Implementations only present
// output; nothing they do affects the Result.
type Sink interface {
	RequestStarted(endpoint, audioURL string)
	Succeeded(res Result)
	Failed(res Result)
}

type ResultObserver func(kind Kind, duration time.Duration)

type Request struct {
	AudioURL    string
	BaseURL     string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
	Timeout     time.Duration
}

// NewRequest returns a Request for audioURL with every sampling parameter at
// its default.
func NewRequest(audioURL string) Request {
	return Request{
		AudioURL:    audioURL,
		BaseURL:     DefaultBaseURL,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		TopK:        DefaultTopK,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
}

type Option func(*Runner)

type Runner struct {
	newClient ClientFactory
	sink      Sink
	logger    *slog.Logger
	observer  ResultObserver
}

func WithSink(sink Sink) Option {
	return func(r *Runner) {
		r.sink = sink
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithResultObserver(observer ResultObserver) Option {
	return func(r *Runner) {
		r.observer = observer
	}
}

// HTTPClientFactory builds upstream clients sharing httpClient.
func HTTPClientFactory(httpClient *http.Client, opts ...openai.Option) ClientFactory {
	return func(baseURL string) Client {
		return openai.New(baseURL, httpClient, opts...)
	}
}

func New(newClient ClientFactory, opts ...Option) *Runner {
	if newClient == nil {
		newClient = HTTPClientFactory(nil)
	}
	r := &Runner{
		newClient: newClient,
		sink:      nopSink{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run issues exactly one caption request and never retries. Every outcome,
// including transport failures, is reported through the returned Result.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	if strings.TrimSpace(req.AudioURL) == "" {
		return r.finish(failure(KindOther, "Unexpected error: audio URL is required"))
	}

	client := r.newClient(req.BaseURL)
	r.sink.RequestStarted(client.Endpoint(), req.AudioURL)
	r.logger.Debug("caption request dispatched",
		"endpoint", client.Endpoint(),
		"audio_url", req.AudioURL,
		"timeout", req.Timeout,
	)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := client.ChatCompletion(ctx, model.NewAudioCaptionRequest(req.AudioURL, req.Temperature, req.TopP, req.TopK, req.MaxTokens))
	duration := time.Since(started)
	if err != nil {
		res := classify(err, req)
		res.Duration = duration
		r.logger.Warn("caption request failed",
			"kind", res.Kind.String(),
			"status", res.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return r.finish(res)
	}

	res := Result{
		Kind:     KindSuccess,
		Caption:  resp.Content,
		Raw:      resp.Raw,
		Duration: duration,
	}
	if resp.Usage != nil {
		res.UsageReported = true
		res.Usage = Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	r.logger.Debug("caption received",
		"caption_bytes", len(res.Caption),
		"usage_reported", res.UsageReported,
		"duration_ms", duration.Milliseconds(),
	)
	return r.finish(res)
}

func (r *Runner) finish(res Result) Result {
	if r.observer != nil {
		r.observer(res.Kind, res.Duration)
	}
	if res.Success() {
		r.sink.Succeeded(res)
	} else {
		r.sink.Failed(res)
	}
	return res
}

type nopSink struct{}

func (nopSink) RequestStarted(string, string) {}
func (nopSink) Succeeded(Result)              {}
func (nopSink) Failed(Result)                 {}

package caption

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"audiocaption/internal/mockserver"
	"audiocaption/internal/model"
	"audiocaption/internal/upstream/openai"
)

type recordingSink struct {
	endpoint string
	audioURL string
	started  int
	success  []Result
	failures []Result
}

func (s *recordingSink) RequestStarted(endpoint, audioURL string) {
	s.started++
	s.endpoint = endpoint
	s.audioURL = audioURL
}

func (s *recordingSink) Succeeded(res Result) { s.success = append(s.success, res) }
func (s *recordingSink) Failed(res Result)    { s.failures = append(s.failures, res) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockService(t *testing.T, behavior mockserver.Behavior) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(mockserver.NewServer(behavior, discardLogger(), mockserver.Dependencies{}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestRunner(sink Sink, opts ...Option) *Runner {
	opts = append([]Option{WithSink(sink), WithLogger(discardLogger())}, opts...)
	return New(HTTPClientFactory(&http.Client{}), opts...)
}

func requestFor(baseURL string) Request {
	req := NewRequest("https://example.com/clip.mp3")
	req.BaseURL = baseURL
	return req
}

func TestNewRequestDefaults(t *testing.T) {
	req := NewRequest("u")
	require.Equal(t, "http://localhost:8003", req.BaseURL)
	require.Equal(t, 0.6, req.Temperature)
	require.Equal(t, 0.95, req.TopP)
	require.Equal(t, 20, req.TopK)
	require.Equal(t, 16384, req.MaxTokens)
	require.Equal(t, 300*time.Second, req.Timeout)
}

func TestRunSuccessWithUsage(t *testing.T) {
	ts := newMockService(t, mockserver.Behavior{
		Body: `{"choices":[{"message":{"content":"A dog barks."}}],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`,
	})
	sink := &recordingSink{}
	var observed []Kind
	runner := newTestRunner(sink, WithResultObserver(func(k Kind, _ time.Duration) { observed = append(observed, k) }))

	res := runner.Run(context.Background(), requestFor(ts.URL))

	require.Equal(t, KindSuccess, res.Kind)
	require.True(t, res.Success())
	require.Equal(t, 0, res.ExitCode())
	require.Equal(t, "A dog barks.", res.Caption)
	require.True(t, res.UsageReported)
	require.Equal(t, 10, *res.Usage.PromptTokens)
	require.Equal(t, 4, *res.Usage.CompletionTokens)
	require.Equal(t, 14, *res.Usage.TotalTokens)
	require.NotEmpty(t, res.Raw)

	require.Equal(t, 1, sink.started)
	require.Equal(t, ts.URL+"/v1/chat/completions", sink.endpoint)
	require.Equal(t, "https://example.com/clip.mp3", sink.audioURL)
	require.Len(t, sink.success, 1)
	require.Empty(t, sink.failures)
	require.Equal(t, []Kind{KindSuccess}, observed)
}

func TestRunCaptionIsNotTransformed(t *testing.T) {
	caption := "  Leading spaces, trailing newline\n\"quoted\"  "
	ts := newMockService(t, mockserver.Behavior{Caption: caption})

	res := newTestRunner(&recordingSink{}).Run(context.Background(), requestFor(ts.URL))
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, caption, res.Caption)
}

func TestRunSuccessWithoutUsage(t *testing.T) {
	ts := newMockService(t, mockserver.Behavior{Caption: "quiet hum", OmitUsage: true})

	res := newTestRunner(&recordingSink{}).Run(context.Background(), requestFor(ts.URL))
	require.Equal(t, KindSuccess, res.Kind)
	require.False(t, res.UsageReported)
	require.Nil(t, res.Usage.PromptTokens)
	require.Nil(t, res.Usage.CompletionTokens)
	require.Nil(t, res.Usage.TotalTokens)
}

func TestRunHTTPStatusFailure(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		ts := newMockService(t, mockserver.Behavior{Status: status, Body: "engine offline"})
		sink := &recordingSink{}

		res := newTestRunner(sink).Run(context.Background(), requestFor(ts.URL))
		require.Equal(t, KindHTTPStatus, res.Kind)
		require.Equal(t, 1, res.ExitCode())
		require.Equal(t, status, res.StatusCode)
		require.Contains(t, res.Reason, strconv.Itoa(status))
		require.Equal(t, "HTTP error: "+strconv.Itoa(status)+" - engine offline", res.Reason)
		require.Len(t, sink.failures, 1)
	}
}

func TestRunTimeout(t *testing.T) {
	ts := newMockService(t, mockserver.Behavior{Delay: 2 * time.Second})
	req := requestFor(ts.URL)
	req.Timeout = 50 * time.Millisecond

	res := newTestRunner(&recordingSink{}).Run(context.Background(), req)
	require.Equal(t, KindTimeout, res.Kind)
	require.Equal(t, "Request timed out after 50ms", res.Reason)
	require.Equal(t, 1, res.ExitCode())
}

func TestRunHTTPClientTimeout(t *testing.T) {
	ts := newMockService(t, mockserver.Behavior{Delay: 2 * time.Second})
	req := requestFor(ts.URL)
	req.Timeout = 0

	runner := New(HTTPClientFactory(&http.Client{Timeout: 50 * time.Millisecond}), WithLogger(discardLogger()))
	res := runner.Run(context.Background(), req)
	require.Equal(t, KindTimeout, res.Kind)
	require.True(t, strings.HasPrefix(res.Reason, "Request timed out after"))
}

func TestRunConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	baseURL := ts.URL
	ts.Close()

	res := newTestRunner(&recordingSink{}).Run(context.Background(), requestFor(baseURL))
	require.Equal(t, KindConnection, res.Kind)
	require.Equal(t, "Failed to connect to "+baseURL+". Is the service running?", res.Reason)
	require.Equal(t, 1, res.ExitCode())
}

func TestRunUnexpectedFormat(t *testing.T) {
	for _, body := range []string{`{"id":"x"}`, `{"choices":[]}`, `{"choices":null}`} {
		ts := newMockService(t, mockserver.Behavior{Body: body})
		sink := &recordingSink{}

		res := newTestRunner(sink).Run(context.Background(), requestFor(ts.URL))
		require.Equal(t, KindUnexpectedFormat, res.Kind, body)
		require.True(t, strings.EqualFold(res.Reason, "unexpected response format"))
		require.Equal(t, body, string(res.Raw))
		require.Len(t, sink.failures, 1)
	}
}

func TestRunInvalidJSONIsOther(t *testing.T) {
	ts := newMockService(t, mockserver.Behavior{Body: "not json"})

	res := newTestRunner(&recordingSink{}).Run(context.Background(), requestFor(ts.URL))
	require.Equal(t, KindOther, res.Kind)
	require.True(t, strings.HasPrefix(res.Reason, "Unexpected error: "))
}

func TestRunEmptyAudioURL(t *testing.T) {
	sink := &recordingSink{}
	called := false
	runner := New(func(string) Client {
		called = true
		return nil
	}, WithSink(sink), WithLogger(discardLogger()))

	res := runner.Run(context.Background(), Request{AudioURL: "  ", BaseURL: DefaultBaseURL})
	require.False(t, called)
	require.Equal(t, KindOther, res.Kind)
	require.Equal(t, "Unexpected error: audio URL is required", res.Reason)
	require.Zero(t, sink.started)
	require.Len(t, sink.failures, 1)
}

type stubClient struct {
	req model.ChatCompletionRequest
	err error
}

func (c *stubClient) Endpoint() string { return "stub" }

func (c *stubClient) ChatCompletion(_ context.Context, req model.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.req = req
	return openai.ChatCompletionResponse{}, c.err
}

func TestRunPassesSamplingParameters(t *testing.T) {
	stub := &stubClient{}
	var gotBase string
	runner := New(func(baseURL string) Client {
		gotBase = baseURL
		return stub
	}, WithLogger(discardLogger()))

	req := Request{AudioURL: "https://a/b.wav", BaseURL: "http://svc:9000", Temperature: 1.2, TopP: 0.5, TopK: -1, MaxTokens: 3}
	res := runner.Run(context.Background(), req)
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, "http://svc:9000", gotBase)
	require.Equal(t, 1.2, stub.req.Temperature)
	require.Equal(t, 0.5, stub.req.TopP)
	require.Equal(t, -1, stub.req.TopK)
	require.Equal(t, 3, stub.req.MaxTokens)
	require.Equal(t, "https://a/b.wav", stub.req.Messages[0].Content[0].AudioURL.URL)
}

func TestRunCanceledContextIsOther(t *testing.T) {
	stub := &stubClient{err: context.Canceled}
	runner := New(func(string) Client { return stub }, WithLogger(discardLogger()))

	res := runner.Run(context.Background(), NewRequest("u"))
	require.Equal(t, KindOther, res.Kind)
	require.Equal(t, "Unexpected error: context canceled", res.Reason)
}

func TestClassify(t *testing.T) {
	req := NewRequest("u")
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"upstream", &openai.Error{StatusCode: 502, Body: "bad gateway"}, KindHTTPStatus},
		{"format", &openai.FormatError{Body: []byte(`{}`)}, KindUnexpectedFormat},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", errors.Join(errors.New("post"), context.DeadlineExceeded), KindTimeout},
		{"eof", io.EOF, KindConnection},
		{"other", errors.New("boom"), KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, classify(tc.err, req).Kind)
		})
	}
}

func TestDescribeTimeout(t *testing.T) {
	require.Equal(t, "5 minutes", describeTimeout(300*time.Second))
	require.Equal(t, "1 minute", describeTimeout(time.Minute))
	require.Equal(t, "90 seconds", describeTimeout(90*time.Second))
	require.Equal(t, "1.5s", describeTimeout(1500*time.Millisecond))
}

func TestExitCodeMatchesKind(t *testing.T) {
	for _, k := range []Kind{KindSuccess, KindTimeout, KindConnection, KindHTTPStatus, KindUnexpectedFormat, KindOther} {
		want := 1
		if k == KindSuccess {
			want = 0
		}
		require.Equal(t, want, Result{Kind: k}.ExitCode(), k.String())
	}
}

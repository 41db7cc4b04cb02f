package caption

import (
	"encoding/json"
	"time"
)

type Kind int

const (
	KindSuccess Kind = iota
	KindTimeout
	KindConnection
	KindHTTPStatus
	KindUnexpectedFormat
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_failure"
	case KindHTTPStatus:
		return "http_status"
	case KindUnexpectedFormat:
		return "unexpected_format"
	default:
		return "other"
	}
}

// Usage holds the token accounting reported by the service. A nil field means
// the service did not report it.
type Usage struct {
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// Result is the outcome of one caption request. Kind selects which of the
// remaining fields are meaningful: Caption, Usage and UsageReported for
// KindSuccess, Reason for every other kind.
type Result struct {
	Kind          Kind
	Caption       string
	Usage         Usage
	UsageReported bool
	Raw           json.RawMessage

	Reason     string
	StatusCode int

	Duration time.Duration
}

func (r Result) Success() bool {
	return r.Kind == KindSuccess
}

func (r Result) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

func failure(kind Kind, reason string) Result {
	return Result{Kind: kind, Reason: reason}
}

package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"audiocaption/internal/upstream/openai"
)

func classify(err error, req Request) Result {
	var upstreamErr *openai.Error
	var formatErr *openai.FormatError
	switch {
	case errors.As(err, &upstreamErr):
		res := failure(KindHTTPStatus, fmt.Sprintf("HTTP error: %d - %s", upstreamErr.StatusCode, upstreamErr.Body))
		res.StatusCode = upstreamErr.StatusCode
		return res
	case errors.As(err, &formatErr):
		res := failure(KindUnexpectedFormat, "Unexpected response format")
		res.Raw = formatErr.Body
		return res
	case isTimeout(err):
		return failure(KindTimeout, "Request timed out after "+describeTimeout(req.Timeout))
	case isConnectionFailure(err):
		return failure(KindConnection, fmt.Sprintf("Failed to connect to %s. Is the service running?", req.BaseURL))
	default:
		return failure(KindOther, fmt.Sprintf("Unexpected error: %v", err))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnectionFailure reports errors raised before any response arrived:
// dial and DNS failures, refused or reset connections, and a peer that
// hung up without answering.
func isConnectionFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF)
}

func describeTimeout(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int(d/time.Second), "second")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

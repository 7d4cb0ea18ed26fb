// Package httputil provides HTTP helpers shared by the collectors.
package httputil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// Policy bounds the retries of a request
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles on each retry
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay (0 means no cap)
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt, body read included (0 means no bound)
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the policy used when collectors are not configured otherwise.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff returns the delay before retry number attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = time.Hour
	}
	d := p.BaseDelay
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// Retryable reports whether a response status is worth retrying.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// DoWithRetry executes an HTTP request and retries on HTTP 429, 5xx gateway errors and
// network timeouts with exponential backoff.
//
// Every attempt gets its own AttemptTimeout deadline, and an attempt that runs past it
// is retried like a network timeout. Cancellation of ctx is final. On each retried
// response the body is drained and closed before sleeping. After exhausting retries the
// last response is returned so the caller can inspect it; its deadline is released when
// the body is closed.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, p Policy) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		attemptReq := req.Clone(attemptCtx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				cancel()
				return nil, err
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTimeout(err) || attempt >= p.MaxRetries {
				return nil, err
			}
		} else {
			if !Retryable(resp.StatusCode) || attempt >= p.MaxRetries {
				resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			cancel()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
}

// cancelOnClose releases an attempt deadline together with the response body
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Package httputil retries idempotent requests against the metadata service.
package httputil

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/infinite-dreams/igame-bootstrapper/internal/logging"
)

var log = logging.L("httputil")

// RetryConfig controls the retry behavior for HTTP requests.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFrac    float64 // ±fraction of delay to randomize (e.g. 0.3 = ±30%)
}

// DefaultRetryConfig returns the defaults used for metadata API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		BackoffFactor: 2.0,
		JitterFrac:    0.3,
	}
}

// backoff yields the wait before each retry.
type backoff struct {
	cfg  RetryConfig
	next time.Duration
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{cfg: cfg, next: cfg.InitialDelay}
}

// wait returns the jittered delay for the coming retry. A Retry-After hint
// from the server replaces the computed delay, bounded by MaxDelay.
func (b *backoff) wait(hint time.Duration) time.Duration {
	d := b.next
	b.next = time.Duration(float64(b.next) * b.cfg.BackoffFactor)
	if b.cfg.MaxDelay > 0 {
		b.next = min(b.next, b.cfg.MaxDelay)
	}

	if hint > 0 {
		if b.cfg.MaxDelay > 0 {
			return min(hint, b.cfg.MaxDelay)
		}
		return hint
	}
	return applyJitter(d, b.cfg.JitterFrac)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Do sends a request and retries transport failures and retryable statuses.
// body is replayed on every attempt.
//
// When the last attempt still ends in a retryable status, that response is
// returned unclosed: the metadata service reports maintenance windows in a
// 500 body the caller has to read. A transport failure on the last attempt
// is returned as the error.
func Do(ctx context.Context, client *http.Client, method, url string, body []byte, headers http.Header, cfg RetryConfig) (*http.Response, error) {
	b := newBackoff(cfg)
	var hint time.Duration
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			d := b.wait(hint)
			log.Debug("retrying request", "attempt", attempt, "delay", d, logging.KeyURL, url)
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		for k, vals := range headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		last := attempt >= cfg.MaxRetries
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, hint = err, 0
			if last {
				break
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) || last {
			return resp, nil
		}
		hint = retryAfter(resp)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}

	log.Warn("all retries exhausted", "method", method, logging.KeyURL, url, "attempts", cfg.MaxRetries+1, logging.KeyError, lastErr)
	return nil, lastErr
}

// applyJitter adds ±frac random jitter to a duration.
func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jitter := float64(d) * frac * (2*rand.Float64() - 1)
	return max(time.Duration(float64(d)+jitter), 0)
}

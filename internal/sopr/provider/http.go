package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sopr-stats-sol/internal/pkg/utils"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound 上游明确返回不存在（404 或空结果）
var ErrNotFound = errors.New("not found")

const (
	maxRateLimitRetries = 3
	maxResponseBytes    = 8 << 20
	maxErrorBodyBytes   = 512
	userAgent           = "sopr-stats-sol/1.0"
)

// StatusError 非 2xx 响应
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

type requestBuilder func(ctx context.Context) (*http.Request, error)

func getRequest(url string, headers map[string]string) requestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}
}

func postJSONRequest(url string, body []byte) requestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}
}

// fetchJSON 发送请求并解析 JSON
// 429 带 Retry-After 时等待后重新提交（重新排队），最多 maxRateLimitRetries 次
func fetchJSON[T any](ctx context.Context, client *http.Client, build requestBuilder) (T, error) {
	var out T

	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return out, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return out, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			if delay, ok := retryAfterDelay(resp.Header.Get("Retry-After")); ok {
				drainAndClose(resp.Body)
				rateLimitedTotal.WithLabelValues(req.URL.Host).Inc()
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return out, ctx.Err()
				case <-timer.C:
					continue
				}
			}
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return out, fmt.Errorf("%w: %s", ErrNotFound, redactQuery(req.URL.Redacted()))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return out, &StatusError{
				URL:        redactQuery(req.URL.Redacted()),
				StatusCode: resp.StatusCode,
				Body:       truncate(strings.TrimSpace(string(data)), maxErrorBodyBytes),
			}
		}
		if readErr != nil {
			return out, fmt.Errorf("read response: %w", readErr)
		}

		if err := utils.SafeJsonUnmarshal(data, &out); err != nil {
			return out, fmt.Errorf("decode response from %s: %w", redactQuery(req.URL.Redacted()), err)
		}
		return out, nil
	}
}

func retryAfterDelay(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0), true
	}
	return 0, false
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBodyBytes))
	_ = body.Close()
}

// redactQuery 去掉 query，避免 api-key 出现在错误和日志里
func redactQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

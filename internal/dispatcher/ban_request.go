package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"go-guardian/internal/logging"
	"go-guardian/internal/metrics"
)

var ErrRateLimited = errors.New("rate limited")

// StatusError is a request the platform answered with a non-2xx status.
type StatusError struct {
	Route string
	Code  int
	Body  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Route, e.Code, e.Body)
}

// RemediationClient issues ban and kick requests directly over fasthttp.
type RemediationClient struct {
	baseURL     string
	token       string
	timeout     time.Duration
	httpPool    *HTTPPool
	rateLimiter *RateLimitMonitor
}

func NewRemediationClient(baseURL, token string, timeout time.Duration, pool *HTTPPool, rl *RateLimitMonitor) *RemediationClient {
	return &RemediationClient{
		baseURL:     baseURL,
		token:       token,
		timeout:     timeout,
		httpPool:    pool,
		rateLimiter: rl,
	}
}

type banBody struct {
	DeleteMessageSeconds int `json:"delete_message_seconds"`
}

func (rc *RemediationClient) Ban(ctx context.Context, guildID, userID, reason string) error {
	body, _ := json.Marshal(banBody{})
	path := fmt.Sprintf("/guilds/%s/bans/%s", guildID, userID)
	return rc.do(ctx, "ban", guildID, fasthttp.MethodPut, path, reason, body)
}

func (rc *RemediationClient) Kick(ctx context.Context, guildID, userID, reason string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	return rc.do(ctx, "kick", guildID, fasthttp.MethodDelete, path, reason, nil)
}

func (rc *RemediationClient) do(ctx context.Context, route, guildID, method, path, reason string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rc.rateLimiter.CanExecute(route, guildID) {
		metrics.RemediationLatency.WithLabelValues(route, "rate_limited").Observe(0)
		return fmt.Errorf("%s: %w", route, ErrRateLimited)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rc.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+rc.token)
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(reason))
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(rc.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := rc.httpPool.Client().DoDeadline(req, resp, deadline)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RemediationLatency.WithLabelValues(route, "error").Observe(elapsed.Seconds())
		return fmt.Errorf("%s request: %w", route, err)
	}

	rc.rateLimiter.Update(resp, route, guildID)
	code := resp.StatusCode()
	metrics.RemediationLatency.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())

	if code >= 200 && code < 300 {
		logging.Info("[DISPATCH] %s %s ok in %dµs", route, path, elapsed.Microseconds())
		return nil
	}
	if code == fasthttp.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", route, ErrRateLimited)
	}
	return &StatusError{Route: route, Code: code, Body: string(resp.Body())}
}

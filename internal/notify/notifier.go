// Package notify delivers signed moderation events to configured webhook
// endpoints.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Moderation-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(eventType string, success bool)

// Notifier fans events out to every subscribed endpoint. Deliveries run in
// the background and retry on connection errors, 5xx and 429.
type Notifier struct {
	endpoints []Endpoint
	client    *retryablehttp.Client
	onMetrics MetricsRecorder
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithRetry sets the retry budget and backoff bounds.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(n *Notifier) {
		n.client.RetryMax = max
		n.client.RetryWaitMin = waitMin
		n.client.RetryWaitMax = waitMax
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		n.client.HTTPClient.Timeout = d
	}
}

// New creates a Notifier for the given endpoints.
func New(endpoints []Endpoint, logger *zap.Logger, opts ...Option) *Notifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = retryablehttp.LeveledLogger(leveledZap{logger.Sugar()})

	n := &Notifier{endpoints: endpoints, client: client, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// Dispatch sends an event to every endpoint that wants it. It returns
// immediately; delivery outlives the caller's context.
func (n *Notifier) Dispatch(ctx context.Context, eventType string, payload any) {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("notify: marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, ep := range n.endpoints {
		if !ep.Wants(eventType) {
			continue
		}
		n.wg.Add(1)
		go func(ep Endpoint) {
			defer n.wg.Done()
			n.deliver(ctx, ep, eventType, body)
		}(ep)
	}
}

// Wait blocks until all in-flight deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, eventType string, body []byte) {
	err := n.post(ctx, ep, body)
	if n.onMetrics != nil {
		n.onMetrics(eventType, err == nil)
	}
	if err != nil {
		n.logger.Warn("notify: delivery failed",
			zap.String("url", ep.URL),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

func (n *Notifier) post(ctx context.Context, ep Endpoint, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// leveledZap adapts zap to retryablehttp. Intermediate errors are logged as
// warnings because they are retried.
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, kv ...interface{}) { l.inner.Warnw(msg, kv...) }
func (l leveledZap) Warn(msg string, kv ...interface{})  { l.inner.Warnw(msg, kv...) }
func (l leveledZap) Info(msg string, kv ...interface{})  { l.inner.Debugw(msg, kv...) }
func (l leveledZap) Debug(msg string, kv ...interface{}) { l.inner.Debugw(msg, kv...) }

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
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
)

const (
	// SignatureHeader carries "sha256=<hex hmac>" of the request body.
	SignatureHeader = "X-Sovereign-Signature"
	// EventIDHeader carries the delivery's event ID for receiver-side dedup.
	EventIDHeader = "X-Sovereign-Event-ID"

	maxAttempts  = 3
	defaultQueue = 256
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// WebhookEvent is the JSON body posted to subscribers.
type WebhookEvent struct {
	ID        uuid.UUID    `json:"id"`
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Data      ledger.Event `json:"data"`
}

// WebhookNotifier posts events to a fixed set of URLs. Events are queued and
// delivered by one worker, so every endpoint sees them in commit order.
type WebhookNotifier struct {
	urls       []string
	secret     string
	httpClient *http.Client
	delays     []time.Duration // wait before attempt i+1
	onMetrics  MetricsRecorder
	logger     *zap.Logger

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan WebhookEvent
	done   chan struct{}
}

// NewWebhookNotifier creates a WebhookNotifier and starts its delivery worker.
// Call Close to drain the queue and stop the worker.
func NewWebhookNotifier(urls []string, secret string, logger *zap.Logger) *WebhookNotifier {
	n := &WebhookNotifier{
		urls:       urls,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{1 * time.Second, 5 * time.Second},
		logger:     logger,
		queue:      make(chan WebhookEvent, defaultQueue),
		done:       make(chan struct{}),
	}
	go n.run()
	return n
}

// SetMetricsRecorder configures the metrics callback.
func (n *WebhookNotifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// SetRetryDelays replaces the waits between delivery attempts.
func (n *WebhookNotifier) SetRetryDelays(delays ...time.Duration) {
	n.delays = delays
}

// Notify implements ledger.Notifier. It never blocks; when the queue is full
// or the notifier is closed the event is dropped and logged.
func (n *WebhookNotifier) Notify(_ context.Context, ev ledger.Event) {
	event := WebhookEvent{
		ID:        uuid.New(),
		Type:      string(ev.Kind),
		Timestamp: time.Unix(ev.Timestamp, 0).UTC(),
		Data:      ev,
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn("webhook: notifier closed, event dropped",
			zap.String("id", event.ID.String()),
			zap.String("type", event.Type),
		)
		return
	}
	select {
	case n.queue <- event:
	default:
		n.logger.Warn("webhook: queue full, event dropped",
			zap.String("id", event.ID.String()),
			zap.String("type", event.Type),
		)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// Events passed to Notify after Close are dropped.
func (n *WebhookNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *WebhookNotifier) run() {
	defer close(n.done)
	for event := range n.queue {
		body, err := json.Marshal(event)
		if err != nil {
			n.logger.Error("webhook: marshal event", zap.Error(err))
			continue
		}
		signature := signPayload(body, n.secret)
		for _, url := range n.urls {
			n.deliver(url, event, body, signature)
		}
	}
}

// deliver sends one event to one URL with retries.
func (n *WebhookNotifier) deliver(url string, event WebhookEvent, body []byte, signature string) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && attempt-2 < len(n.delays) {
			time.Sleep(n.delays[attempt-2])
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
		success, errMsg := n.doDelivery(ctx, url, event.ID, body, signature)
		cancel()

		if n.onMetrics != nil {
			n.onMetrics(success)
		}
		if success {
			return
		}

		n.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.String("id", event.ID.String()),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST.
func (n *WebhookNotifier) doDelivery(ctx context.Context, url string, id uuid.UUID, body []byte, signature string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(EventIDHeader, id.String())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, ""
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}

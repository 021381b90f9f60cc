// internal/effects/webhook.go
package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/security"
)

// WebhookTimeout bounds one webhook request.
const WebhookTimeout = 10 * time.Second

// ErrUnknownWebhook is returned when a trigger references a webhook ID that
// is not configured.
var ErrUnknownWebhook = errors.New("unknown webhook")

const (
	contentJSON = "application/json"
	contentForm = "application/x-www-form-urlencoded"
)

// WebhookSender delivers trigger messages to configured webhooks.
type WebhookSender struct {
	ctx    context.Context
	client *http.Client
	logger *slog.Logger

	mu    sync.RWMutex
	hooks map[string]config.Webhook

	wg sync.WaitGroup
}

// NewWebhookSender creates a sender. In-flight requests are cancelled when
// ctx is done.
func NewWebhookSender(ctx context.Context, hooks []config.Webhook, logger *slog.Logger) *WebhookSender {
	if logger == nil {
		logger = slog.Default()
	}
	w := &WebhookSender{
		ctx:    ctx,
		client: &http.Client{Timeout: WebhookTimeout},
		logger: logger,
	}
	w.SetWebhooks(hooks)
	return w
}

// SetWebhooks replaces the webhook table.
func (w *WebhookSender) SetWebhooks(hooks []config.Webhook) {
	m := make(map[string]config.Webhook, len(hooks))
	for _, h := range hooks {
		m[h.ID] = h
	}
	w.mu.Lock()
	w.hooks = m
	w.mu.Unlock()
}

// Call sends msg to the webhook in the background. Failures are logged.
func (w *WebhookSender) Call(id, msg string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Send(w.ctx, id, msg); err != nil {
			w.logger.Warn("webhook failed", "webhook", id, "error", security.Scrub(err.Error()))
		}
	}()
}

// Wait blocks until every background call has finished.
func (w *WebhookSender) Wait() {
	w.wg.Wait()
}

// Send delivers msg to the webhook and waits for the response.
func (w *WebhookSender) Send(ctx context.Context, id, msg string) error {
	w.mu.RLock()
	hook, ok := w.hooks[id]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWebhook, id)
	}

	req, err := BuildRequest(ctx, hook, msg)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending to %s: %w", hook.Name, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %s: %s", hook.Name, resp.Status, strings.TrimSpace(string(body)))
	}

	w.logger.Debug("webhook sent",
		"webhook", hook.Name,
		"url", security.ScrubURL(hook.URL),
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return nil
}

// BuildRequest encodes msg for the webhook's content type and applies its
// authentication and custom headers. JSON webhooks receive msg as-is when
// it is itself JSON, otherwise wrapped as {"content": msg}. Form webhooks
// receive message=msg. Anything else gets the raw text.
func BuildRequest(ctx context.Context, hook config.Webhook, msg string) (*http.Request, error) {
	var body []byte
	switch hook.ContentType {
	case contentJSON:
		if json.Valid([]byte(msg)) {
			body = []byte(msg)
		} else {
			b, err := json.Marshal(map[string]string{"content": msg})
			if err != nil {
				return nil, fmt.Errorf("encoding webhook payload: %w", err)
			}
			body = b
		}
	case contentForm:
		body = []byte(url.Values{"message": {msg}}.Encode())
	default:
		body = []byte(msg)
	}

	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating webhook request: %w", err)
	}

	if hook.ContentType != "" {
		req.Header.Set("Content-Type", hook.ContentType)
	}
	if hook.AuthValue != "" {
		switch hook.AuthType {
		case config.AuthBearer:
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		case config.AuthAPIKey:
			req.Header.Set("Authorization", hook.AuthValue)
		case config.AuthCustomHeader:
			if hook.AuthHeader != "" {
				req.Header.Set(hook.AuthHeader, hook.AuthValue)
			}
		}
	}
	for k, v := range hook.CustomHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

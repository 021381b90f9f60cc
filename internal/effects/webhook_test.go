// internal/effects/webhook_test.go
package effects

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colebrumley/logtrigger/internal/config"
)

type captured struct {
	method string
	header http.Header
	body   string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{method: r.Method, header: r.Header.Clone(), body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// ===== Payload encoding =====

func TestBuildRequest_Payloads(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		msg         string
		want        string
	}{
		{"json wraps plain text", contentJSON, "RAMPAGE on Caster", `{"content":"RAMPAGE on Caster"}`},
		{"json passes json through", contentJSON, `{"embeds":[{"title":"Mez"}]}`, `{"embeds":[{"title":"Mez"}]}`},
		{"json escapes quotes", contentJSON, `say "hi"`, `{"content":"say \"hi\""}`},
		{"form", contentForm, "Mez a gnoll", "message=Mez+a+gnoll"},
		{"plain", "text/plain", "Mez a gnoll", "Mez a gnoll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := config.Webhook{URL: "http://example.invalid/hook", Method: http.MethodPost, ContentType: tt.contentType}
			req, err := BuildRequest(context.Background(), hook, tt.msg)
			require.NoError(t, err)
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))
			assert.Equal(t, tt.contentType, req.Header.Get("Content-Type"))
		})
	}
}

func TestBuildRequest_Auth(t *testing.T) {
	tests := []struct {
		name   string
		hook   config.Webhook
		header string
		want   string
	}{
		{"bearer", config.Webhook{AuthType: config.AuthBearer, AuthValue: "tok"}, "Authorization", "Bearer tok"},
		{"api key", config.Webhook{AuthType: config.AuthAPIKey, AuthValue: "key-123"}, "Authorization", "key-123"},
		{"custom header", config.Webhook{AuthType: config.AuthCustomHeader, AuthHeader: "X-Token", AuthValue: "abc"}, "X-Token", "abc"},
		{"none", config.Webhook{AuthType: config.AuthNone, AuthValue: "ignored"}, "Authorization", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.hook.URL = "http://example.invalid/hook"
			tt.hook.CustomHeaders = map[string]string{"X-Guild": "Raiders"}
			req, err := BuildRequest(context.Background(), tt.hook, "msg")
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Header.Get(tt.header))
			assert.Equal(t, "Raiders", req.Header.Get("X-Guild"))
			assert.Equal(t, http.MethodPost, req.Method)
		})
	}
}

// ===== Delivery =====

func TestWebhookSender_Send(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusNoContent)
	w := NewWebhookSender(context.Background(), []config.Webhook{
		{ID: "discord", Name: "Discord", URL: srv.URL, Method: http.MethodPut, ContentType: contentJSON, AuthType: config.AuthBearer, AuthValue: "tok"},
	}, discard())

	require.NoError(t, w.Send(context.Background(), "discord", "Mez a gnoll"))

	reqs := got()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, `{"content":"Mez a gnoll"}`, reqs[0].body)
	assert.Equal(t, "Bearer tok", reqs[0].header.Get("Authorization"))
}

func TestWebhookSender_Errors(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusInternalServerError)
	w := NewWebhookSender(context.Background(), []config.Webhook{
		{ID: "broken", Name: "Broken", URL: srv.URL, Method: http.MethodPost},
	}, discard())

	assert.ErrorIs(t, w.Send(context.Background(), "missing", "x"), ErrUnknownWebhook)

	err := w.Send(context.Background(), "broken", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestWebhookSender_CallIsAsync(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK)
	w := NewWebhookSender(context.Background(), nil, discard())
	w.SetWebhooks([]config.Webhook{{ID: "form", Name: "Form", URL: srv.URL, Method: http.MethodPost, ContentType: contentForm}})

	w.Call("form", "one")
	w.Call("form", "two")
	w.Call("missing", "dropped")
	w.Wait()

	var bodies []string
	for _, r := range got() {
		bodies = append(bodies, r.body)
	}
	assert.ElementsMatch(t, []string{"message=one", "message=two"}, bodies)
}

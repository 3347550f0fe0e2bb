package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSender records outbound texts for webhook tests.
type countingSender struct {
	mu    sync.Mutex
	sends []Outbound
}

func (s *countingSender) SendText(ctx context.Context, toPhone string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, Outbound{CustomerID: toPhone, Text: text})
	return nil
}

func testServer(t *testing.T) (*server, *countingSender) {
	t.Helper()
	sender := &countingSender{}
	s := &server{
		bot:    testBot(t, &recordingSink{}),
		sender: sender,
		cfg:    Config{VerifyToken: "secreto"},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		dedup:  newMessageDeduper(16),
	}
	return s, sender
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}

func TestWebhookVerifyHandshake(t *testing.T) {
	s, _ := testServer(t)
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET",
		"/webhook?hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=12345", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET",
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func webhookBody(msgID, from, text string) *bytes.Reader {
	payload := map[string]any{
		"entry": []any{map[string]any{
			"changes": []any{map[string]any{
				"value": map[string]any{
					"messages": []any{map[string]any{
						"id":   msgID,
						"from": from,
						"text": map[string]any{"body": text},
					}},
				},
			}},
		}},
	}
	j, _ := json.Marshal(payload)
	return bytes.NewReader(j)
}

func TestWebhookReceiveRepliesOnce(t *testing.T) {
	s, sender := testServer(t)
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook", webhookBody("wamid.1", "549111", "hola")))
	assert.Equal(t, 200, rec.Code)
	require.Len(t, sender.sends, 1)
	assert.Equal(t, "549111", sender.sends[0].CustomerID)
	assert.Contains(t, sender.sends[0].Text, "Menú")

	// redelivery of the same message id is acknowledged but not handled
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/webhook", webhookBody("wamid.1", "549111", "hola")))
	assert.Equal(t, 200, rec.Code)
	assert.Len(t, sender.sends, 1)
}

func TestWebhookAcknowledgesStatusCallbacks(t *testing.T) {
	s, sender := testServer(t)
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"entry": [{"changes": [{"value": {"statuses": [{"id": "x"}]}}]}]}`)
	s.routes().ServeHTTP(rec, httptest.NewRequest("POST", "/webhook", body))
	assert.Equal(t, 200, rec.Code)
	assert.Empty(t, sender.sends)
}

func TestTestMessageEndpoint(t *testing.T) {
	s, _ := testServer(t)
	h := s.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/test_message",
		strings.NewReader(`{"from": "dev", "text": "2 hamburguesas"}`)))
	require.Equal(t, 200, rec.Code)

	var resp struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Reply, "Anoté 2 x Burger.")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/test_message", strings.NewReader(`{`)))
	assert.Equal(t, 400, rec.Code)
}

func TestConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DELIVERY_FEE", "ETA_MIN"} {
		t.Setenv(k, "")
	}
	cfg := loadConfig()
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, int64(300000), cfg.DeliveryFee)
	assert.Equal(t, 20, cfg.ETAMinutes)
}

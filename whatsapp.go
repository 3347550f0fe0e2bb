package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MessageSender delivers outbound replies over the messaging channel.
type MessageSender interface {
	SendText(ctx context.Context, toPhone string, text string) error
}

// NoopSender swallows outbound messages; used with the test endpoint and
// in tests.
type NoopSender struct{}

func (NoopSender) SendText(ctx context.Context, toPhone string, text string) error { return nil }

// WhatsAppClient sends texts through the Meta WhatsApp Cloud API. Sends
// pass through a rate limiter because Meta throttles per phone number.
type WhatsAppClient struct {
	Token         string
	PhoneNumberID string
	Limiter       *rate.Limiter
	HTTPClient    *http.Client
}

func NewWhatsAppClient(token, phoneNumberID string) *WhatsAppClient {
	return &WhatsAppClient{
		Token:         token,
		PhoneNumberID: phoneNumberID,
		Limiter:       rate.NewLimiter(rate.Limit(10), 20),
		HTTPClient:    &http.Client{Timeout: 12 * time.Second},
	}
}

type waTextPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (c *WhatsAppClient) SendText(ctx context.Context, toPhone string, text string) error {
	if c.Token == "" || c.PhoneNumberID == "" {
		return nil
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload := waTextPayload{MessagingProduct: "whatsapp", To: toPhone, Type: "text"}
	payload.Text.Body = text
	j, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://graph.facebook.com/v20.0/%s/messages", c.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(j))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp send error (%d): %s", resp.StatusCode, string(out))
	}
	return nil
}

// -------- webhook payload --------

type waWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// parseWebhookMessage pulls the first text message out of a Meta webhook
// delivery. ok is false for status callbacks and other non-text payloads.
func parseWebhookMessage(body []byte) (from, text, msgID string, ok bool) {
	var p waWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", "", "", false
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return "", "", "", false
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 || msgs[0].From == "" {
		return "", "", "", false
	}
	return msgs[0].From, msgs[0].Text.Body, msgs[0].ID, true
}

// messageDeduper drops webhook redeliveries of the same message id.
// Bounded: oldest half is evicted when full.
type messageDeduper struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []string
	max   int
}

func newMessageDeduper(max int) *messageDeduper {
	return &messageDeduper{seen: map[string]bool{}, max: max}
}

// Seen marks the id and reports whether it was already recorded.
func (d *messageDeduper) Seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return true
	}
	if len(d.order) >= d.max {
		cut := d.max / 2
		for _, old := range d.order[:cut] {
			delete(d.seen, old)
		}
		d.order = append([]string(nil), d.order[cut:]...)
	}
	d.seen[id] = true
	d.order = append(d.order, id)
	return false
}

package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/peerpay/ledgercore/internal/models"
)

// Deliverer pushes a stored notification out to the identity's device or
// endpoint. Delivery failures are retried by the caller; the store row is the
// source of truth either way.
type Deliverer interface {
	// Deliver pushes one notification. Returns the channel name for metrics
	// and an error if the push failed.
	Deliver(ctx context.Context, n models.Notification) (string, error)
}

// MockDeliverer simulates an external push channel for development and tests.
// It introduces a small random delay and fails ~10% of the time.
type MockDeliverer struct {
	// FailureRate is the probability of failure (0.0 to 1.0). Default: 0.1.
	FailureRate float64
}

func NewMockDeliverer() *MockDeliverer {
	return &MockDeliverer{FailureRate: 0.1}
}

func (d *MockDeliverer) Deliver(ctx context.Context, n models.Notification) (string, error) {
	delay := time.Duration(rand.Intn(200)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "mock", fmt.Errorf("delivery canceled: %w", ctx.Err())
	}

	if rand.Float64() < d.FailureRate {
		return "mock", fmt.Errorf("push channel temporarily unavailable")
	}
	return "mock", nil
}

// WebhookDeliverer POSTs notifications to a subscriber endpoint, signing the
// body with HMAC-SHA256 so the receiver can verify origin.
type WebhookDeliverer struct {
	endpoint string
	hmacKey  []byte
	client   *http.Client
}

func NewWebhookDeliverer(endpoint, hmacKey string) *WebhookDeliverer {
	return &WebhookDeliverer{
		endpoint: endpoint,
		hmacKey:  []byte(hmacKey),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, n models.Notification) (string, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return "webhook", fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "webhook", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", d.sign(body))

	resp, err := d.client.Do(req)
	if err != nil {
		return "webhook", fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "webhook", fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return "webhook", nil
}

func (d *WebhookDeliverer) sign(payload []byte) string {
	h := hmac.New(sha256.New, d.hmacKey)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

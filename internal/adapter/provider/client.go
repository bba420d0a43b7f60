package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xiaot623/dualchat/internal/domain"
)

const maxResponseBytes = 8 << 20

// NewHTTPClient returns the client shared by all adapters. Per-call deadlines
// come from the caller's context; timeout is a backstop.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// transport performs the single JSON POST of an adapter call and turns every
// failure into a *domain.ProviderError for vendor.
type transport struct {
	vendor string
	client *http.Client
}

func (t *transport) httpClient() *http.Client {
	if t.client == nil {
		return http.DefaultClient
	}
	return t.client
}

// postJSON sends payload and decodes a 2xx body into out.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return t.fail(0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return t.fail(0, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.httpClient().Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return t.fail(0, "request timed out", err)
		}
		return t.fail(0, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return t.fail(resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := vendorMessage(respBody)
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return &domain.ProviderError{Vendor: t.vendor, Message: msg, StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return t.fail(resp.StatusCode, "failed to decode response", err)
	}
	return nil
}

// missing reports a 2xx body without the expected completion field.
func (t *transport) missing(field, vendorMsg string) error {
	msg := vendorMsg
	if msg == "" {
		msg = "response missing " + field
	}
	return &domain.ProviderError{Vendor: t.vendor, Message: msg, StatusCode: http.StatusOK}
}

func (t *transport) fail(status int, msg string, err error) error {
	return &domain.ProviderError{
		Vendor:     t.vendor,
		Message:    fmt.Sprintf("%s: %v", msg, err),
		StatusCode: status,
		Err:        err,
	}
}

// errorEnvelope covers {"error":{"message":..}}, {"error":"..."} and {"message":..}.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// vendorMessage extracts the vendor's own error message from a body, if any.
func vendorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if len(env.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(env.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}
	return env.Message
}

// Package gateway talks to the remote WhatsApp HTTP gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/whatsapp-campaigns/internal/errors"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// Client sends one message per call. It never retries.
type Client interface {
	SendText(ctx context.Context, phone, text string, sender Sender) error
	SendMedia(ctx context.Context, phone, mediaURL, caption string, sender Sender, mediaType string) error
}

// Sender is the opaque identity used to pick gateway credentials.
type Sender struct {
	ID string
}

// CredentialResolver returns the integration for a sender, or nil when none is configured.
type CredentialResolver interface {
	GetBySenderID(ctx context.Context, senderID string) (*model.Integration, error)
}

// Error is the structured failure payload reported by the gateway.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned HTTP %d", e.StatusCode)
	}
	return e.Message
}

// EvolutionClient posts to an Evolution-style API: /message/sendText/{instance}
// and /message/sendMedia/{instance}, authenticated with an apikey header.
type EvolutionClient struct {
	HTTP     *http.Client
	Resolver CredentialResolver
	Fallback *model.Integration
}

// NewEvolutionClient builds a client whose every call is bounded by timeout.
func NewEvolutionClient(resolver CredentialResolver, fallback *model.Integration, timeout time.Duration) *EvolutionClient {
	return &EvolutionClient{
		HTTP:     &http.Client{Timeout: timeout},
		Resolver: resolver,
		Fallback: fallback,
	}
}

type textRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type mediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption"`
}

func (c *EvolutionClient) SendText(ctx context.Context, phone, text string, sender Sender) error {
	return c.post(ctx, "sendText", sender, textRequest{Number: NormalizePhone(phone), Text: text})
}

func (c *EvolutionClient) SendMedia(ctx context.Context, phone, mediaURL, caption string, sender Sender, mediaType string) error {
	if mediaType == "" {
		mediaType = "image"
	}
	return c.post(ctx, "sendMedia", sender, mediaRequest{
		Number:    NormalizePhone(phone),
		MediaType: mediaType,
		Media:     mediaURL,
		Caption:   caption,
	})
}

func (c *EvolutionClient) credentials(ctx context.Context, sender Sender) (*model.Integration, error) {
	if sender.ID != "" && c.Resolver != nil {
		in, err := c.Resolver.GetBySenderID(ctx, sender.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve credentials: %w", err)
		}
		if in.Complete() {
			return in, nil
		}
	}
	if c.Fallback.Complete() {
		return c.Fallback, nil
	}
	return nil, &appErrors.ErrNoCredentials{SenderID: sender.ID}
}

func (c *EvolutionClient) post(ctx context.Context, action string, sender Sender, payload interface{}) error {
	creds, err := c.credentials(ctx, sender)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/message/%s/%s", strings.TrimRight(creds.BaseURL, "/"), action, creds.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", creds.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"action":      action,
		"instance":    creds.Instance,
		"status_code": resp.StatusCode,
	}).Debug("gateway response received")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
}

// errorMessage digs the human-readable message out of the gateway error body.
// The gateway nests it as {"response":{"message":[...]}} or returns {"message":"..."}.
func errorMessage(raw []byte) string {
	var payload struct {
		Message  interface{} `json:"message"`
		Error    string      `json:"error"`
		Response struct {
			Message interface{} `json:"message"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, m := range []interface{}{payload.Response.Message, payload.Message} {
		if s := flatten(m); s != "" {
			return s
		}
	}
	return payload.Error
}

func flatten(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := flatten(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]interface{}:
		b, _ := json.Marshal(t)
		return string(b)
	}
	return ""
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

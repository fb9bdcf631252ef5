// Package alerts runs the daily stockout digest: per-org risk assessment,
// at-most-once delivery per UTC day, fan-out to email and webhook channels.
package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"stocksense/internal/config"
	"stocksense/internal/risk"
)

// Sink delivers one org digest over one channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, digest *risk.Digest) error
}

// EmailSink sends the digest as a plain-text email over SMTP.
type EmailSink struct {
	cfg config.AlertConfig
}

func NewEmailSink(cfg config.AlertConfig) *EmailSink { return &EmailSink{cfg: cfg} }

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Deliver(ctx context.Context, digest *risk.Digest) error {
	if e.cfg.SMTPHost == "" || len(e.cfg.EmailTo) == 0 {
		return fmt.Errorf("email channel not configured")
	}

	subject := fmt.Sprintf("Stockout alert: %d high, %d medium risk products (%s)",
		digest.HighCount, digest.MediumCount, digest.OrgName)

	var body strings.Builder
	fmt.Fprintf(&body, "Daily stockout digest for %s\n\n", digest.OrgName)
	for _, item := range digest.Items {
		if item.DaysToStockout != nil {
			fmt.Fprintf(&body, "[%s] %s (%s): %.1f days of cover, %.0f on hand\n",
				strings.ToUpper(string(item.RiskLevel)), item.Name, item.SKU, *item.DaysToStockout, item.OnHand)
		} else {
			fmt.Fprintf(&body, "[%s] %s (%s): %.0f on hand, at or below reorder point\n",
				strings.ToUpper(string(item.RiskLevel)), item.Name, item.SKU, item.OnHand)
		}
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.cfg.EmailFrom, strings.Join(e.cfg.EmailTo, ", "), subject, body.String())

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)
	var auth smtp.Auth
	if e.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", e.cfg.SMTPUser, e.cfg.SMTPPass, e.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, e.cfg.EmailFrom, e.cfg.EmailTo, []byte(msg)); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}

// WebhookSink posts the digest as JSON, signed with an HMAC-SHA256 header
// so receivers can verify origin.
type WebhookSink struct {
	url    string
	secret string
	hc     *http.Client
}

func NewWebhookSink(cfg config.AlertConfig) *WebhookSink {
	return &WebhookSink{
		url:    cfg.WebhookURL,
		secret: cfg.SigningSecret,
		hc:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Deliver(ctx context.Context, digest *risk.Digest) error {
	if w.url == "" {
		return fmt.Errorf("webhook channel not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":      "stockout_digest",
		"org_id":    digest.OrgID,
		"org_name":  digest.OrgName,
		"high":      digest.HighCount,
		"medium":    digest.MediumCount,
		"items":     digest.Items,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Signature", Sign(payload, w.secret))
	}

	resp, err := w.hc.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

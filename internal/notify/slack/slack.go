// Package slack notifies staff about emergency-route triages via Slack
// incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/pulseroute/internal/triage"
)

const (
	maxExplanationLen = 3000
	httpTimeout       = 10 * time.Second
)

// Notifier sends triage records to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts a triage record to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, rec *triage.Record) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(rec))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "triage_id", rec.ID, "route", rec.CareRoute)
	return nil
}

func buildMessage(r *triage.Record) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			explanationBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Record) map[string]any {
	name := r.Patient.Name
	if name == "" {
		name = triage.DefaultPatientName
	}
	text := fmt.Sprintf("%s %s: %s", severityEmoji(r.SeverityScore), routeTitle(r.CareRoute), name)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.Record) map[string]any {
	age := "unknown"
	if r.Patient.Age != nil {
		age = fmt.Sprintf("%d", *r.Patient.Age)
	}
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %d (%s)", r.SeverityScore, r.SeverityLabel),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Route:* %s", r.CareRoute),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Expected wait:* %s min", r.WaitRange),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Age:* %s", age),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Onset:* %s", orDash(r.Patient.Duration)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Source:* %s", r.Source),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func explanationBlock(r *triage.Record) map[string]any {
	text := truncate(r.Explanation, maxExplanationLen)
	if text == "" {
		text = "_No explanation available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Symptoms*\n%s\n\n*Assessment*\n%s", truncate(r.Patient.Symptoms, maxExplanationLen/2), text),
		},
	}
}

func contextBlock(r *triage.Record) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("pulseroute • triage %s • %s", r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(score int) string {
	switch {
	case score >= triage.MaxSeverity:
		return "\U0001f534" // red circle
	case score >= 4:
		return "\U0001f7e0" // orange circle
	case score == 3:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func routeTitle(r triage.Route) string {
	switch r {
	case triage.RouteER:
		return "ER Arrival"
	case triage.RouteUrgentCare:
		return "Urgent Care Arrival"
	default:
		return "Telehealth Request"
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

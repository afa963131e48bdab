package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver posts a to every configured webhook. Failures are logged.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		var body []byte
		switch wh.Type {
		case "slack":
			body, _ = json.Marshal(map[string]string{
				"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity, a.State), a.Message),
			})
		case "teams":
			body, _ = json.Marshal(map[string]interface{}{
				"@type":      "MessageCard",
				"@context":   "http://schema.org/extensions",
				"themeColor": severityColor(a.Severity, a.State),
				"summary":    a.RuleName,
				"title":      fmt.Sprintf("Coherence alert: %s (%s)", a.RuleName, a.State),
				"text":       a.Message,
			})
		case "http":
			body, _ = json.Marshal(map[string]interface{}{"alert": a})
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(sev, state string) string {
	if state == "resolved" {
		return "[RESOLVED]"
	}
	switch sev {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(sev, state string) string {
	if state == "resolved" {
		return "2EB67D"
	}
	switch sev {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}

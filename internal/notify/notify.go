// Package notify implements the bounded-retry push-notification pipeline
// triggered on every terminal task transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskflow-dev/taskflow/internal/logtail"
	"github.com/taskflow-dev/taskflow/internal/task"
)

const defaultEndpoint = "http://www.pushplus.plus/send"

// TokenSource resolves the workspace-scoped push token, which takes
// precedence over the MSG_PUSH_TOKEN environment variable.
type TokenSource interface {
	PushPlusToken() string
}

// Config parameterises retry/timeout behaviour; a zero-value Config
// gets sensible defaults applied by NewClient.
type Config struct {
	Endpoint       string
	Timeout        time.Duration
	RetryBaseDelay time.Duration
	RetryAttempts  int
	LogTailLines   int
}

// Client posts templated task-outcome notifications with bounded
// exponential-backoff retry. It never blocks the caller past its own
// send — callers are expected to invoke Notify in its own goroutine
// whenever a slow notification must not delay task completion.
type Client struct {
	http *http.Client
	cfg  Config
	log  zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.LogTailLines <= 0 {
		cfg.LogTailLines = 10
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  log.With().Str("component", "notify").Logger(),
	}
}

// silentModeOn re-reads MTF_SILENT_MODE on every call: it must never
// be cached so a runtime .env edit takes effect on the very next task.
func silentModeOn() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MTF_SILENT_MODE")))
	switch v {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func resolveToken(src TokenSource) string {
	if src != nil {
		if tok := src.PushPlusToken(); tok != "" {
			return tok
		}
	}
	return os.Getenv("MSG_PUSH_TOKEN")
}

// Notify sends a templated message summarising rec's terminal
// transition. It resolves the token and checks silent mode immediately
// before sending (not at construction time), skips silently if no
// token is configured or silent mode is on, and retries transport
// failures or rate-limit responses, making at most cfg.RetryAttempts
// attempts in total and waiting base, then 2*base, and so on between
// them (2s then 4s with the default base of 2s and 3 attempts).
func (c *Client) Notify(ctx context.Context, rec *task.HistoryRecord, src TokenSource) {
	if silentModeOn() {
		c.log.Debug().Str("task", rec.Name).Msg("silent mode on, notification skipped")
		return
	}
	token := resolveToken(src)
	if token == "" {
		c.log.Debug().Str("task", rec.Name).Msg("no push token configured, notification skipped")
		return
	}

	title, body := buildMessage(rec, c.cfg.LogTailLines)
	payload, err := json.Marshal(map[string]string{
		"token":   token,
		"title":   title,
		"content": body,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("marshal notification payload")
		return
	}

	delay := c.cfg.RetryBaseDelay
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		ok, retryable, err := c.send(ctx, payload)
		if ok {
			return
		}
		if !retryable {
			if err != nil {
				c.log.Warn().Err(err).Str("task", rec.Name).Msg("notification failed, not retrying")
			}
			return
		}
		if attempt == c.cfg.RetryAttempts {
			c.log.Warn().Str("task", rec.Name).Int("attempts", attempt).Msg("notification exhausted retries")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// send performs one attempt. ok reports success; retryable reports
// whether a transport error or rate-limit response warrants another
// attempt.
func (c *Client) send(ctx context.Context, payload []byte) (ok, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return false, true, fmt.Errorf("rate limited (HTTP 429)")
	}
	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result struct {
		Code int `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, false, fmt.Errorf("decode response: %w", err)
	}
	if result.Code == http.StatusTooManyRequests {
		return false, true, fmt.Errorf("rate limited (body code 429)")
	}
	if result.Code != http.StatusOK {
		return false, false, fmt.Errorf("push endpoint reported code %d", result.Code)
	}
	return true, false, nil
}

// buildMessage renders the fixed HTML-ish template (grounded in
// notify.py's send_task_notification): status icon, task name,
// duration, the last N sanitized log lines, and the error message
// when present.
func buildMessage(rec *task.HistoryRecord, tailLines int) (title, body string) {
	icon, label := statusIconAndLabel(rec.Status)
	title = fmt.Sprintf("%s %s: %s", icon, label, rec.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s %s</h3>", icon, html.EscapeString(rec.Name))
	fmt.Fprintf(&b, "<p>Status: %s</p>", html.EscapeString(label))
	fmt.Fprintf(&b, "<p>Duration: %s</p>", formatDuration(rec.Duration))
	if rec.ErrorMsg != "" {
		fmt.Fprintf(&b, "<p>Error: %s</p>", html.EscapeString(rec.ErrorMsg))
	}

	if rec.LogPath != "" {
		if data, err := os.ReadFile(rec.LogPath); err == nil {
			lines := logtail.LastNLines(logtail.Sanitize(string(data)), tailLines)
			if len(lines) > 0 {
				b.WriteString("<p>Log tail:</p><p>")
				for i, l := range lines {
					if i > 0 {
						b.WriteString("<br>")
					}
					b.WriteString(html.EscapeString(l))
				}
				b.WriteString("</p>")
			}
		}
	}

	return title, b.String()
}

func statusIconAndLabel(status task.Status) (icon, label string) {
	switch status {
	case task.StatusCompleted:
		return "✅", "completed"
	case task.StatusFailed:
		return "❌", "failed"
	case task.StatusStopped:
		return "⏹️", "stopped"
	default:
		return "ℹ️", string(status)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

package display

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Renderer presents a displayed notification somewhere a user can see it.
type Renderer interface {
	Render(ctx context.Context, n Notification) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, n Notification) error

func (f RendererFunc) Render(ctx context.Context, n Notification) error { return f(ctx, n) }

// TerminalRenderer writes one line (or one YAML document) per notification.
type TerminalRenderer struct {
	w    io.Writer
	yaml bool
	mu   sync.Mutex
}

// NewTerminalRenderer creates a TerminalRenderer writing to w. With useYAML
// each notification is written as a "---" separated YAML document.
func NewTerminalRenderer(w io.Writer, useYAML bool) *TerminalRenderer {
	return &TerminalRenderer{w: w, yaml: useYAML}
}

func (r *TerminalRenderer) Render(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.yaml {
		row := map[string]any{
			"event": "notification",
			"id":    n.ID,
			"title": n.Title,
			"body":  n.Body,
		}
		if ch := n.ChannelID(); ch != "" {
			row["channel"] = ch
		}
		if len(n.Data) > 0 {
			row["data"] = n.Data
		}
		if _, err := fmt.Fprintln(r.w, "---"); err != nil {
			return err
		}
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encoding notification: %w", err)
		}
		return enc.Close()
	}

	channel := n.ChannelID()
	if channel == "" {
		channel = "-"
	}
	_, err := fmt.Fprintf(r.w, ">> [%s] %s: %s  (id=%s)%s\n", channel, n.Title, n.Body, n.ID, formatData(n.Data))
	return err
}

// formatData renders extra payload keys as " {k=v, ...}", skipping title and body.
func formatData(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "title" || k == "body" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + data[k]
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

// WebhookRenderer POSTs each notification as JSON to a URL, e.g. a Gotify
// or Apprise gateway on the local network.
type WebhookRenderer struct {
	url    string
	client *http.Client
}

// NewWebhookRenderer creates a WebhookRenderer. A nil client gets a 10s timeout.
func NewWebhookRenderer(url string, client *http.Client) *WebhookRenderer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookRenderer{url: url, client: client}
}

func (r *WebhookRenderer) Render(ctx context.Context, n Notification) error {
	payload := map[string]any{
		"id":      n.ID,
		"title":   n.Title,
		"message": n.Body,
		"channel": n.ChannelID(),
		"data":    n.Data,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/internal/config"
	"github.com/slush-dev/pushbridge/pusher"
	"github.com/spf13/cobra"
)

func TestParseKeyValues(t *testing.T) {
	data, err := parseKeyValues([]string{"title=Hello", "body=a=b", "flag"})
	if err != nil {
		t.Fatalf("parseKeyValues returned error: %v", err)
	}
	if data["title"] != "Hello" || data["body"] != "a=b" {
		t.Fatalf("unexpected data: %v", data)
	}
	if v, ok := data["flag"]; !ok || v != "" {
		t.Fatalf("bare key should map to empty string, got %q (present=%v)", v, ok)
	}

	if _, err := parseKeyValues([]string{"=oops"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestFormatData(t *testing.T) {
	got := formatData(map[string]string{"b": "2", "a": "1"})
	if got != "a=1 b=2" {
		t.Fatalf("formatData = %q, want %q", got, "a=1 b=2")
	}
}

func TestParseInitial(t *testing.T) {
	in, err := parseInitial(nil)
	if err != nil || in != nil {
		t.Fatalf("expected nil initial notification without pairs, got %v, %v", in, err)
	}

	in, err = parseInitial([]string{"title=Order shipped", "orderId=42"})
	if err != nil {
		t.Fatalf("parseInitial returned error: %v", err)
	}
	if in.Notification.Title != "Order shipped" {
		t.Fatalf("unexpected title %q", in.Notification.Title)
	}
	if in.Notification.Data["orderId"] != "42" {
		t.Fatalf("expected orderId in data, got %v", in.Notification.Data)
	}
	if in.PressAction.ID != "default" {
		t.Fatalf("expected default press action, got %q", in.PressAction.ID)
	}
}

func TestExecCommand(t *testing.T) {
	ctx := context.Background()
	center := display.NewCenter()
	id, err := center.DisplayNotification(ctx, display.Notification{Title: "Hi", Body: "there"})
	if err != nil {
		t.Fatalf("DisplayNotification: %v", err)
	}

	var events []display.EventType
	unsub := center.OnForegroundEvent(func(ev display.Event) { events = append(events, ev.Type) })
	defer unsub()

	var out bytes.Buffer
	if execCommand(ctx, []string{"list"}, &out, center) {
		t.Fatalf("list should not quit")
	}
	if !strings.Contains(out.String(), id) {
		t.Fatalf("list output missing id %s:\n%s", id, out.String())
	}

	out.Reset()
	execCommand(ctx, []string{"press"}, &out, center)
	if !strings.Contains(out.String(), "usage: press") {
		t.Fatalf("expected usage error, got %q", out.String())
	}

	out.Reset()
	execCommand(ctx, []string{"press", id, "reply"}, &out, center)
	if out.Len() != 0 {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if len(events) != 1 || events[0] != display.EventActionPress {
		t.Fatalf("expected one action press event, got %v", events)
	}

	out.Reset()
	execCommand(ctx, []string{"dismiss", id}, &out, center)
	if !strings.Contains(out.String(), "not found") {
		t.Fatalf("expected not found error for pressed notification, got %q", out.String())
	}

	execCommand(ctx, []string{"background"}, &out, center)
	if center.Foreground() {
		t.Fatalf("expected background state")
	}
	execCommand(ctx, []string{"foreground"}, &out, center)
	if !center.Foreground() {
		t.Fatalf("expected foreground state")
	}

	out.Reset()
	execCommand(ctx, []string{"frobnicate"}, &out, center)
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("expected unknown command error, got %q", out.String())
	}

	if !execCommand(ctx, []string{"quit"}, &out, center) {
		t.Fatalf("quit should report true")
	}
	if execCommand(ctx, nil, &out, center) {
		t.Fatalf("empty line should not quit")
	}
}

type fakeSender struct {
	sendErr error
	result  *pusher.Result
	sent    []string
}

func (f *fakeSender) Send(_ context.Context, token string, _ map[string]string) (string, error) {
	f.sent = append(f.sent, token)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "projects/p/messages/1", nil
}

func (f *fakeSender) SendMulticast(_ context.Context, tokens []string, _ map[string]string) (*pusher.Result, error) {
	f.sent = append(f.sent, tokens...)
	return f.result, nil
}

func TestSendMessages(t *testing.T) {
	ctx := context.Background()
	data := map[string]string{"title": "Hi"}

	var out, errOut bytes.Buffer
	s := &fakeSender{}
	if err := sendMessages(ctx, s, []string{"tok"}, data, &out, &errOut); err != nil {
		t.Fatalf("sendMessages returned error: %v", err)
	}
	if !strings.Contains(out.String(), "projects/p/messages/1") {
		t.Fatalf("expected message id in output, got %q", out.String())
	}

	out.Reset()
	s = &fakeSender{sendErr: fmt.Errorf("sending: %w", pusher.ErrInvalidToken)}
	err := sendMessages(ctx, s, []string{"stale"}, data, &out, &errOut)
	if !errors.Is(err, pusher.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if !strings.Contains(errOut.String(), "token --forget") {
		t.Fatalf("expected forget hint, got %q", errOut.String())
	}

	out.Reset()
	s = &fakeSender{result: &pusher.Result{Success: 1, InvalidTokens: []string{"b"}, Failed: 1}}
	if err := sendMessages(ctx, s, []string{"a", "b", "c"}, data, &out, &errOut); err != nil {
		t.Fatalf("sendMessages returned error: %v", err)
	}
	if len(s.sent) != 3 {
		t.Fatalf("expected multicast to 3 tokens, got %v", s.sent)
	}
	if !strings.Contains(out.String(), "1 ok, 1 invalid, 1 failed") {
		t.Fatalf("unexpected summary: %q", out.String())
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	for _, name := range []string{"session-dir", "platform", "permission", "transport", "store", "metrics-addr"} {
		cmd.Flags().String(name, "", "")
	}
	cmd.Flags().Int("android-sdk", 0, "")
	if err := cmd.Flags().Parse([]string{"--platform", "ios", "--android-sdk", "30", "--store", "memory"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	c := config.Default()
	c.Transport.Type = "relay"
	applyFlagOverrides(cmd, c)

	if c.Platform != "ios" {
		t.Fatalf("platform = %q, want ios", c.Platform)
	}
	if c.AndroidSDKVersion != 30 {
		t.Fatalf("android sdk = %d, want 30", c.AndroidSDKVersion)
	}
	if c.Store.Type != "memory" {
		t.Fatalf("store = %q, want memory", c.Store.Type)
	}
	if c.Transport.Type != "relay" {
		t.Fatalf("unset --transport must not override config, got %q", c.Transport.Type)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "token", "permission", "display", "send", "mcp"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q command to be registered", name)
		}
	}
}

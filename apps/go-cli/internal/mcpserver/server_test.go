package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/bridge"
	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/internal/config"
	"github.com/slush-dev/pushbridge/store"
)

type fakeTransport struct {
	mu       sync.Mutex
	token    string
	resets   int
	subs     map[int]func(pushbridge.RemoteMessage)
	next     int
	started  chan struct{}
	startOne sync.Once
}

func newFakeTransport(token string) *fakeTransport {
	return &fakeTransport{token: token, subs: map[int]func(pushbridge.RemoteMessage){}, started: make(chan struct{})}
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTransport) Subscribe(fn func(pushbridge.RemoteMessage)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) Listen(ctx context.Context) error {
	f.startOne.Do(func() { close(f.started) })
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTransport) Reset() error {
	f.mu.Lock()
	f.resets++
	f.token = "fresh-token"
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(msg pushbridge.RemoteMessage) {
	f.mu.Lock()
	var fns []func(pushbridge.RemoteMessage)
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// testServer builds a PushMCPServer around an in-memory bridge and connects
// an MCP client to it.
func testServer(t *testing.T, platformName string) (*mcp.ClientSession, *PushMCPServer, *fakeTransport) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	g := newServer("test", logger, "prompt")

	cfg := config.Default()
	cfg.Platform = platformName
	cfg.Store.Type = "memory"

	center := display.NewCenter(display.WithLogger(logger), display.WithRenderer(g.renderer()))
	platform, err := pushbridge.NewPlatform(pushbridge.PlatformConfig{
		Name:              platformName,
		AndroidSDKVersion: 34,
		Permissions:       g.perms,
	})
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	transport := newFakeTransport("tok-123")
	st := store.NewMemoryStore()
	b := &bridge.Bridge{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Center:    center,
		Platform:  platform,
		Transport: transport,
		Manager:   pushbridge.NewManager(transport, center, st, platform, pushbridge.WithManagerLogger(logger)),
	}
	g.attach(b)
	t.Cleanup(func() { g.Close() })

	t1, t2 := mcp.NewInMemoryTransports()
	ctx := context.Background()

	if err := g.RunWithTransport(ctx, t1); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0"}, nil)
	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })

	return cs, g, transport
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	text := result.Content[0].(*mcp.TextContent).Text
	if result.IsError {
		return map[string]any{"error": text}, true
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		t.Fatalf("unmarshal %s result %q: %v", name, text, err)
	}
	return data, false
}

func readResource(t *testing.T, cs *mcp.ClientSession, uri string, v any) {
	t.Helper()
	result, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	if err := json.Unmarshal([]byte(result.Contents[0].Text), v); err != nil {
		t.Fatalf("unmarshal %s: %v", uri, err)
	}
}

func TestToolsRegistered(t *testing.T) {
	cs, _, _ := testServer(t, "android")

	expectedTools := map[string]bool{
		"get_token":            false,
		"request_permission":   false,
		"display_notification": false,
		"press_notification":   false,
		"list_notifications":   false,
		"listen":               false,
		"stop":                 false,
	}
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("listing tools: %v", err)
		}
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestResourcesRegistered(t *testing.T) {
	cs, _, _ := testServer(t, "android")

	expected := map[string]bool{statusURI: false, notificationsURI: false, channelsURI: false}
	for res, err := range cs.Resources(context.Background(), nil) {
		if err != nil {
			t.Fatalf("listing resources: %v", err)
		}
		if _, ok := expected[res.URI]; ok {
			expected[res.URI] = true
		}
	}
	for uri, found := range expected {
		if !found {
			t.Errorf("resource %q not registered", uri)
		}
	}
}

func TestStatusResource(t *testing.T) {
	cs, _, _ := testServer(t, "ios")

	var status map[string]any
	readResource(t, cs, statusURI, &status)

	if status["platform"] != "ios" {
		t.Errorf("expected platform=ios, got %v", status["platform"])
	}
	if status["transport"] != "fake" {
		t.Errorf("expected transport=fake, got %v", status["transport"])
	}
	if status["listening"] != false {
		t.Errorf("expected listening=false, got %v", status["listening"])
	}
	if status["token_cached"] != false {
		t.Errorf("expected token_cached=false, got %v", status["token_cached"])
	}
	if _, ok := status["stats"]; !ok {
		t.Error("expected stats in status")
	}
}

func TestGetTokenTool(t *testing.T) {
	cs, _, transport := testServer(t, "android")

	data, isErr := callTool(t, cs, "get_token", nil)
	if isErr {
		t.Fatalf("get_token failed: %v", data["error"])
	}
	if data["token"] != "tok-123" {
		t.Errorf("expected token tok-123, got %v", data["token"])
	}

	var status map[string]any
	readResource(t, cs, statusURI, &status)
	if status["token_cached"] != true {
		t.Errorf("expected token_cached=true after get_token, got %v", status["token_cached"])
	}

	data, _ = callTool(t, cs, "get_token", map[string]any{"forget": true})
	if data["token"] != "fresh-token" {
		t.Errorf("expected fresh-token after forget, got %v", data["token"])
	}
	if transport.resets != 1 {
		t.Errorf("expected 1 transport reset, got %d", transport.resets)
	}
}

func TestRequestPermissionTool(t *testing.T) {
	tests := []struct {
		platform string
		answer   string
		want     bool
	}{
		{"android", "grant", true},
		{"android", "deny", false},
		{"android", "provisional", false},
		{"ios", "provisional", true},
		{"ios", "never_ask_again", false},
	}
	for _, tt := range tests {
		t.Run(tt.platform+"/"+tt.answer, func(t *testing.T) {
			cs, _, _ := testServer(t, tt.platform)
			data, isErr := callTool(t, cs, "request_permission", map[string]any{"answer": tt.answer})
			if isErr {
				t.Fatalf("request_permission failed: %v", data["error"])
			}
			if data["granted"] != tt.want {
				t.Errorf("granted: got %v, want %v", data["granted"], tt.want)
			}
		})
	}

	cs, _, _ := testServer(t, "android")
	if _, isErr := callTool(t, cs, "request_permission", map[string]any{"answer": "maybe"}); !isErr {
		t.Error("expected error for unknown answer")
	}
}

func TestDisplayPressAndList(t *testing.T) {
	cs, _, _ := testServer(t, "android")

	data, isErr := callTool(t, cs, "display_notification", map[string]any{
		"data": map[string]string{"title": "Hello", "body": "World", "orderId": "42"},
	})
	if isErr {
		t.Fatalf("display_notification failed: %v", data["error"])
	}
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatalf("expected notification id, got %v", data)
	}

	list, _ := callTool(t, cs, "list_notifications", nil)
	ns, _ := list["notifications"].([]any)
	if len(ns) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(ns))
	}
	n := ns[0].(map[string]any)
	if n["title"] != "Hello" || n["body"] != "World" {
		t.Errorf("unexpected notification %v", n)
	}

	var channels []map[string]any
	readResource(t, cs, channelsURI, &channels)
	if len(channels) != 1 || channels[0]["id"] != pushbridge.DefaultChannelID {
		t.Errorf("expected the default channel, got %v", channels)
	}

	if _, isErr := callTool(t, cs, "press_notification", map[string]any{"id": id}); isErr {
		t.Fatal("press_notification failed")
	}
	list, _ = callTool(t, cs, "list_notifications", nil)
	if ns, _ := list["notifications"].([]any); len(ns) != 0 {
		t.Errorf("pressed notification should be removed, got %d", len(ns))
	}

	if _, isErr := callTool(t, cs, "press_notification", map[string]any{"id": id}); !isErr {
		t.Error("expected error pressing a removed notification")
	}
}

func TestDisplayNotificationTool_IDWhileListening(t *testing.T) {
	cs, g, transport := testServer(t, "android")
	if data, isErr := callTool(t, cs, "listen", nil); isErr {
		t.Fatalf("listen failed: %v", data)
	}
	<-transport.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 40; i++ {
			transport.deliver(pushbridge.RemoteMessage{Data: map[string]string{"title": "Pushed"}})
		}
	}()

	var ids []string
	for i := 0; i < 10; i++ {
		data, isErr := callTool(t, cs, "display_notification", map[string]any{
			"data": map[string]string{"title": "Local"},
		})
		if isErr {
			t.Fatalf("display_notification failed: %v", data["error"])
		}
		id, _ := data["id"].(string)
		ids = append(ids, id)
	}
	<-done

	titles := make(map[string]string)
	for _, n := range g.bridge.Center.Displayed() {
		titles[n.ID] = n.Title
	}
	for _, id := range ids {
		if titles[id] != "Local" {
			t.Errorf("id %q names notification %q, want the one just displayed", id, titles[id])
		}
	}
}

func TestDisplayNotificationTool_MissingData(t *testing.T) {
	cs, _, _ := testServer(t, "android")
	if _, isErr := callTool(t, cs, "display_notification", map[string]any{}); !isErr {
		t.Error("expected error without data")
	}
}

func TestListenDeliversAndRecordsEvents(t *testing.T) {
	cs, g, transport := testServer(t, "android")

	data, isErr := callTool(t, cs, "listen", nil)
	if isErr || data["listening"] != true {
		t.Fatalf("listen failed: %v", data)
	}
	select {
	case <-transport.started:
	case <-time.After(2 * time.Second):
		t.Fatal("transport listener did not start")
	}

	again, _ := callTool(t, cs, "listen", nil)
	if again["message"] != "already listening" {
		t.Errorf("expected already listening, got %v", again)
	}

	transport.deliver(pushbridge.RemoteMessage{MessageID: "m-1", Data: map[string]string{"title": "Pushed"}})
	displayed := g.bridge.Center.Displayed()
	if len(displayed) != 1 || displayed[0].Title != "Pushed" {
		t.Fatalf("expected pushed notification to be displayed, got %v", displayed)
	}

	// Background press goes through the stored Android handler.
	if _, isErr := callTool(t, cs, "press_notification", map[string]any{"id": displayed[0].ID, "background": true}); isErr {
		t.Fatal("press_notification failed")
	}

	var res struct {
		Events []struct {
			Source string `json:"source"`
			Type   string `json:"type"`
			ID     string `json:"id"`
		} `json:"events"`
	}
	readResource(t, cs, notificationsURI, &res)
	var sawBackgroundPress bool
	for _, ev := range res.Events {
		if ev.Source == "background" && ev.Type == "press" && ev.ID == displayed[0].ID {
			sawBackgroundPress = true
		}
	}
	if !sawBackgroundPress {
		t.Errorf("expected a background press event, got %+v", res.Events)
	}

	stopped, _ := callTool(t, cs, "stop", nil)
	if stopped["listening"] != false {
		t.Errorf("expected listening=false, got %v", stopped)
	}

	transport.deliver(pushbridge.RemoteMessage{MessageID: "m-2", Data: map[string]string{"title": "Late"}})
	if n := len(g.bridge.Center.Displayed()); n != 1 {
		t.Errorf("messages after stop must not be displayed, got %d notifications", n)
	}
}

func TestStopTool_NotListening(t *testing.T) {
	cs, _, _ := testServer(t, "android")

	data, isErr := callTool(t, cs, "stop", nil)
	if isErr {
		t.Fatal("stop when not listening should not be an error")
	}
	if data["listening"] != false {
		t.Errorf("expected listening=false, got %v", data["listening"])
	}
}

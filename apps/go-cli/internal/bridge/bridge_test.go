package bridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/internal/config"
	"github.com/slush-dev/pushbridge/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SessionDir = t.TempDir()
	cfg.Store.Type = "memory"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_MemoryStoreRelay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.Type = "relay"
	cfg.Transport.Relay.HubURL = "http://localhost:5000/hub"
	cfg.Platform = "ios"

	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.MemoryStore{}, b.Store)
	assert.Equal(t, "relay", b.Transport.Name())
	assert.Equal(t, "ios", b.Platform.Name())
	assert.NotNil(t, b.Manager)
	assert.NoError(t, b.Transport.Reset())
}

func TestNew_FileStoreFCM(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Type = "file"

	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	fs, ok := b.Store.(*store.FileStore)
	require.True(t, ok)
	assert.Equal(t, cfg.SessionDir, filepath.Dir(fs.Path()))
	assert.Equal(t, "fcm", b.Transport.Name())
	assert.Equal(t, "android", b.Platform.Name())
}

func TestNew_UnknownPlatform(t *testing.T) {
	cfg := testConfig(t)
	cfg.Platform = "windows"

	_, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	assert.ErrorContains(t, err, "unknown platform")
}

func TestNew_TerminalRenderer(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	b, err := New(context.Background(), cfg, Options{Logger: discardLogger(), Out: &out})
	require.NoError(t, err)
	defer b.Close()

	id, err := b.Manager.DisplayNotification(context.Background(), pushbridge.RemoteMessage{
		Data: map[string]string{"title": "Build finished", "body": "All green"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Build finished")
	require.Len(t, b.Center.Displayed(), 1)
	assert.Equal(t, id, b.Center.Displayed()[0].ID)
}

func TestNewRenderers(t *testing.T) {
	_, err := newRenderers(config.DisplayConfig{Renderer: "webhook"}, nil)
	assert.ErrorContains(t, err, "webhook_url")

	rs, err := newRenderers(config.DisplayConfig{Renderer: "webhook", WebhookURL: "http://example.com/hook"}, nil)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.IsType(t, &display.WebhookRenderer{}, rs[0])

	rs, err = newRenderers(config.DisplayConfig{Renderer: "terminal"}, nil)
	require.NoError(t, err)
	assert.Empty(t, rs)

	rs, err = newRenderers(config.DisplayConfig{Renderer: "terminal"}, io.Discard)
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestNewPermissions(t *testing.T) {
	ctx := context.Background()

	p := newPermissions("prompt", strings.NewReader("y\n"), io.Discard)
	assert.IsType(t, &pushbridge.PromptPermissions{}, p)
	res, err := p.Request(ctx, pushbridge.PostNotifications)
	require.NoError(t, err)
	assert.Equal(t, pushbridge.PermissionGranted, res)

	p = newPermissions("prompt", nil, nil)
	res, err = p.Request(ctx, pushbridge.PostNotifications)
	require.NoError(t, err)
	assert.Equal(t, pushbridge.PermissionDenied, res)

	p = newPermissions("grant", nil, nil)
	assert.Equal(t, pushbridge.StaticPermissions{Mode: "grant"}, p)
}

func TestBindHeadless(t *testing.T) {
	cfg := testConfig(t)
	cfg.Permission = "grant"

	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	var got []display.EventType
	b.Manager.SetBackgroundEventListener(func(et display.EventType, _ display.EventDetail) {
		got = append(got, et)
	})
	b.BindHeadless()

	ctx := context.Background()
	id, err := b.Manager.DisplayNotification(ctx, pushbridge.RemoteMessage{Data: map[string]string{"title": "x"}})
	require.NoError(t, err)

	b.Center.SetForeground(false)
	require.NoError(t, b.Center.Dismiss(ctx, id))
	assert.Equal(t, []display.EventType{display.EventDismissed}, got)
}

func TestBindHeadless_IOS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Platform = "ios"
	cfg.Permission = "grant"

	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	var got []display.EventType
	b.Manager.SetBackgroundEventListener(func(et display.EventType, _ display.EventDetail) {
		got = append(got, et)
	})
	// No-op on iOS; the listener above is already bound natively.
	b.BindHeadless()

	ctx := context.Background()
	id, err := b.Manager.DisplayNotification(ctx, pushbridge.RemoteMessage{Data: map[string]string{"title": "x"}})
	require.NoError(t, err)
	b.Center.SetForeground(false)
	require.NoError(t, b.Center.Press(ctx, id, ""))
	assert.Equal(t, []display.EventType{display.EventPress}, got)
}

func TestForgetToken_FCM(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	b, err := New(ctx, cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	credPath := filepath.Join(cfg.SessionDir, "fcm_credentials.json")
	require.NoError(t, os.WriteFile(credPath, []byte(`{}`), 0o600))
	require.NoError(t, b.Store.Set(ctx, pushbridge.DefaultTokenKey, "cached"))

	require.NoError(t, b.ForgetToken(ctx))

	_, err = b.Store.Get(ctx, pushbridge.DefaultTokenKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = os.Stat(credPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServeMetrics_NoAddr(t *testing.T) {
	cfg := testConfig(t)
	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	assert.NoError(t, b.ServeMetrics(context.Background()))
}

func TestServeMetrics_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(t)
	cfg.MetricsAddr = addr
	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.ServeMetrics(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}

	_, err = http.Get("http://" + addr + "/metrics")
	assert.Error(t, err)
}

func TestServeMetrics_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.MetricsAddr = ln.Addr().String()
	b, err := New(context.Background(), cfg, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer b.Close()

	assert.ErrorContains(t, b.ServeMetrics(context.Background()), "metrics server")
}

// Package bridge assembles a pushbridge.Manager and its collaborators from
// configuration. It is the composition root shared by the CLI commands and
// the MCP server.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/fcm"
	"github.com/slush-dev/pushbridge/internal/config"
	"github.com/slush-dev/pushbridge/metrics"
	"github.com/slush-dev/pushbridge/relay"
	"github.com/slush-dev/pushbridge/store"
)

// Transport is a messaging transport with a blocking receive loop.
type Transport interface {
	pushbridge.Messaging
	// Listen delivers messages to subscribers until ctx is cancelled or the
	// connection fails.
	Listen(ctx context.Context) error
	// Reset discards the transport's own registration.
	Reset() error
	Name() string
}

// Options carries process-level wiring that does not come from config.
type Options struct {
	Logger *slog.Logger
	// Out receives terminal-rendered notifications.
	Out io.Writer
	// Permissions overrides the backend chosen by cfg.Permission.
	Permissions pushbridge.PermissionBackend
	// Prompt is used when cfg.Permission is "prompt".
	Prompt io.Reader
	// Renderers are added after the configured renderer.
	Renderers []display.Renderer
	// Initial is the notification that launched the process.
	Initial *display.InitialNotification
}

// Bridge owns the components built from one configuration.
type Bridge struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     store.Store
	Center    *display.Center
	Platform  pushbridge.Platform
	Transport Transport
	Manager   *pushbridge.Manager

	closers []func() error
}

// New builds every component. Nothing is started.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Bridge, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{Config: cfg, Logger: logger}

	st, err := b.newStore(ctx)
	if err != nil {
		return nil, err
	}
	b.Store = st

	renderers, err := newRenderers(cfg.Display, opts.Out)
	if err != nil {
		b.Close()
		return nil, err
	}
	centerOpts := []display.Option{
		display.WithLogger(logger.With("component", "display")),
		display.WithRenderer(append(renderers, opts.Renderers...)...),
	}
	if opts.Initial != nil {
		centerOpts = append(centerOpts, display.WithInitialNotification(opts.Initial))
	}
	b.Center = display.NewCenter(centerOpts...)

	perms := opts.Permissions
	if perms == nil {
		perms = newPermissions(cfg.Permission, opts.Prompt, opts.Out)
	}
	b.Platform, err = pushbridge.NewPlatform(pushbridge.PlatformConfig{
		Name:              cfg.Platform,
		AndroidSDKVersion: cfg.AndroidSDKVersion,
		Permissions:       perms,
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Transport = newTransport(ctx, cfg, logger)
	b.Manager = pushbridge.NewManager(b.Transport, b.Center, b.Store, b.Platform,
		pushbridge.WithManagerLogger(logger.With("component", "manager")))
	return b, nil
}

// Close releases listeners and closes the store.
func (b *Bridge) Close() error {
	if b.Manager != nil {
		b.Manager.RemoveListeners()
	}
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// ForgetToken clears the cached token and the transport registration so
// the next Token call obtains a new one.
func (b *Bridge) ForgetToken(ctx context.Context) error {
	if err := b.Manager.ForgetToken(ctx); err != nil {
		return err
	}
	if err := b.Transport.Reset(); err != nil {
		return fmt.Errorf("resetting %s registration: %w", b.Transport.Name(), err)
	}
	return nil
}

// BindHeadless routes the display center's background channel into the
// manager's stored Android background handler. iOS binds the channel
// directly in SetBackgroundEventListener, so this is Android only.
func (b *Bridge) BindHeadless() {
	if b.Platform.Name() != "android" {
		return
	}
	b.Center.OnBackgroundEvent(func(ev display.Event) {
		b.Manager.InvokeAndroidBackgroundEvent(ev.Type, ev.Detail)
	})
}

// ServeMetrics serves /metrics and /stats on cfg.MetricsAddr until ctx is
// cancelled. It returns immediately when no address is configured.
func (b *Bridge) ServeMetrics(ctx context.Context) error {
	if b.Config.MetricsAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              b.Config.MetricsAddr,
		Handler:           metrics.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			b.Logger.Debug("Metrics server shutdown incomplete", "error", err)
		}
	}()
	b.Logger.Info("Serving metrics", "addr", b.Config.MetricsAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	<-shutdown
	return nil
}

func (b *Bridge) newStore(ctx context.Context) (store.Store, error) {
	switch b.Config.Store.Type {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		sc := b.Config.Store
		rdb, err := store.DialRedis(ctx, sc.RedisAddr, sc.RedisPassword, sc.RedisDB)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)
		return store.NewRedisStore(rdb, sc.RedisPrefix), nil
	}
	return store.NewFileStore(b.Config.SessionDir, store.WithLogger(b.Logger.With("component", "store"))), nil
}

func newRenderers(cfg config.DisplayConfig, out io.Writer) ([]display.Renderer, error) {
	switch cfg.Renderer {
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, errors.New("webhook renderer needs display.webhook_url")
		}
		return []display.Renderer{display.NewWebhookRenderer(cfg.WebhookURL, nil)}, nil
	}
	if out == nil {
		return nil, nil
	}
	return []display.Renderer{display.NewTerminalRenderer(out, cfg.Format == "yaml")}, nil
}

func newPermissions(mode string, in io.Reader, out io.Writer) pushbridge.PermissionBackend {
	if mode == "prompt" && in != nil && out != nil {
		return pushbridge.NewPromptPermissions(in, out)
	}
	if mode == "prompt" {
		mode = pushbridge.PermissionModeDeny
	}
	return pushbridge.StaticPermissions{Mode: mode}
}

func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) Transport {
	tc := cfg.Transport
	if tc.Type == "relay" {
		client := relay.NewClient(tc.Relay.HubURL, tc.Relay.DeviceName,
			relay.WithLogger(logger.With("component", "relay")),
			relay.WithAccessToken(tc.Relay.AccessToken),
		)
		return &relayTransport{client: client, baseCtx: context.WithoutCancel(ctx), logger: logger}
	}

	opts := []fcm.Option{fcm.WithLogger(logger.With("component", "fcm"))}
	if strings.EqualFold(cfg.Platform, "android") {
		opts = append(opts, fcm.WithSDKVersion(cfg.AndroidSDKVersion))
	}
	client := fcm.NewClient(cfg.SessionDir, fcm.Config{
		SenderID:   tc.FCM.SenderID,
		AppPackage: tc.FCM.AppPackage,
		CertSHA1:   tc.FCM.CertSHA1,
		AppVersion: tc.FCM.AppVersion,
	}, opts...)
	return &fcmTransport{Client: client}
}

type fcmTransport struct {
	*fcm.Client
}

func (t *fcmTransport) Name() string { return "fcm" }

// Listen registers first so credentials are loaded even when the token
// came from the store.
func (t *fcmTransport) Listen(ctx context.Context) error {
	if _, err := t.Register(ctx); err != nil {
		return err
	}
	return t.Client.Listen(ctx)
}

// relayTransport connects lazily: the hub must be connected before it can
// hand out a token.
type relayTransport struct {
	client  *relay.Client
	baseCtx context.Context
	logger  *slog.Logger

	mu        sync.Mutex
	connected bool
}

func (t *relayTransport) Name() string { return "relay" }

func (t *relayTransport) Subscribe(fn func(pushbridge.RemoteMessage)) func() {
	return t.client.Subscribe(fn)
}

func (t *relayTransport) ensureStarted() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	if err := t.client.Start(t.baseCtx); err != nil {
		return err
	}
	t.connected = true
	return nil
}

func (t *relayTransport) Token(ctx context.Context) (string, error) {
	if err := t.ensureStarted(); err != nil {
		return "", err
	}
	return t.client.Token(ctx)
}

func (t *relayTransport) Listen(ctx context.Context) error {
	if err := t.ensureStarted(); err != nil {
		return err
	}
	unsub := t.client.Subscribe(func(msg pushbridge.RemoteMessage) {
		if err := t.client.Acknowledge(msg.MessageID); err != nil {
			t.logger.Debug("Relay acknowledge failed", "messageId", msg.MessageID, "error", err)
		}
	})
	defer unsub()

	<-ctx.Done()
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.client.Stop()
	return nil
}

// Reset is a no-op: the relay assigns tokens per Register call.
func (t *relayTransport) Reset() error { return nil }

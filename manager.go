package pushbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/metrics"
	"github.com/slush-dev/pushbridge/store"
)

const (
	// DefaultTokenKey is the store key holding the cached token.
	DefaultTokenKey = "fcmToken"

	// DefaultChannelID is the only channel remote messages are displayed on.
	DefaultChannelID = "default"

	defaultChannelName = "Default Channel"
	launcherIcon       = "ic_launcher"
	defaultPressAction = "default"
)

// RemoteMessage is a data message delivered by a messaging transport.
type RemoteMessage struct {
	MessageID string            `json:"message_id,omitempty"`
	From      string            `json:"from,omitempty"`
	Data      map[string]string `json:"data"`
}

// Title returns data["title"].
func (m RemoteMessage) Title() string { return m.Data["title"] }

// Body returns data["body"].
func (m RemoteMessage) Body() string { return m.Data["body"] }

// Messaging is a push-messaging transport.
type Messaging interface {
	// Token returns the registration token addressing this installation.
	Token(ctx context.Context) (string, error)
	// Subscribe registers fn for incoming messages. The returned function
	// releases the subscription.
	Subscribe(fn func(RemoteMessage)) (unsubscribe func())
}

// Display is the local notification center.
type Display interface {
	CreateChannel(ctx context.Context, ch display.Channel) (string, error)
	DisplayNotification(ctx context.Context, n display.Notification) (string, error)
	OnForegroundEvent(fn func(display.Event)) (unsubscribe func())
	OnBackgroundEvent(fn func(display.Event))
	GetInitialNotification(ctx context.Context) (*display.InitialNotification, error)
}

// Store persists the cached token. Get returns store.ErrNotFound for a
// missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// InitialHandler receives the notification that launched the process.
type InitialHandler func(n display.Notification, pressAction display.PressAction)

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger for Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTokenKey overrides the store key used for the cached token.
func WithTokenKey(key string) ManagerOption {
	return func(m *Manager) {
		m.tokenKey = key
	}
}

// Manager mediates between a messaging transport and the notification
// center. Create one per process in the composition root.
//
// Collaborator failures are logged and absorbed: Initialize never fails,
// RequestPermission and Token report absence instead of an error.
type Manager struct {
	messaging Messaging
	center    Display
	store     Store
	platform  Platform
	logger    *slog.Logger
	tokenKey  string

	mu                sync.Mutex
	messageUnsub      func()
	foregroundUnsub   func()
	androidBackground EventHandler
}

// NewManager creates a Manager.
func NewManager(messaging Messaging, center Display, st Store, platform Platform, opts ...ManagerOption) *Manager {
	m := &Manager{
		messaging: messaging,
		center:    center,
		store:     st,
		platform:  platform,
		logger:    slog.Default(),
		tokenKey:  DefaultTokenKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Platform returns the platform the manager was created with.
func (m *Manager) Platform() Platform { return m.platform }

// Initialize requests permission and, when granted, subscribes to incoming
// messages so each is displayed as a local notification. Calling it again
// replaces the existing subscription.
func (m *Manager) Initialize(ctx context.Context) {
	if !m.RequestPermission(ctx) {
		m.logger.Warn("Notification permission not granted", "platform", m.platform.Name())
		return
	}

	displayCtx := context.WithoutCancel(ctx)
	unsub := m.messaging.Subscribe(func(msg RemoteMessage) {
		metrics.IncMessageReceived()
		m.logger.Debug("Remote message received", "messageId", msg.MessageID, "from", msg.From)
		if _, err := m.DisplayNotification(displayCtx, msg); err != nil {
			m.logger.Error("Failed to display notification", "messageId", msg.MessageID, "error", err)
		}
	})

	m.mu.Lock()
	prev := m.messageUnsub
	m.messageUnsub = unsub
	m.mu.Unlock()
	if prev != nil {
		prev()
	}
	m.logger.Info("Notification manager initialized", "platform", m.platform.Name())
}

// RequestPermission runs the platform permission flow. Failures are logged
// and reported as not granted.
func (m *Manager) RequestPermission(ctx context.Context) bool {
	granted, err := m.platform.RequestPermission(ctx)
	if err != nil {
		m.logger.Error("Permission request failed", "platform", m.platform.Name(), "error", err)
		granted = false
	}
	metrics.ObservePermission(m.platform.Name(), granted)
	return granted
}

// Token returns the cached token, fetching and persisting one from the
// transport when none is cached. ok is false when no token could be obtained.
func (m *Manager) Token(ctx context.Context) (token string, ok bool) {
	cached, err := m.store.Get(ctx, m.tokenKey)
	switch {
	case err == nil && cached != "":
		metrics.IncTokenCache()
		return cached, true
	case err != nil && !errors.Is(err, store.ErrNotFound):
		metrics.IncTokenFailure()
		m.logger.Error("Failed to read cached token", "key", m.tokenKey, "error", err)
		return "", false
	}

	fresh, err := m.messaging.Token(ctx)
	if err != nil {
		metrics.IncTokenFailure()
		m.logger.Error("Failed to fetch messaging token", "error", err)
		return "", false
	}
	if fresh == "" {
		metrics.IncTokenFailure()
		m.logger.Warn("Messaging transport returned an empty token")
		return "", false
	}
	if err := m.store.Set(ctx, m.tokenKey, fresh); err != nil {
		metrics.IncTokenFailure()
		m.logger.Error("Failed to persist messaging token", "key", m.tokenKey, "error", err)
		return "", false
	}
	metrics.IncTokenTransport()
	m.logger.Debug("Messaging token cached", "key", m.tokenKey)
	return fresh, true
}

// ForgetToken removes the cached token so the next Token call fetches a
// fresh one.
func (m *Manager) ForgetToken(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.tokenKey); err != nil {
		return fmt.Errorf("deleting cached token: %w", err)
	}
	return nil
}

// SetForegroundEventListener replaces the foreground handler.
func (m *Manager) SetForegroundEventListener(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.foregroundUnsub != nil {
		m.foregroundUnsub()
	}
	m.foregroundUnsub = m.center.OnForegroundEvent(func(ev display.Event) {
		metrics.ObserveEvent("foreground", ev.Type.String())
		h(ev.Type, ev.Detail)
	})
}

// SetBackgroundEventListener replaces the background handler. Where it is
// registered depends on the platform.
func (m *Manager) SetBackgroundEventListener(h EventHandler) {
	m.platform.BindBackgroundHandler(m.bindNativeBackground, m.storeAndroidBackground, h)
}

func (m *Manager) bindNativeBackground(h EventHandler) {
	m.center.OnBackgroundEvent(func(ev display.Event) {
		metrics.ObserveEvent("background", ev.Type.String())
		h(ev.Type, ev.Detail)
	})
	m.logger.Debug("Background handler registered on display center")
}

func (m *Manager) storeAndroidBackground(h EventHandler) {
	m.mu.Lock()
	m.androidBackground = h
	m.mu.Unlock()
	m.logger.Debug("Background handler stored for headless dispatch")
}

// SetInitialNotificationAndroidEvent registers h and immediately resolves
// the launch notification against it. Ignored on platforms without initial
// notification routing.
func (m *Manager) SetInitialNotificationAndroidEvent(ctx context.Context, h InitialHandler) {
	if !m.platform.InitialNotifications() {
		m.logger.Debug("Initial notification handler ignored", "platform", m.platform.Name())
		return
	}
	initial, err := m.center.GetInitialNotification(ctx)
	if err != nil {
		m.logger.Error("Failed to get initial notification", "error", err)
		return
	}
	if initial == nil {
		return
	}
	metrics.ObserveEvent("initial", display.EventPress.String())
	h(initial.Notification, initial.PressAction)
}

// InvokeAndroidBackgroundEvent forwards a background event to the stored
// Android handler. It is a no-op when none is registered.
func (m *Manager) InvokeAndroidBackgroundEvent(eventType display.EventType, detail display.EventDetail) {
	m.mu.Lock()
	h := m.androidBackground
	m.mu.Unlock()
	if h == nil {
		m.logger.Debug("No background handler registered", "type", eventType)
		return
	}
	metrics.ObserveEvent("background", eventType.String())
	h(eventType, detail)
}

// DisplayNotification ensures the default channel exists, shows msg on it and
// returns the notification id. The id is also returned when only rendering
// failed, since the notification is displayed.
func (m *Manager) DisplayNotification(ctx context.Context, msg RemoteMessage) (string, error) {
	channelID, err := m.center.CreateChannel(ctx, display.Channel{
		ID:         DefaultChannelID,
		Name:       defaultChannelName,
		Importance: display.ImportanceHigh,
		Visibility: display.VisibilityPublic,
	})
	if err != nil {
		metrics.IncNotificationFailed()
		return "", fmt.Errorf("creating channel %s: %w", DefaultChannelID, err)
	}

	id, err := m.center.DisplayNotification(ctx, display.Notification{
		Title: msg.Title(),
		Body:  msg.Body(),
		Data:  msg.Data,
		Android: &display.AndroidOptions{
			ChannelID:   channelID,
			SmallIcon:   launcherIcon,
			PressAction: &display.PressAction{ID: defaultPressAction},
			Importance:  display.ImportanceHigh,
			Visibility:  display.VisibilityPublic,
		},
	})
	if err != nil {
		metrics.IncNotificationFailed()
		return id, fmt.Errorf("displaying notification: %w", err)
	}
	metrics.IncNotificationDisplayed()
	m.logger.Debug("Notification displayed", "id", id, "channel", channelID)
	return id, nil
}

// RemoveListeners releases the message and foreground subscriptions. It is
// safe to call more than once. Background and initial-notification handlers
// stay registered.
func (m *Manager) RemoveListeners() {
	m.mu.Lock()
	msgUnsub, fgUnsub := m.messageUnsub, m.foregroundUnsub
	m.messageUnsub, m.foregroundUnsub = nil, nil
	m.mu.Unlock()

	if msgUnsub != nil {
		msgUnsub()
	}
	if fgUnsub != nil {
		fgUnsub()
	}
}

// Package display is a local notification center: it owns notification
// channels, keeps the list of displayed notifications, renders them through
// pluggable renderers and delivers interaction events to foreground
// subscribers or to a single background handler.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a notification id is not displayed.
	ErrNotFound = errors.New("display: notification not found")
	// ErrUnknownChannel is returned when a notification targets a channel
	// that was never created.
	ErrUnknownChannel = errors.New("display: unknown channel")
)

// defaultPressActionID is the press action that produces EventPress rather
// than EventActionPress.
const defaultPressActionID = "default"

// Option configures Center.
type Option func(*Center)

// WithLogger sets a custom logger for Center.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Center) {
		c.logger = logger
	}
}

// WithRenderer adds renderers invoked for every displayed notification.
func WithRenderer(r ...Renderer) Option {
	return func(c *Center) {
		c.renderers = append(c.renderers, r...)
	}
}

// WithInitialNotification records the notification that launched the process.
func WithInitialNotification(n *InitialNotification) Option {
	return func(c *Center) {
		c.initial = n
	}
}

// WithMaxDisplayed bounds the number of notifications kept as displayed.
func WithMaxDisplayed(n int) Option {
	return func(c *Center) {
		if n > 0 {
			c.maxDisplayed = n
		}
	}
}

type subscription struct {
	id uint64
	fn func(Event)
}

// Center is safe for concurrent use.
type Center struct {
	logger       *slog.Logger
	renderers    []Renderer
	maxDisplayed int
	now          func() time.Time

	mu         sync.Mutex
	channels   map[string]Channel
	displayed  []Notification
	foreground bool
	subs       []subscription
	nextSubID  uint64
	background func(Event)
	initial    *InitialNotification
}

// NewCenter creates a Center in the foreground state.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		logger:       slog.Default(),
		maxDisplayed: 100,
		now:          time.Now,
		channels:     make(map[string]Channel),
		foreground:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateChannel creates or updates a channel and returns its id.
func (c *Center) CreateChannel(ctx context.Context, ch Channel) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ch.ID == "" {
		return "", fmt.Errorf("display: channel id is required")
	}
	c.mu.Lock()
	_, existed := c.channels[ch.ID]
	c.channels[ch.ID] = ch
	c.mu.Unlock()

	if !existed {
		c.logger.Debug("Channel created", "channel", ch.ID, "importance", ch.Importance, "visibility", ch.Visibility)
	}
	return ch.ID, nil
}

// Channels returns a snapshot of all channels.
func (c *Center) Channels() []Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// DisplayNotification shows n and returns its id. A notification targeting an
// Android channel requires the channel to exist.
func (c *Center) DisplayNotification(ctx context.Context, n Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = c.now()
	n.Data = copyData(n.Data)

	c.mu.Lock()
	if chID := n.ChannelID(); chID != "" {
		if _, ok := c.channels[chID]; !ok {
			c.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrUnknownChannel, chID)
		}
	}
	c.removeLocked(n.ID)
	c.displayed = append(c.displayed, n)
	if len(c.displayed) > c.maxDisplayed {
		c.displayed = c.displayed[len(c.displayed)-c.maxDisplayed:]
	}
	c.mu.Unlock()

	c.logger.Debug("Notification displayed", "id", n.ID, "channel", n.ChannelID(), "title", n.Title)

	var errs []error
	for _, r := range c.renderers {
		if err := r.Render(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	c.dispatch(Event{Type: EventDelivered, Detail: EventDetail{Notification: &n}})

	if err := errors.Join(errs...); err != nil {
		return n.ID, fmt.Errorf("rendering notification %s: %w", n.ID, err)
	}
	return n.ID, nil
}

// Displayed returns the currently displayed notifications, oldest first.
func (c *Center) Displayed() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.displayed))
	copy(out, c.displayed)
	return out
}

// Cancel removes a displayed notification without producing an event.
func (c *Center) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.removeLocked(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Press simulates a tap on notification id. An empty actionID or the
// notification's own press action produces EventPress; any other action
// produces EventActionPress. The notification is removed from the displayed list.
func (c *Center) Press(ctx context.Context, id, actionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	n, ok := c.removeLocked(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	own := defaultPressActionID
	if n.Android != nil && n.Android.PressAction != nil && n.Android.PressAction.ID != "" {
		own = n.Android.PressAction.ID
	}
	if actionID == "" {
		actionID = own
	}

	typ := EventPress
	if actionID != own {
		typ = EventActionPress
	}
	c.dispatch(Event{Type: typ, Detail: EventDetail{Notification: &n, PressAction: &PressAction{ID: actionID}}})
	return nil
}

// Dismiss removes notification id and emits EventDismissed.
func (c *Center) Dismiss(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	n, ok := c.removeLocked(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.dispatch(Event{Type: EventDismissed, Detail: EventDetail{Notification: &n}})
	return nil
}

// OnForegroundEvent subscribes fn to events raised while the app is in the
// foreground. The returned function unsubscribes and may be called repeatedly.
func (c *Center) OnForegroundEvent(fn func(Event)) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnBackgroundEvent sets the handler for events raised while the app is in
// the background, replacing any previous handler.
func (c *Center) OnBackgroundEvent(fn func(Event)) {
	c.mu.Lock()
	c.background = fn
	c.mu.Unlock()
}

// SetForeground switches the app state used to route events.
func (c *Center) SetForeground(foreground bool) {
	c.mu.Lock()
	c.foreground = foreground
	c.mu.Unlock()
	c.logger.Debug("App state changed", "foreground", foreground)
}

// Foreground reports the current app state.
func (c *Center) Foreground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground
}

// GetInitialNotification returns the launch notification once; later calls
// return nil.
func (c *Center) GetInitialNotification(ctx context.Context) (*InitialNotification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	in := c.initial
	c.initial = nil
	return in, nil
}

// dispatch delivers ev outside the lock.
func (c *Center) dispatch(ev Event) {
	c.mu.Lock()
	foreground := c.foreground
	var targets []func(Event)
	if foreground {
		for _, s := range c.subs {
			targets = append(targets, s.fn)
		}
	} else if c.background != nil {
		targets = append(targets, c.background)
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		c.logger.Debug("Event dropped, no handler", "type", ev.Type, "foreground", foreground)
		return
	}
	for _, fn := range targets {
		fn(ev)
	}
}

func (c *Center) removeLocked(id string) (Notification, bool) {
	for i, n := range c.displayed {
		if n.ID == id {
			c.displayed = append(c.displayed[:i], c.displayed[i+1:]...)
			return n, true
		}
	}
	return Notification{}, false
}

func copyData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

package pushbridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/slush-dev/pushbridge/display"
)

// EventHandler receives a notification interaction.
type EventHandler func(eventType display.EventType, detail display.EventDetail)

// BackgroundRegistrar installs a background EventHandler somewhere.
type BackgroundRegistrar func(h EventHandler)

// Platform is the capability set that differs between operating systems:
// the permission flow and where background handlers are registered.
type Platform interface {
	Name() string
	// RequestPermission asks for permission to post notifications.
	RequestPermission(ctx context.Context) (bool, error)
	// BindBackgroundHandler registers h either against the display
	// center's native background channel or in the manager itself.
	BindBackgroundHandler(native, stored BackgroundRegistrar, h EventHandler)
	// InitialNotifications reports whether launch notifications are routed
	// to the initial-notification handler.
	InitialNotifications() bool
}

// AuthorizationStatus is the result of an iOS authorization request.
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = -1
	AuthorizationDenied        AuthorizationStatus = 0
	AuthorizationAuthorized    AuthorizationStatus = 1
	AuthorizationProvisional   AuthorizationStatus = 2
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationDenied:
		return "denied"
	case AuthorizationAuthorized:
		return "authorized"
	case AuthorizationProvisional:
		return "provisional"
	}
	return "not_determined"
}

// Authorizer asks the user for notification authorization (iOS).
type Authorizer interface {
	RequestAuthorization(ctx context.Context) (AuthorizationStatus, error)
}

// PermissionResult is the result of an Android runtime permission request.
type PermissionResult string

const (
	PermissionGranted       PermissionResult = "granted"
	PermissionDenied        PermissionResult = "denied"
	PermissionNeverAskAgain PermissionResult = "never_ask_again"
)

// PostNotifications is the Android runtime permission for posting notifications.
const PostNotifications = "android.permission.POST_NOTIFICATIONS"

// postNotificationsMinSDK is the first Android SDK level (13) that gates
// notifications behind a runtime permission.
const postNotificationsMinSDK = 33

// RuntimePermissions requests Android runtime permissions.
type RuntimePermissions interface {
	Request(ctx context.Context, permission string) (PermissionResult, error)
}

// IOS requests authorization and registers background handlers on the
// display center's native background channel.
type IOS struct {
	Authorizer Authorizer
}

func (p *IOS) Name() string { return "ios" }

// RequestPermission treats authorized and provisional as granted.
func (p *IOS) RequestPermission(ctx context.Context) (bool, error) {
	status, err := p.Authorizer.RequestAuthorization(ctx)
	if err != nil {
		return false, fmt.Errorf("requesting authorization: %w", err)
	}
	return status == AuthorizationAuthorized || status == AuthorizationProvisional, nil
}

func (p *IOS) BindBackgroundHandler(native, _ BackgroundRegistrar, h EventHandler) {
	native(h)
}

func (p *IOS) InitialNotifications() bool { return false }

// Android requests POST_NOTIFICATIONS on SDK 33 and later. Background
// handlers are stored in the manager and invoked by the process-level
// headless entry point.
type Android struct {
	SDKVersion  int
	Permissions RuntimePermissions
}

func (p *Android) Name() string { return "android" }

// RequestPermission treats anything but an explicit grant as denial. Older
// SDK levels grant notifications at install time.
func (p *Android) RequestPermission(ctx context.Context) (bool, error) {
	if p.SDKVersion < postNotificationsMinSDK {
		return true, nil
	}
	result, err := p.Permissions.Request(ctx, PostNotifications)
	if err != nil {
		return false, fmt.Errorf("requesting %s: %w", PostNotifications, err)
	}
	return result == PermissionGranted, nil
}

func (p *Android) BindBackgroundHandler(_, stored BackgroundRegistrar, h EventHandler) {
	stored(h)
}

func (p *Android) InitialNotifications() bool { return true }

// PermissionBackend answers both platform permission flows.
type PermissionBackend interface {
	Authorizer
	RuntimePermissions
}

// PlatformConfig selects a Platform.
type PlatformConfig struct {
	Name              string
	AndroidSDKVersion int
	Permissions       PermissionBackend
}

// NewPlatform returns the Platform named by cfg.Name ("android" or "ios").
func NewPlatform(cfg PlatformConfig) (Platform, error) {
	if cfg.Permissions == nil {
		return nil, fmt.Errorf("platform %q: no permission backend", cfg.Name)
	}
	switch strings.ToLower(cfg.Name) {
	case "android":
		return &Android{SDKVersion: cfg.AndroidSDKVersion, Permissions: cfg.Permissions}, nil
	case "ios":
		return &IOS{Authorizer: cfg.Permissions}, nil
	}
	return nil, fmt.Errorf("unknown platform %q (want android or ios)", cfg.Name)
}

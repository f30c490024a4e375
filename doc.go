// Package pushbridge connects a push-messaging transport to a local
// notification center.
//
// A Manager requests notification permission through a Platform, fetches
// and caches the messaging token in a Store, renders incoming remote
// messages as local notifications on the "default" channel and routes
// notification interactions to three handler slots: foreground, background
// and initial (launch) notification.
//
// Transports live in the fcm and relay subpackages, the notification center
// in display and token storage in store.
//
// Usage:
//
//	platform, _ := pushbridge.NewPlatform(pushbridge.PlatformConfig{Name: "android", AndroidSDKVersion: 34, Permissions: perms})
//	mgr := pushbridge.NewManager(fcmClient, center, store.NewFileStore(dir), platform)
//	mgr.Initialize(ctx)
//	mgr.SetForegroundEventListener(func(t display.EventType, d display.EventDetail) { ... })
//	token, ok := mgr.Token(ctx)
//	defer mgr.RemoveListeners()
package pushbridge

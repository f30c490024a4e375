// Package fcm is an Android-native FCM (Firebase Cloud Messaging) transport.
//
// It registers the device with GCM checkin and register3 to obtain an FCM
// token for the app described by Config, and holds an MCS (Mobile
// Connection Server) connection that delivers data messages as
// pushbridge.RemoteMessage values.
//
// Usage:
//
//	client := fcm.NewClient(sessionDir, fcm.Config{SenderID: "1234567890", AppPackage: "com.example.app"})
//	unsubscribe := client.Subscribe(func(msg pushbridge.RemoteMessage) { ... })
//	token, err := client.Register(ctx)
//	err = client.Listen(ctx)
package fcm

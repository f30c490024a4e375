// Package metrics exports pushbridge activity as Prometheus collectors and a
// JSON snapshot.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived     int64
	notificationsShown   int64
	notificationsFailed  int64
	tokenFromCache       int64
	tokenFromTransport   int64
	tokenFailures        int64
	permissionsGranted   int64
	permissionsDenied    int64
	interactionsObserved int64
)

var (
	promMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushbridge_messages_received_total",
			Help: "Total remote messages received from the messaging transport",
		},
	)
	promNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushbridge_notifications_displayed_total",
			Help: "Total local notifications displayed",
		},
		[]string{"status"},
	)
	promTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushbridge_token_requests_total",
			Help: "Total token lookups by source",
		},
		[]string{"source"},
	)
	promPermissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushbridge_permission_requests_total",
			Help: "Total notification permission requests",
		},
		[]string{"platform", "result"},
	)
	promEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushbridge_notification_events_total",
			Help: "Total notification interaction events delivered to handlers",
		},
		[]string{"channel", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		promMessages,
		promNotifications,
		promTokens,
		promPermissions,
		promEvents,
	)
}

// IncMessageReceived counts a remote message handed to the manager.
func IncMessageReceived() {
	atomic.AddInt64(&messagesReceived, 1)
	promMessages.Inc()
}

// IncNotificationDisplayed counts a displayed notification.
func IncNotificationDisplayed() {
	atomic.AddInt64(&notificationsShown, 1)
	promNotifications.WithLabelValues("success").Inc()
}

// IncNotificationFailed counts a notification that could not be displayed.
func IncNotificationFailed() {
	atomic.AddInt64(&notificationsFailed, 1)
	promNotifications.WithLabelValues("failure").Inc()
}

// IncTokenCache counts a token served from the store.
func IncTokenCache() {
	atomic.AddInt64(&tokenFromCache, 1)
	promTokens.WithLabelValues("cache").Inc()
}

// IncTokenTransport counts a token fetched from the messaging transport.
func IncTokenTransport() {
	atomic.AddInt64(&tokenFromTransport, 1)
	promTokens.WithLabelValues("transport").Inc()
}

// IncTokenFailure counts a failed token lookup.
func IncTokenFailure() {
	atomic.AddInt64(&tokenFailures, 1)
	promTokens.WithLabelValues("error").Inc()
}

// ObservePermission records the outcome of a permission request.
func ObservePermission(platform string, granted bool) {
	result := "denied"
	if granted {
		atomic.AddInt64(&permissionsGranted, 1)
		result = "granted"
	} else {
		atomic.AddInt64(&permissionsDenied, 1)
	}
	promPermissions.WithLabelValues(platform, result).Inc()
}

// ObserveEvent counts an interaction event delivered to a handler slot
// (foreground, background or initial).
func ObserveEvent(channel, eventType string) {
	atomic.AddInt64(&interactionsObserved, 1)
	promEvents.WithLabelValues(channel, eventType).Inc()
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	MessagesReceived      int64 `json:"messages_received"`
	NotificationsShown    int64 `json:"notifications_displayed"`
	NotificationsFailed   int64 `json:"notifications_failed"`
	TokenFromCache        int64 `json:"token_from_cache"`
	TokenFromTransport    int64 `json:"token_from_transport"`
	TokenFailures         int64 `json:"token_failures"`
	PermissionsGranted    int64 `json:"permissions_granted"`
	PermissionsDenied     int64 `json:"permissions_denied"`
	InteractionsDelivered int64 `json:"interactions_delivered"`
}

// GetSnapshot returns the current counter values.
func GetSnapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesReceived:      atomic.LoadInt64(&messagesReceived),
		NotificationsShown:    atomic.LoadInt64(&notificationsShown),
		NotificationsFailed:   atomic.LoadInt64(&notificationsFailed),
		TokenFromCache:        atomic.LoadInt64(&tokenFromCache),
		TokenFromTransport:    atomic.LoadInt64(&tokenFromTransport),
		TokenFailures:         atomic.LoadInt64(&tokenFailures),
		PermissionsGranted:    atomic.LoadInt64(&permissionsGranted),
		PermissionsDenied:     atomic.LoadInt64(&permissionsDenied),
		InteractionsDelivered: atomic.LoadInt64(&interactionsObserved),
	}
}

// PromHandler exposes the Prometheus registry.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler serves GetSnapshot as JSON.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}

// Mux returns a handler serving /metrics and /stats.
func Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", PromHandler())
	mux.Handle("/stats", JSONHandler())
	return mux
}

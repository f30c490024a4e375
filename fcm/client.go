package fcm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/internal/mcspb"
)

// Config identifies the Firebase project and the Android app the client
// registers as. SenderID is the Firebase project number.
type Config struct {
	SenderID   string
	AppPackage string
	// CertSHA1 is the APK signing certificate fingerprint, lowercase hex.
	CertSHA1 string
	// AppVersion is the app version code sent as app_ver.
	AppVersion string
}

func (c Config) appVersion() string {
	if c.AppVersion == "" {
		return "1"
	}
	return c.AppVersion
}

// Credentials is the persisted registration: checkin identity, token and
// the persistent ids of messages already received.
type Credentials struct {
	Raw           json.RawMessage `json:"raw"` // GCM credentials (androidId, securityToken)
	Token         string          `json:"token"`
	PersistentIDs []string        `json:"persistent_ids"`
}

// Option configures Client.
type Option func(*Client)

// WithLogger sets a custom logger for Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for FCM registration.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// Client manages FCM registration and MCS push notification listening.
// It implements pushbridge.Messaging.
type Client struct {
	config      Config
	device      AndroidDeviceInfo
	credentials *Credentials
	sessionDir  string
	logger      *slog.Logger
	httpClient  *http.Client
	mu          sync.Mutex

	// dialMCS replaces the TLS dial in tests.
	dialMCS func(ctx context.Context) (io.ReadWriteCloser, error)

	subMu     sync.Mutex
	subs      map[uint64]func(pushbridge.RemoteMessage)
	nextSubID uint64

	onConnected    func()
	onDisconnected func()
	onError        func(error)
}

// NewClient creates a new Client persisting credentials under sessionDir.
func NewClient(sessionDir string, cfg Config, opts ...Option) *Client {
	c := &Client{
		config:     cfg,
		device:     DefaultAndroidDevice(),
		sessionDir: sessionDir,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
		subs:       make(map[uint64]func(pushbridge.RemoteMessage)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentToken returns the token without registering.
func (c *Client) CurrentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return ""
	}
	return c.credentials.Token
}

// Token implements pushbridge.Messaging.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.Register(ctx)
}

// Credentials returns a copy of the current FCM credentials (nil if not registered).
func (c *Client) Credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return nil
	}
	cpy := *c.credentials
	cpy.PersistentIDs = make([]string, len(c.credentials.PersistentIDs))
	copy(cpy.PersistentIDs, c.credentials.PersistentIDs)
	cpy.Raw = make(json.RawMessage, len(c.credentials.Raw))
	copy(cpy.Raw, c.credentials.Raw)
	return &cpy
}

// Subscribe registers fn for incoming data messages. Messages are delivered
// on the listener goroutine. The returned function unsubscribes.
func (c *Client) Subscribe(fn func(pushbridge.RemoteMessage)) func() {
	c.subMu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// OnConnected registers a callback invoked when MCS connection is established.
// Must be called before Listen().
func (c *Client) OnConnected(fn func()) { c.onConnected = fn }

// OnDisconnected registers a callback invoked when MCS connection drops.
// Must be called before Listen().
func (c *Client) OnDisconnected(fn func()) { c.onDisconnected = fn }

// OnError registers a callback invoked for listener errors.
// Must be called before Listen().
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// Reset forgets the registration and deletes the credentials file so the
// next Register obtains a new token.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = nil
	if err := os.Remove(c.credentialsPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing FCM credentials: %w", err)
	}
	c.logger.Debug("FCM credentials removed", "path", c.credentialsPath())
	return nil
}

// Register returns the token from memory or the session directory, or runs
// checkin and register3 and persists the result.
func (c *Client) Register(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.credentials != nil && c.credentials.Token != "" {
		return c.credentials.Token, nil
	}

	if err := c.loadCredentials(); err == nil && c.credentials != nil && c.credentials.Token != "" {
		c.logger.Debug("FCM credentials already exist, reusing token")
		return c.credentials.Token, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to load persisted FCM credentials; attempting fresh registration", "error", err)
	}

	if c.config.SenderID == "" || c.config.AppPackage == "" {
		return "", fmt.Errorf("FCM registration requires a sender id and app package")
	}

	c.logger.Debug("Registering with FCM", "sender_id", c.config.SenderID, "app", c.config.AppPackage)
	httpClient := c.loggingHTTPClient()

	device := c.device
	androidID, securityToken, err := gcmCheckin(ctx, httpClient, 0, 0, device)
	if err != nil {
		return "", fmt.Errorf("FCM registration failed (checkin): %w", err)
	}
	c.logger.Debug("GCM checkin complete", "androidId", androidID)

	// register3 as the app package yields the FCM token directly.
	fcmToken, err := gcmRegister(ctx, httpClient, androidID, securityToken, device, c.config)
	if err != nil {
		return "", fmt.Errorf("FCM registration failed (register): %w", err)
	}
	if fcmToken == "" {
		return "", fmt.Errorf("FCM registration returned empty token")
	}
	c.logger.Debug("register3 complete", "token_prefix", truncate(fcmToken, 20))

	rawCreds, err := json.Marshal(gcmCredentials{AndroidID: androidID, SecurityToken: securityToken})
	if err != nil {
		return "", fmt.Errorf("serializing GCM credentials: %w", err)
	}

	c.credentials = &Credentials{
		Raw:           rawCreds,
		Token:         fcmToken,
		PersistentIDs: []string{},
	}
	if err := c.saveCredentials(); err != nil {
		c.logger.Error("Failed to save FCM credentials", "error", err)
	}

	c.logger.Info("FCM registration complete", "token_prefix", truncate(fcmToken, 20))
	return fcmToken, nil
}

// Listen connects to Google's MCS and delivers incoming data messages to
// subscribers. It blocks until ctx is cancelled or the connection fails; it
// does not reconnect. Call Register() first to ensure credentials exist.
func (c *Client) Listen(ctx context.Context) error {
	c.mu.Lock()
	if c.credentials == nil {
		c.mu.Unlock()
		return fmt.Errorf("no FCM credentials: call Register() first")
	}

	var gcmCreds gcmCredentials
	if err := json.Unmarshal(c.credentials.Raw, &gcmCreds); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to parse GCM credentials: %w", err)
	}

	persistentIDs := make([]string, len(c.credentials.PersistentIDs))
	copy(persistentIDs, c.credentials.PersistentIDs)
	c.mu.Unlock()

	conn, err := c.dialMCSConn(ctx)
	if err != nil {
		return fmt.Errorf("MCS connect: %w", err)
	}

	mcs := newMCSClient(conn, gcmCreds.AndroidID, gcmCreds.SecurityToken, persistentIDs, c.logger)
	mcs.onConnected = func() {
		c.logger.Debug("MCS connected")
		if c.onConnected != nil {
			c.onConnected()
		}
	}
	mcs.onDisconnected = func(reason string) {
		c.logger.Debug("MCS disconnected", "reason", reason)
		if c.onDisconnected != nil {
			c.onDisconnected()
		}
	}
	mcs.onDataMessage = func(msg *mcspb.DataMessageStanza) {
		c.handleMCSMessage(msg.PersistentID, msg.From, msg.AppData)
	}

	if err := mcs.connect(ctx); err != nil {
		if c.onError != nil {
			c.onError(err)
		}
		return err
	}
	return nil
}

// dialMCSConn dials mtalk.google.com:5228 over TLS, or uses the test hook.
func (c *Client) dialMCSConn(ctx context.Context) (io.ReadWriteCloser, error) {
	if c.dialMCS != nil {
		return c.dialMCS(ctx)
	}
	return tls.DialWithDialer(
		&net.Dialer{Timeout: 30 * time.Second},
		"tcp",
		"mtalk.google.com:5228",
		nil,
	)
}

// handleMCSMessage turns AppData key/value pairs into a RemoteMessage and
// hands it to every subscriber.
func (c *Client) handleMCSMessage(persistentID, from string, appData []*mcspb.AppData) {
	c.logger.Debug("MCS message received", "persistentId", persistentID, "from", from)

	data := make(map[string]string, len(appData))
	for _, kv := range appData {
		data[kv.GetKey()] = kv.GetValue()
	}
	msg := pushbridge.RemoteMessage{
		MessageID: persistentID,
		From:      from,
		Data:      data,
	}

	c.subMu.Lock()
	targets := make([]func(pushbridge.RemoteMessage), 0, len(c.subs))
	for _, fn := range c.subs {
		targets = append(targets, fn)
	}
	c.subMu.Unlock()

	if len(targets) == 0 {
		c.logger.Debug("No subscribers for FCM message", "persistentId", persistentID)
	}
	for _, fn := range targets {
		fn(msg)
	}

	c.addPersistentID(persistentID)
}

// maxPersistentIDs bounds the ids kept in the credentials file and sent in
// the MCS login.
const maxPersistentIDs = 200

// addPersistentID appends a persistent ID and saves credentials. If the list
// exceeds maxPersistentIDs, older entries are pruned. The write happens under
// c.mu so a concurrent Reset cannot be undone by a stale save.
func (c *Client) addPersistentID(id string) {
	if id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return
	}
	c.credentials.PersistentIDs = append(c.credentials.PersistentIDs, id)
	if len(c.credentials.PersistentIDs) > maxPersistentIDs {
		c.credentials.PersistentIDs = c.credentials.PersistentIDs[len(c.credentials.PersistentIDs)-maxPersistentIDs:]
	}
	if err := c.saveCredentials(); err != nil {
		c.logger.Error("Failed to save persistent IDs", "error", err)
	}
}

// PersistentIDs returns the ids of received messages, oldest first.
func (c *Client) PersistentIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return nil
	}
	ids := make([]string, len(c.credentials.PersistentIDs))
	copy(ids, c.credentials.PersistentIDs)
	return ids
}

func (c *Client) credentialsPath() string {
	return filepath.Join(c.sessionDir, "fcm_credentials.json")
}

func (c *Client) loadCredentials() error {
	data, err := os.ReadFile(c.credentialsPath())
	if err != nil {
		return err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing FCM credentials: %w", err)
	}
	c.credentials = &creds
	return nil
}

// saveCredentials writes FCM credentials to disk. c.mu must be held.
func (c *Client) saveCredentials() error {
	if c.credentials == nil {
		return fmt.Errorf("no credentials to save")
	}
	if err := os.MkdirAll(filepath.Dir(c.credentialsPath()), 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := json.MarshalIndent(c.credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing FCM credentials: %w", err)
	}
	if err := os.WriteFile(c.credentialsPath(), data, 0o600); err != nil {
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	c.logger.Debug("Saved FCM credentials", "path", c.credentialsPath())
	return nil
}

// loggingHTTPClient wraps the HTTP client with request logging at debug level.
func (c *Client) loggingHTTPClient() *http.Client {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return c.httpClient
	}
	transport := c.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport: &loggingRoundTripper{inner: transport, logger: c.logger},
		Timeout:   c.httpClient.Timeout,
	}
}

// loggingRoundTripper logs registration traffic.
type loggingRoundTripper struct {
	inner  http.RoundTripper
	logger *slog.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	t.logger.Debug(">>> "+req.Method, "url", req.URL.String())
	for k, v := range req.Header {
		val := strings.Join(v, ", ")
		if len(val) > 120 {
			t.logger.Debug("  Request header", "key", k, "value", val[:60]+"..."+val[len(val)-20:])
		} else {
			t.logger.Debug("  Request header", "key", k, "value", val)
		}
	}
	if req.Body != nil && req.Body != http.NoBody {
		bodyBytes, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err == nil {
			t.logger.Debug("  Request body", "length", len(bodyBytes), "data", truncate(string(bodyBytes), 2000))
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		t.logger.Debug("<<< Error", "error", err)
		return nil, err
	}

	// The body is read for logging and replaced.
	t.logger.Debug("<<< Response", "status", resp.StatusCode, "url", req.URL.String())
	for k, v := range resp.Header {
		t.logger.Debug("  Response header", "key", k, "value", strings.Join(v, ", "))
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr == nil {
		t.logger.Debug("  Response body", "length", len(respBody), "data", truncate(string(respBody), 2000))
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
	}

	return resp, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

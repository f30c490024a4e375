package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippseith/signalr"
	"github.com/slush-dev/pushbridge"
)

// ErrNotConnected is returned by hub invocations made before Start.
var ErrNotConnected = errors.New("relay: not connected")

// Option configures Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for negotiate.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAccessToken sends token as a bearer credential on negotiate and on
// the WebSocket upgrade.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// Client receives data messages from a SignalR push relay hub.
type Client struct {
	hubURL      string
	deviceName  string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger

	mu      sync.Mutex
	client  signalr.Client
	cancel  context.CancelFunc
	onOpen  func()
	onClose func()

	subMu     sync.Mutex
	subs      map[uint64]func(pushbridge.RemoteMessage)
	nextSubID uint64
}

// NewClient creates a relay client for the hub at hubURL. deviceName is
// sent with Register so the relay can label the installation.
func NewClient(hubURL, deviceName string, opts ...Option) *Client {
	c := &Client{
		hubURL:     hubURL,
		deviceName: deviceName,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		subs:       make(map[uint64]func(pushbridge.RemoteMessage)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) OnOpen(handler func())  { c.onOpen = handler }
func (c *Client) OnClose(handler func()) { c.onClose = handler }

// Subscribe registers fn for every message pushed by the hub.
func (c *Client) Subscribe(fn func(pushbridge.RemoteMessage)) func() {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// Start negotiates with the hub and waits until the connection is up.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	client, err := signalr.NewClient(ctx,
		signalr.WithConnector(func() (signalr.Connection, error) {
			return c.connect(ctx)
		}),
		signalr.WithReceiver(&receiver{c: c}),
		signalr.Logger(&slogAdapter{logger: c.logger}, true),
		signalr.KeepAliveInterval(15*time.Second),
		signalr.TimeoutInterval(30*time.Second),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("creating SignalR client: %w", err)
	}

	client.Start()

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	if err := <-client.WaitForState(waitCtx, signalr.ClientConnected); err != nil {
		cancel()
		return fmt.Errorf("waiting for relay connection: %w", err)
	}

	c.mu.Lock()
	c.client = client
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("Relay connected", "hub", c.hubURL)
	if c.onOpen != nil {
		c.onOpen()
	}
	return nil
}

// Stop disconnects from the hub.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.client, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.logger.Debug("Relay disconnected")
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Client) hub() signalr.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// Token invokes Register on the hub and returns the token it assigns to
// this device.
func (c *Client) Token(ctx context.Context) (string, error) {
	hub := c.hub()
	if hub == nil {
		return "", ErrNotConnected
	}
	c.logger.Debug("SignalR Invoke", "method", "Register", "device", c.deviceName)

	var result signalr.InvokeResult
	select {
	case result = <-hub.Invoke("Register", c.deviceName):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if result.Error != nil {
		return "", fmt.Errorf("relay register: %w", result.Error)
	}
	return decodeToken(result.Value)
}

func decodeToken(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling register result: %w", err)
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return "", fmt.Errorf("register returned %s, want a string", truncate(string(data), 200))
	}
	return token, nil
}

// Acknowledge tells the hub that messageID was delivered. It does not
// wait for the hub to process it.
func (c *Client) Acknowledge(messageID string) error {
	hub := c.hub()
	if hub == nil {
		return ErrNotConnected
	}
	c.logger.Debug("SignalR Send", "method", "Acknowledge", "messageId", messageID)
	hub.Send("Acknowledge", messageID)
	return nil
}

type negotiation struct {
	wsURL        *url.URL
	connectionID string
	headers      http.Header
}

// negotiate runs the SignalR negotiate handshake. A response carrying url
// and accessToken redirects the WebSocket to Azure SignalR Service; otherwise
// the socket connects back to the hub with the returned connectionId.
func (c *Client) negotiate(ctx context.Context) (*negotiation, error) {
	headers := http.Header{}
	if c.accessToken != "" {
		headers.Set("Authorization", "Bearer "+c.accessToken)
	}

	negotiateURL := c.hubURL + "/negotiate"
	c.logger.Debug("Relay negotiate", "url", negotiateURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, negotiateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating negotiate request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("negotiate request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	c.logger.Debug("Relay negotiate response", "status", resp.StatusCode, "body", truncate(string(body), 2000))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("negotiate failed: %s %s", resp.Status, truncate(string(body), 500))
	}

	var negResp struct {
		ConnectionID string `json:"connectionId"`
		URL          string `json:"url"`
		AccessToken  string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &negResp); err != nil {
		return nil, fmt.Errorf("parsing negotiate response: %w", err)
	}

	var wsURL *url.URL
	if negResp.URL != "" && negResp.AccessToken != "" {
		c.logger.Debug("Relay negotiate redirect", "url", negResp.URL)
		wsURL, err = url.Parse(negResp.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redirect URL: %w", err)
		}
		headers.Set("Authorization", "Bearer "+negResp.AccessToken)
	} else {
		if negResp.ConnectionID == "" {
			return nil, errors.New("negotiate response has no connectionId")
		}
		wsURL, err = url.Parse(c.hubURL)
		if err != nil {
			return nil, fmt.Errorf("parsing hub URL: %w", err)
		}
		q := wsURL.Query()
		q.Set("id", negResp.ConnectionID)
		wsURL.RawQuery = q.Encode()
	}

	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	case "http":
		wsURL.Scheme = "ws"
	}

	connID := negResp.ConnectionID
	if connID == "" {
		connID = "azure"
	}
	return &negotiation{wsURL: wsURL, connectionID: connID, headers: headers}, nil
}

func (c *Client) connect(ctx context.Context) (signalr.Connection, error) {
	n, err := c.negotiate(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Relay opening WebSocket", "url", n.wsURL.String())
	conn, err := signalr.NewWebSocketConnection(ctx, n.wsURL, n.connectionID, n.headers)
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}
	return conn, nil
}

func (c *Client) dispatch(msg pushbridge.RemoteMessage) {
	c.subMu.Lock()
	handlers := make([]func(pushbridge.RemoteMessage), 0, len(c.subs))
	for _, fn := range c.subs {
		handlers = append(handlers, fn)
	}
	c.subMu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
}

// receiver holds the hub-callable methods. Method names match the hub
// method names.
type receiver struct {
	c *Client
}

// envelope is the wrapped message shape. A bare object of strings is
// treated as the data payload.
type envelope struct {
	MessageID string            `json:"messageId"`
	From      string            `json:"from"`
	Data      map[string]string `json:"data"`
}

func parseMessage(raw json.RawMessage) (pushbridge.RemoteMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		return pushbridge.RemoteMessage{MessageID: env.MessageID, From: env.From, Data: env.Data}, nil
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return pushbridge.RemoteMessage{}, err
	}
	return pushbridge.RemoteMessage{Data: data}, nil
}

func (r *receiver) ReceiveMessage(raw json.RawMessage) {
	r.c.logger.Debug("ReceiveMessage raw", "json", truncate(string(raw), 2000))
	msg, err := parseMessage(raw)
	if err != nil {
		r.c.logger.Error("Error parsing ReceiveMessage", "error", err)
		return
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	r.c.logger.Debug("ReceiveMessage", "messageId", msg.MessageID, "from", msg.From)
	r.c.dispatch(msg)
}

// slogAdapter adapts slog.Logger to the SignalR library's go-kit/log interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Log(keyVals ...interface{}) error {
	if len(keyVals) == 0 {
		return nil
	}
	var attrs []any
	for i := 0; i+1 < len(keyVals); i += 2 {
		key := fmt.Sprint(keyVals[i])
		if key == "level" || key == "ts" || key == "caller" {
			continue
		}
		attrs = append(attrs, key, keyVals[i+1])
	}
	a.logger.Debug("signalr", attrs...)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/bridge"
	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/internal/config"
)

const (
	statusURI        = "pushbridge://status"
	notificationsURI = "pushbridge://notifications"
	channelsURI      = "pushbridge://channels"

	maxEvents = 100
)

// PushMCPServer exposes a notification manager as MCP tools and resources.
type PushMCPServer struct {
	server *mcp.Server
	logger *slog.Logger
	perms  *toolPermissions

	bridge *bridge.Bridge

	listenMu     sync.Mutex
	listening    bool
	listenCancel context.CancelFunc
	listenDone   chan struct{}

	eventsMu sync.Mutex
	events   []eventRecord
}

// eventRecord is a notification interaction kept for the notifications
// resource.
type eventRecord struct {
	Source string            `json:"source"`
	Type   display.EventType `json:"type"`
	ID     string            `json:"id,omitempty"`
	Action string            `json:"action,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// New builds the manager from cfg and the MCP server around it. Terminal
// notifications are rendered to out since stdout carries the protocol.
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger, out io.Writer) (*PushMCPServer, error) {
	if err := cfg.ValidateTransport(); err != nil {
		return nil, err
	}
	g := newServer(version, logger, cfg.Permission)
	b, err := bridge.New(ctx, cfg, bridge.Options{
		Logger:      logger,
		Out:         out,
		Permissions: g.perms,
		Renderers:   []display.Renderer{g.renderer()},
	})
	if err != nil {
		return nil, err
	}
	g.attach(b)
	return g, nil
}

func newServer(version string, logger *slog.Logger, permissionMode string) *PushMCPServer {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "pushbridge",
		Version: version,
	}, &mcp.ServerOptions{
		SubscribeHandler:   func(context.Context, *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(context.Context, *mcp.UnsubscribeRequest) error { return nil },
	})
	return &PushMCPServer{
		server: s,
		logger: logger,
		perms:  newToolPermissions(permissionMode),
	}
}

func (g *PushMCPServer) attach(b *bridge.Bridge) {
	g.bridge = b
	g.registerResources()
	g.registerTools()
}

// Run starts the MCP server on stdio and blocks until done.
func (g *PushMCPServer) Run(ctx context.Context) error {
	return g.server.Run(ctx, &mcp.StdioTransport{})
}

// RunWithTransport starts the MCP server on a custom transport (for testing).
func (g *PushMCPServer) RunWithTransport(ctx context.Context, t mcp.Transport) error {
	_, err := g.server.Connect(ctx, t, nil)
	return err
}

// Close stops listening and releases the bridge.
func (g *PushMCPServer) Close() error {
	g.stopListening()
	return g.bridge.Close()
}

// renderer announces every displayed notification as a resource update.
func (g *PushMCPServer) renderer() display.Renderer {
	return display.RendererFunc(func(ctx context.Context, n display.Notification) error {
		meta := mcp.Meta{"type": "displayed", "id": n.ID}
		if data, err := json.Marshal(n); err == nil {
			meta["notification"] = json.RawMessage(data)
		}
		g.notifyUpdated(ctx, notificationsURI, meta)
		return nil
	})
}

func (g *PushMCPServer) recordEvent(ctx context.Context, source string, t display.EventType, d display.EventDetail) {
	rec := eventRecord{Source: source, Type: t}
	if d.Notification != nil {
		rec.ID = d.Notification.ID
		rec.Data = d.Notification.Data
	}
	if d.PressAction != nil {
		rec.Action = d.PressAction.ID
	}

	g.eventsMu.Lock()
	g.events = append(g.events, rec)
	if len(g.events) > maxEvents {
		g.events = g.events[len(g.events)-maxEvents:]
	}
	g.eventsMu.Unlock()

	meta := mcp.Meta{"type": t.String(), "source": source}
	if data, err := json.Marshal(rec); err == nil {
		meta["event"] = json.RawMessage(data)
	}
	g.notifyUpdated(ctx, notificationsURI, meta)
}

func (g *PushMCPServer) recentEvents() []eventRecord {
	g.eventsMu.Lock()
	defer g.eventsMu.Unlock()
	out := make([]eventRecord, len(g.events))
	copy(out, g.events)
	return out
}

func (g *PushMCPServer) notifyUpdated(ctx context.Context, uri string, meta mcp.Meta) {
	g.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri, Meta: meta})
}

// toolPermissions answers permission requests with the mode last passed to
// the request_permission tool. stdin carries the protocol, so there is no
// one to prompt.
type toolPermissions struct {
	mu   sync.Mutex
	mode string
}

func newToolPermissions(mode string) *toolPermissions {
	if mode == "" || mode == "prompt" {
		mode = pushbridge.PermissionModeGrant
	}
	return &toolPermissions{mode: mode}
}

func (p *toolPermissions) set(mode string) {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
}

func (p *toolPermissions) current() pushbridge.StaticPermissions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pushbridge.StaticPermissions{Mode: p.mode}
}

func (p *toolPermissions) RequestAuthorization(ctx context.Context) (pushbridge.AuthorizationStatus, error) {
	return p.current().RequestAuthorization(ctx)
}

func (p *toolPermissions) Request(ctx context.Context, permission string) (pushbridge.PermissionResult, error) {
	return p.current().Request(ctx, permission)
}

// jsonResult marshals v to JSON and returns it as a text CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult returns a CallToolResult with IsError=true.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

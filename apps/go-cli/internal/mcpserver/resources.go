package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/display"
	"github.com/slush-dev/pushbridge/metrics"
	"github.com/slush-dev/pushbridge/store"
)

func (g *PushMCPServer) registerResources() {
	g.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "Bridge Status",
		Description: "Platform, transport, listening state and counters",
		MIMEType:    "application/json",
	}, g.handleStatusResource)

	g.server.AddResource(&mcp.Resource{
		URI:         notificationsURI,
		Name:        "Notifications",
		Description: "Displayed notifications and recent interaction events",
		MIMEType:    "application/json",
	}, g.handleNotificationsResource)

	g.server.AddResource(&mcp.Resource{
		URI:         channelsURI,
		Name:        "Channels",
		Description: "Notification channels",
		MIMEType:    "application/json",
	}, g.handleChannelsResource)
}

func (g *PushMCPServer) handleStatusResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	g.listenMu.Lock()
	listening := g.listening
	g.listenMu.Unlock()

	_, err := g.bridge.Store.Get(ctx, pushbridge.DefaultTokenKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reading token store: %w", err)
	}

	status := map[string]any{
		"platform":     g.bridge.Platform.Name(),
		"transport":    g.bridge.Transport.Name(),
		"listening":    listening,
		"foreground":   g.bridge.Center.Foreground(),
		"token_cached": err == nil,
		"stats":        metrics.GetSnapshot(),
	}
	return jsonResource(req.Params.URI, status)
}

func (g *PushMCPServer) handleNotificationsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	displayed := g.bridge.Center.Displayed()
	if displayed == nil {
		displayed = []display.Notification{}
	}
	return jsonResource(req.Params.URI, map[string]any{
		"displayed": displayed,
		"events":    g.recentEvents(),
	})
}

func (g *PushMCPServer) handleChannelsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	channels := g.bridge.Center.Channels()
	if channels == nil {
		channels = []display.Channel{}
	}
	return jsonResource(req.Params.URI, channels)
}

// jsonResource marshals v to JSON and wraps it in a ReadResourceResult.
func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

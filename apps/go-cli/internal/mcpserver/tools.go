package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/display"
)

func (g *PushMCPServer) registerTools() {
	g.server.AddTool(getTokenTool(), g.handleGetToken)
	g.server.AddTool(requestPermissionTool(), g.handleRequestPermission)

	g.server.AddTool(displayNotificationTool(), g.handleDisplayNotification)
	g.server.AddTool(pressNotificationTool(), g.handlePressNotification)
	g.server.AddTool(listNotificationsTool(), g.handleListNotifications)

	g.server.AddTool(listenTool(), g.handleListen)
	g.server.AddTool(stopTool(), g.handleStop)
}

func parseArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func getTokenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_token",
		Description: "Return the messaging token for this installation, registering with the transport if none is cached.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"forget": {"type": "boolean", "description": "Discard the cached token and registration first (default: false)"}
			}
		}`),
	}
}

func (g *PushMCPServer) handleGetToken(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Forget bool `json:"forget"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Forget {
		if err := g.bridge.ForgetToken(ctx); err != nil {
			return errorResult(fmt.Sprintf("forgetting token: %v", err)), nil
		}
	}

	token, ok := g.bridge.Manager.Token(ctx)
	if !ok {
		return errorResult("no token available; check the server log"), nil
	}
	g.notifyUpdated(ctx, statusURI, nil)
	return jsonResult(map[string]any{
		"token":     token,
		"transport": g.bridge.Transport.Name(),
	})
}

func requestPermissionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "request_permission",
		Description: "Run the platform notification permission flow. The answer stands in for the user's response to the system dialog.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"answer": {
					"type": "string",
					"enum": ["grant", "deny", "provisional", "never_ask_again"],
					"description": "How the user answers the permission dialog (default: keep the previous answer)"
				}
			}
		}`),
	}
}

func (g *PushMCPServer) handleRequestPermission(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Answer string `json:"answer"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	switch args.Answer {
	case "":
	case pushbridge.PermissionModeGrant, pushbridge.PermissionModeDeny,
		pushbridge.PermissionModeProvisional, pushbridge.PermissionModeNeverAskAgain:
		g.perms.set(args.Answer)
	default:
		return errorResult(fmt.Sprintf("unknown answer %q", args.Answer)), nil
	}

	granted := g.bridge.Manager.RequestPermission(ctx)
	return jsonResult(map[string]any{
		"platform": g.bridge.Platform.Name(),
		"granted":  granted,
	})
}

func displayNotificationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "display_notification",
		Description: "Show a remote message as a local notification on the default channel, exactly as if it had been pushed.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"data": {
					"type": "object",
					"additionalProperties": {"type": "string"},
					"description": "Message data; title and body are shown"
				},
				"from": {"type": "string", "description": "Sender id (default: local)"}
			},
			"required": ["data"]
		}`),
	}
}

func (g *PushMCPServer) handleDisplayNotification(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Data map[string]string `json:"data"`
		From string            `json:"from"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.Data == nil {
		return errorResult("data is required"), nil
	}
	if args.From == "" {
		args.From = "local"
	}

	msg := pushbridge.RemoteMessage{From: args.From, Data: args.Data}
	id, err := g.bridge.Manager.DisplayNotification(ctx, msg)
	if err != nil {
		return errorResult(fmt.Sprintf("displaying notification: %v", err)), nil
	}
	return jsonResult(map[string]any{"displayed": true, "id": id})
}

func pressNotificationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "press_notification",
		Description: "Interact with a displayed notification: tap it, tap one of its actions, or dismiss it. Events go to the foreground or background handler depending on app state.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "string", "description": "Notification id from list_notifications"},
				"action": {"type": "string", "description": "Action id (default: the notification's own press action)"},
				"dismiss": {"type": "boolean", "description": "Dismiss instead of pressing (default: false)"},
				"background": {"type": "boolean", "description": "Set the app state before the interaction: true for background, false for foreground"}
			},
			"required": ["id"]
		}`),
	}
}

func (g *PushMCPServer) handlePressNotification(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ID         string `json:"id"`
		Action     string `json:"action"`
		Dismiss    bool   `json:"dismiss"`
		Background *bool  `json:"background"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(err.Error()), nil
	}
	if args.ID == "" {
		return errorResult("id is required"), nil
	}

	center := g.bridge.Center
	if args.Background != nil {
		center.SetForeground(!*args.Background)
	}

	var err error
	if args.Dismiss {
		err = center.Dismiss(ctx, args.ID)
	} else {
		err = center.Press(ctx, args.ID, args.Action)
	}
	if errors.Is(err, display.ErrNotFound) {
		return errorResult(fmt.Sprintf("notification %s is not displayed", args.ID)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"id":         args.ID,
		"dismissed":  args.Dismiss,
		"foreground": center.Foreground(),
	})
}

func listNotificationsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_notifications",
		Description: "List the notifications currently displayed, oldest first.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *PushMCPServer) handleListNotifications(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	displayed := g.bridge.Center.Displayed()
	if displayed == nil {
		displayed = []display.Notification{}
	}
	return jsonResult(map[string]any{"notifications": displayed})
}

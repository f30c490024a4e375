package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/slush-dev/pushbridge/display"
)

func listenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "listen",
		Description: "Initialize the notification manager and start receiving push messages. Returns immediately; notifications and interactions arrive as updates of pushbridge://notifications.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *PushMCPServer) handleListen(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g.listenMu.Lock()
	if g.listening {
		g.listenMu.Unlock()
		return jsonResult(map[string]any{"listening": true, "message": "already listening"})
	}
	g.listening = true
	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.listenCancel = cancel
	g.listenDone = done
	g.listenMu.Unlock()

	b := g.bridge
	b.Manager.Initialize(ctx)
	b.Manager.SetForegroundEventListener(func(t display.EventType, d display.EventDetail) {
		g.recordEvent(context.Background(), "foreground", t, d)
	})
	b.Manager.SetBackgroundEventListener(func(t display.EventType, d display.EventDetail) {
		g.recordEvent(context.Background(), "background", t, d)
	})
	b.Manager.SetInitialNotificationAndroidEvent(ctx, func(n display.Notification, pa display.PressAction) {
		g.recordEvent(context.Background(), "initial", display.EventPress, display.EventDetail{Notification: &n, PressAction: &pa})
	})
	b.BindHeadless()

	go g.runListenLoop(listenCtx, done)

	g.notifyUpdated(ctx, statusURI, nil)
	return jsonResult(map[string]any{"listening": true, "transport": b.Transport.Name()})
}

func stopTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "stop",
		Description: "Stop receiving push messages and release the notification listeners.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (g *PushMCPServer) handleStop(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !g.stopListening() {
		return jsonResult(map[string]any{"listening": false, "message": "not listening"})
	}
	g.notifyUpdated(ctx, statusURI, nil)
	return jsonResult(map[string]any{"listening": false})
}

// stopListening cancels the listen loop, waits for it and releases the
// manager's listeners. It reports whether a loop was running.
func (g *PushMCPServer) stopListening() bool {
	g.listenMu.Lock()
	if !g.listening {
		g.listenMu.Unlock()
		return false
	}
	cancel, done := g.listenCancel, g.listenDone
	g.listenCancel, g.listenDone = nil, nil
	g.listenMu.Unlock()

	cancel()
	<-done
	g.bridge.Manager.RemoveListeners()
	return true
}

func (g *PushMCPServer) runListenLoop(ctx context.Context, done chan struct{}) {
	defer func() {
		g.listenMu.Lock()
		g.listening = false
		g.listenMu.Unlock()
		close(done)
		g.notifyUpdated(context.Background(), statusURI, nil)
	}()

	t := g.bridge.Transport
	g.logger.Debug("listening for push messages", "transport", t.Name())
	if err := t.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Error("transport listener stopped", "transport", t.Name(), "error", err)
	}
}

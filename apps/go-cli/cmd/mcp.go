package cmd

import (
	"context"
	"os"

	"github.com/slush-dev/pushbridge/apps/go-cli/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP (Model Context Protocol) server on stdio",
	Long: `Start an MCP server that exposes the notification manager as tools and
resources for LLM integration.

The server communicates via JSON-RPC over stdin/stdout. Notifications are
rendered on stderr and announced as updates of pushbridge://notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cfg.LogLevel)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, err := mcpserver.New(ctx, cfg, rootCmd.Version, logger, os.Stderr)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

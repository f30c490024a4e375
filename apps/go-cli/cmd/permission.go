package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slush-dev/pushbridge/apps/go-cli/internal/bridge"
	"github.com/spf13/cobra"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Run the platform notification permission flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := bridge.New(ctx, cfg, bridge.Options{
			Logger: slog.Default(),
			Out:    os.Stderr,
			Prompt: bufio.NewReader(os.Stdin),
		})
		if err != nil {
			return err
		}
		defer b.Close()

		granted := b.Manager.RequestPermission(ctx)
		if useYAML {
			yamlOut(map[string]any{"platform": b.Platform.Name(), "granted": granted})
			return nil
		}
		if granted {
			fmt.Printf("Notifications allowed (%s).\n", b.Platform.Name())
		} else {
			fmt.Printf("Notifications not allowed (%s).\n", b.Platform.Name())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(permissionCmd)
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/bridge"
	"github.com/spf13/cobra"
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Show a remote message locally as if it had been pushed",
	Example: `  pushbridge display --data title=Hello --data body=World
  pushbridge display --data title=Order --data orderId=42 --yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("data")
		data, err := parseKeyValues(pairs)
		if err != nil {
			return err
		}

		ctx := context.Background()
		b, err := bridge.New(ctx, cfg, bridge.Options{Logger: slog.Default(), Out: os.Stdout})
		if err != nil {
			return err
		}
		defer b.Close()

		id, err := b.Manager.DisplayNotification(ctx, pushbridge.RemoteMessage{From: "local", Data: data})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	displayCmd.Flags().StringArray("data", nil, "Message data as key=value (repeatable)")
	rootCmd.AddCommand(displayCmd)
}

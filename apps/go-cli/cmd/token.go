package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/slush-dev/pushbridge/apps/go-cli/internal/bridge"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the messaging token, registering if none is cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		forget, _ := cmd.Flags().GetBool("forget")
		if err := requireTransport(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		b, err := bridge.New(ctx, cfg, bridge.Options{Logger: slog.Default()})
		if err != nil {
			return err
		}
		defer b.Close()

		if forget {
			if err := b.ForgetToken(ctx); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Cached token removed.")
		}

		token, ok := b.Manager.Token(ctx)
		if !ok {
			return errors.New("no token available (run with -v for details)")
		}
		if useYAML {
			yamlOut(map[string]string{"token": token, "transport": b.Transport.Name()})
		} else {
			fmt.Println(token)
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("forget", false, "Discard the cached token and registration first")
	rootCmd.AddCommand(tokenCmd)
}

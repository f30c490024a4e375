package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/slush-dev/pushbridge/pusher"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Push a data message to one or more tokens through the Firebase Admin SDK",
	Long: `Push a data-only message with the Firebase Admin SDK. Requires a service
account file (--credentials, pusher.credentials_file or
PUSHBRIDGE_PUSHER_CREDENTIALS_FILE).`,
	Example: `  pushbridge send --to <token> --data title=Hello --data body=World`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, _ := cmd.Flags().GetStringSlice("to")
		pairs, _ := cmd.Flags().GetStringArray("data")
		creds, _ := cmd.Flags().GetString("credentials")
		if creds == "" {
			creds = cfg.Pusher.CredentialsFile
		}
		if creds == "" {
			return errors.New("no Firebase service account file configured")
		}
		if len(tokens) == 0 {
			return errors.New("at least one --to token is required")
		}
		data, err := parseKeyValues(pairs)
		if err != nil {
			return err
		}

		ctx := context.Background()
		p, err := pusher.New(ctx, creds, slog.Default())
		if err != nil {
			return err
		}
		return sendMessages(ctx, p, tokens, data, os.Stdout, os.Stderr)
	},
}

type messageSender interface {
	Send(ctx context.Context, token string, data map[string]string) (string, error)
	SendMulticast(ctx context.Context, tokens []string, data map[string]string) (*pusher.Result, error)
}

func sendMessages(ctx context.Context, p messageSender, tokens []string, data map[string]string, out, errOut io.Writer) error {
	if len(tokens) == 1 {
		id, err := p.Send(ctx, tokens[0], data)
		if err != nil {
			if errors.Is(err, pusher.ErrInvalidToken) {
				fmt.Fprintln(errOut, "The device must fetch a new token (pushbridge token --forget).")
			}
			return err
		}
		if useYAML {
			yamlTo(out, map[string]string{"message_id": id})
		} else {
			fmt.Fprintf(out, "Sent: %s\n", id)
		}
		return nil
	}

	res, err := p.SendMulticast(ctx, tokens, data)
	if err != nil {
		return err
	}
	if useYAML {
		yamlTo(out, res)
		return nil
	}
	fmt.Fprintf(out, "Sent: %d ok, %d invalid, %d failed\n", res.Success, len(res.InvalidTokens), res.Failed)
	for _, t := range res.InvalidTokens {
		fmt.Fprintf(out, "  invalid: %s\n", truncateStr(t, 40))
	}
	return nil
}

func init() {
	sendCmd.Flags().StringSlice("to", nil, "Device token (repeatable)")
	sendCmd.Flags().StringArray("data", nil, "Message data as key=value (repeatable)")
	sendCmd.Flags().String("credentials", "", "Firebase service account JSON file")
	rootCmd.AddCommand(sendCmd)
}

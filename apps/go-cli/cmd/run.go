package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/bridge"
	"github.com/slush-dev/pushbridge/display"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Receive push messages and show them as notifications (Ctrl+C to stop)",
	Long: `Request notification permission, fetch the messaging token and listen
for push messages. Each message is shown on the default channel.

Commands read from stdin drive the notification center:
  press <id> [action]   tap a notification (or one of its actions)
  dismiss <id>          swipe a notification away
  background            move the app to the background
  foreground            bring the app to the foreground
  list                  show displayed notifications
  quit                  stop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTransport(); err != nil {
			return err
		}
		launchedBy, _ := cmd.Flags().GetStringSlice("launched-by")
		initial, err := parseInitial(launchedBy)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stdin := bufio.NewReader(os.Stdin)
		b, err := bridge.New(ctx, cfg, bridge.Options{
			Logger:  slog.Default(),
			Out:     os.Stdout,
			Prompt:  stdin,
			Initial: initial,
		})
		if err != nil {
			return err
		}
		defer b.Close()

		return runBridge(ctx, stop, b, stdin, os.Stdout)
	},
}

func init() {
	runCmd.Flags().StringSlice("launched-by", nil, "Simulate a launch from a notification with key=value data (title and body are used for display)")
	rootCmd.AddCommand(runCmd)
}

// runBridge is the application lifecycle: initialize, register handlers,
// print the token, listen until ctx is done, then release listeners.
func runBridge(ctx context.Context, cancel context.CancelFunc, b *bridge.Bridge, in *bufio.Reader, out io.Writer) error {
	mgr := b.Manager
	logger := b.Logger

	mgr.Initialize(ctx)
	registerHandlers(ctx, mgr, logger)
	b.BindHeadless()

	if token, ok := mgr.Token(ctx); ok {
		if useYAML {
			yamlTo(out, map[string]string{"token": token, "transport": b.Transport.Name()})
		} else {
			fmt.Fprintf(out, "Token (%s): %s\n", b.Transport.Name(), token)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Warning: no messaging token available. Push messages will not arrive.")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := b.ServeMetrics(ctx); err != nil {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := b.Transport.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Transport listener stopped", "transport", b.Transport.Name(), "error", err)
		}
	}()
	go func() {
		commandLoop(ctx, in, out, b.Center)
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "Listening for push messages (Ctrl+C to stop) ...")
	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "\nShutting down ...")
	mgr.RemoveListeners()
	wg.Wait()
	return nil
}

// registerHandlers fills the three listener slots with logging callbacks.
func registerHandlers(ctx context.Context, mgr *pushbridge.Manager, logger *slog.Logger) {
	mgr.SetForegroundEventListener(func(t display.EventType, d display.EventDetail) {
		logEvent(logger, "foreground", t, d)
	})
	mgr.SetBackgroundEventListener(func(t display.EventType, d display.EventDetail) {
		logEvent(logger, "background", t, d)
	})
	mgr.SetInitialNotificationAndroidEvent(ctx, func(n display.Notification, pa display.PressAction) {
		logger.Info("App opened from notification", "id", n.ID, "action", pa.ID, "data", formatData(n.Data))
	})
}

func logEvent(logger *slog.Logger, source string, t display.EventType, d display.EventDetail) {
	attrs := []any{"source", source, "type", t.String()}
	if d.Notification != nil {
		attrs = append(attrs, "id", d.Notification.ID)
	}
	switch t {
	case display.EventPress, display.EventActionPress:
		if d.PressAction != nil {
			attrs = append(attrs, "action", d.PressAction.ID)
		}
		if d.Notification != nil {
			attrs = append(attrs, "data", formatData(d.Notification.Data))
		}
		logger.Info("Notification pressed", attrs...)
	default:
		logger.Debug("Notification event", attrs...)
	}
}

// commandLoop reads center commands from in until EOF, "quit" or ctx is done.
func commandLoop(ctx context.Context, in *bufio.Reader, out io.Writer, center *display.Center) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := execCommand(ctx, strings.Fields(line), out, center); quit {
				return
			}
		}
	}
}

// execCommand runs one command line. It reports true for quit.
func execCommand(ctx context.Context, fields []string, out io.Writer, center *display.Center) bool {
	if len(fields) == 0 {
		return false
	}
	var err error
	switch fields[0] {
	case "press":
		if len(fields) < 2 {
			err = errors.New("usage: press <id> [action]")
			break
		}
		action := ""
		if len(fields) > 2 {
			action = fields[2]
		}
		err = center.Press(ctx, fields[1], action)
	case "dismiss":
		if len(fields) < 2 {
			err = errors.New("usage: dismiss <id>")
			break
		}
		err = center.Dismiss(ctx, fields[1])
	case "background":
		center.SetForeground(false)
		fmt.Fprintln(out, "App is in the background.")
	case "foreground":
		center.SetForeground(true)
		fmt.Fprintln(out, "App is in the foreground.")
	case "list":
		printNotifications(out, center.Displayed())
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(out, "Commands: press <id> [action], dismiss <id>, background, foreground, list, quit")
	default:
		err = fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return false
}

func printNotifications(out io.Writer, ns []display.Notification) {
	if useYAML {
		yamlTo(out, ns)
		return
	}
	if len(ns) == 0 {
		fmt.Fprintln(out, "No notifications displayed.")
		return
	}
	printTable(out, "%-36s  %-10s  %-24s  %s", 100, "ID", "CHANNEL", "TITLE", "BODY")
	for _, n := range ns {
		fmt.Fprintf(out, "%-36s  %-10s  %-24s  %s\n",
			n.ID, n.ChannelID(), truncateStr(n.Title, 24), truncateStr(n.Body, 60))
	}
}

func parseInitial(pairs []string) (*display.InitialNotification, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	data, err := parseKeyValues(pairs)
	if err != nil {
		return nil, err
	}
	return &display.InitialNotification{
		Notification: display.Notification{
			ID:    "launch",
			Title: data["title"],
			Body:  data["body"],
			Data:  data,
		},
		PressAction: display.PressAction{ID: "default"},
	}, nil
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/slush-dev/pushbridge/internal/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFiles   []string
	verbose    bool
	useYAML    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pushbridge",
	Short:         "Push notification bridge: FCM or relay messages shown as local notifications",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.LoadOptions{File: configFile, EnvFiles: envFiles})
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		if verbose {
			cfg.LogLevel = "debug"
		}
		slog.SetDefault(newLogger(cfg.LogLevel))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files to load (missing files are ignored)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&useYAML, "yaml", false, "Print output in YAML format")

	pf.String("session-dir", "", "Directory for the token store and FCM credentials (default ~/.pushbridge)")
	pf.String("platform", "", "Platform capability set: android or ios")
	pf.Int("android-sdk", 0, "Android SDK level (POST_NOTIFICATIONS is requested from 33)")
	pf.String("permission", "", "Permission answer: prompt, grant, deny, provisional or never_ask_again")
	pf.String("transport", "", "Messaging transport: fcm or relay")
	pf.String("store", "", "Token store: file, memory or redis")
	pf.String("metrics-addr", "", "Serve /metrics and /stats on this address")
}

// applyFlagOverrides copies explicitly set flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("session-dir", &c.SessionDir)
	str("platform", &c.Platform)
	str("permission", &c.Permission)
	str("transport", &c.Transport.Type)
	str("store", &c.Store.Type)
	str("metrics-addr", &c.MetricsAddr)
	if flags.Changed("android-sdk") {
		c.AndroidSDKVersion, _ = flags.GetInt("android-sdk")
	}
	if useYAML {
		c.Display.Format = "yaml"
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// requireTransport exits with a hint when the selected transport is not
// configured.
func requireTransport() error {
	if err := cfg.ValidateTransport(); err != nil {
		return fmt.Errorf("%w (set it in --config or PUSHBRIDGE_* variables)", err)
	}
	return nil
}

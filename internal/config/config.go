// Package config loads pushbridge settings from defaults, an optional YAML
// file, a .env file and PUSHBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PUSHBRIDGE_"

type Config struct {
	Platform          string `json:"platform" yaml:"platform" validate:"oneof=android ios"`
	AndroidSDKVersion int    `json:"android_sdk_version" yaml:"android_sdk_version" validate:"gte=1"`
	// Permission is a fixed answer (grant, deny, provisional,
	// never_ask_again) or "prompt" to ask on the terminal.
	Permission string `json:"permission" yaml:"permission" validate:"oneof=prompt grant deny provisional never_ask_again"`
	SessionDir string `json:"session_dir" yaml:"session_dir" validate:"required"`
	LogLevel   string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`

	// MetricsAddr enables the /metrics and /stats listener when set.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	Store     StoreConfig     `json:"store" yaml:"store"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Display   DisplayConfig   `json:"display" yaml:"display"`
	Pusher    PusherConfig    `json:"pusher" yaml:"pusher"`
}

type StoreConfig struct {
	Type string `json:"type" yaml:"type" validate:"oneof=file memory redis"`

	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" validate:"required_if=Type redis"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" validate:"gte=0"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix"`
}

type TransportConfig struct {
	Type string `json:"type" yaml:"type" validate:"oneof=fcm relay"`

	FCM   FCMConfig   `json:"fcm" yaml:"fcm"`
	Relay RelayConfig `json:"relay" yaml:"relay"`
}

type FCMConfig struct {
	SenderID   string `json:"sender_id" yaml:"sender_id"`
	AppPackage string `json:"app_package" yaml:"app_package"`
	CertSHA1   string `json:"cert_sha1" yaml:"cert_sha1" validate:"omitempty,len=40,hexadecimal"`
	AppVersion string `json:"app_version" yaml:"app_version"`
}

type RelayConfig struct {
	HubURL      string `json:"hub_url" yaml:"hub_url" validate:"omitempty,url"`
	DeviceName  string `json:"device_name" yaml:"device_name"`
	AccessToken string `json:"access_token" yaml:"access_token"`
}

type DisplayConfig struct {
	Renderer   string `json:"renderer" yaml:"renderer" validate:"oneof=terminal webhook"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url" validate:"required_if=Renderer webhook"`
	Format     string `json:"format" yaml:"format" validate:"oneof=text yaml"`
}

type PusherConfig struct {
	// CredentialsFile is a Firebase service account JSON used by `send`.
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// DefaultSessionDir returns ~/.pushbridge.
func DefaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pushbridge"
	}
	return filepath.Join(home, ".pushbridge")
}

// Default returns a configuration for an Android 13 device using FCM, a
// file store and terminal output.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "pushbridge"
	}
	return &Config{
		Platform:          "android",
		AndroidSDKVersion: 33,
		Permission:        "prompt",
		SessionDir:        DefaultSessionDir(),
		LogLevel:          "info",
		Store: StoreConfig{
			Type:        "file",
			RedisPrefix: "pushbridge:",
		},
		Transport: TransportConfig{
			Type:  "fcm",
			FCM:   FCMConfig{AppVersion: "1"},
			Relay: RelayConfig{DeviceName: hostname},
		},
		Display: DisplayConfig{
			Renderer: "terminal",
			Format:   "text",
		},
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is a YAML config file. Empty skips it; a missing file is an error.
	File string
	// EnvFiles are .env files loaded before reading the environment. Missing
	// files are ignored. Variables already set in the process win.
	EnvFiles []string
}

// Load builds the configuration. It does not validate; call Validate once
// command-line overrides are applied.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		b, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", opts.File, err)
		}
	}

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("PLATFORM", &cfg.Platform)
	str("PERMISSION", &cfg.Permission)
	str("SESSION_DIR", &cfg.SessionDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	str("STORE_TYPE", &cfg.Store.Type)
	str("REDIS_ADDR", &cfg.Store.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Store.RedisPassword)
	str("REDIS_PREFIX", &cfg.Store.RedisPrefix)

	str("TRANSPORT", &cfg.Transport.Type)
	str("FCM_SENDER_ID", &cfg.Transport.FCM.SenderID)
	str("FCM_APP_PACKAGE", &cfg.Transport.FCM.AppPackage)
	str("FCM_CERT_SHA1", &cfg.Transport.FCM.CertSHA1)
	str("FCM_APP_VERSION", &cfg.Transport.FCM.AppVersion)
	str("RELAY_HUB_URL", &cfg.Transport.Relay.HubURL)
	str("RELAY_DEVICE_NAME", &cfg.Transport.Relay.DeviceName)
	str("RELAY_ACCESS_TOKEN", &cfg.Transport.Relay.AccessToken)

	str("DISPLAY_RENDERER", &cfg.Display.Renderer)
	str("DISPLAY_WEBHOOK_URL", &cfg.Display.WebhookURL)
	str("DISPLAY_FORMAT", &cfg.Display.Format)

	str("PUSHER_CREDENTIALS_FILE", &cfg.Pusher.CredentialsFile)

	return errors.Join(
		num("ANDROID_SDK_VERSION", &cfg.AndroidSDKVersion),
		num("REDIS_DB", &cfg.Store.RedisDB),
	)
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	c.Platform = strings.ToLower(c.Platform)
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateTransport reports missing settings for the selected transport.
// Commands that never touch the transport skip it.
func (c *Config) ValidateTransport() error {
	switch c.Transport.Type {
	case "fcm":
		if c.Transport.FCM.SenderID == "" || c.Transport.FCM.AppPackage == "" {
			return errors.New("fcm transport needs transport.fcm.sender_id and transport.fcm.app_package")
		}
	case "relay":
		if c.Transport.Relay.HubURL == "" {
			return errors.New("relay transport needs transport.relay.hub_url")
		}
	}
	return nil
}

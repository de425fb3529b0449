package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"foodrelay/internal/analysis"
	"foodrelay/internal/channel"
	"foodrelay/internal/config"
	"foodrelay/internal/dispatch"
	"foodrelay/internal/domain"
	"foodrelay/internal/relay"
	"foodrelay/internal/resolver"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	envFile    string
)

func main() {
	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "foodrelay",
		Short: "Food photo nutrition relay",
		Long: "foodrelay receives chat webhooks carrying a food photo, asks the food analysis " +
			"service for a nutrition breakdown and replies with a formatted summary.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./foodrelay.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default: ./.env if present)")

	root.AddCommand(serveCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadEnvFile() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig falls back to defaults plus environment when no file exists,
// so the relay can be deployed with env vars only.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, found, err := config.LoadOrDefaults(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !found {
		logger.Debug("config file not found, using defaults and environment", "path", cfgPath)
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook relay",
		Long:  "Serves /webhook, /webhook-file, /analyze-url and, when enabled, /webhook-telegram. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// components is the wiring shared by serve and analyze.
type components struct {
	client *analysis.Client
	relay  *relay.Relay
}

func buildComponents(cfg *config.Config) components {
	httpClient := analysis.SharedHTTPClient(cfg.Analysis.Timeout.Std())
	client := analysis.NewClient(analysis.ClientConfig{
		Endpoint:   cfg.Analysis.Endpoint,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	r := relay.New(relay.Config{
		Analyzer: client,
		Fetcher:  resolver.NewFetcher(httpClient, cfg.Relay.MaxUploadBytes, logger),
		Transfer: domain.ImageTransfer(cfg.Analysis.Transfer),
		Cards:    cfg.Relay.Cards,
		Timeout:  cfg.Analysis.Timeout.Std(),
		Logger:   logger,
	})
	return components{client: client, relay: r}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := buildComponents(cfg)
	// Runs alongside the listener; a cold service can take the whole
	// timeout to answer, and the check doubles as a wake-up call.
	go func() {
		if err := c.client.Healthy(ctx); err != nil {
			logger.Warn("analysis service unhealthy at startup", "endpoint", cfg.Analysis.Endpoint, "err", err)
			return
		}
		logger.Info("analysis service reachable", "endpoint", cfg.Analysis.Endpoint)
	}()

	cliq := dispatch.NewCliq(dispatch.CliqConfig{
		APIBase:    cfg.Cliq.APIBase,
		AuthScheme: cfg.Cliq.AuthScheme,
		Logger:     logger,
	})

	var telegram *channel.Telegram
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		telegram, err = newTelegram(cfg, c.relay)
		if err != nil {
			return err
		}
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}

	server := channel.NewWebhook(channel.WebhookConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Relay:           c.relay,
		Uploads:         resolver.NewUploads(resolver.UploadConfig{Field: cfg.Relay.UploadField, TempDir: cfg.Relay.TempDir, MaxBytes: cfg.Relay.MaxUploadBytes, Logger: logger}),
		Dispatcher:      cliq,
		Telegram:        telegram,
		BotName:         cfg.General.BotName,
		MetricsPath:     metricsPath,
		AnalysisTimeout: cfg.Analysis.Timeout.Std(),
		Version:         version,
		Logger:          logger,
	})

	logger.Info("relay started. Press Ctrl+C to stop.", "transfer", cfg.Analysis.Transfer)
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newTelegram(cfg *config.Config, r *relay.Relay) (*channel.Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(cfg.Telegram.WebhookURL, "/") + "/webhook-telegram")
		if err != nil {
			return nil, fmt.Errorf("telegram webhook url: %w", err)
		}
		if _, err := bot.Request(wh); err != nil {
			return nil, fmt.Errorf("telegram set webhook: %w", err)
		}
		logger.Info("telegram webhook registered", "url", cfg.Telegram.WebhookURL)
	}

	return channel.NewTelegram(channel.TelegramConfig{Bot: bot, Relay: r, Logger: logger}), nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. analysis.endpoint)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. analysis.transfer base64)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if errors.Is(err, os.ErrNotExist) {
				cfg = config.Defaults()
			} else if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths, values := config.ListPaths(config.Sanitize(cfg))
			for _, p := range paths {
				fmt.Printf("%s = %v\n", p, values[p])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// envOverrides lists the environment variables that take precedence over
// the config file. Unset variables leave the file value alone.
type envOverrides struct {
	AnalysisEndpoint *string        `env:"ANALYSIS_ENDPOINT"`
	Transfer         *string        `env:"ANALYSIS_TRANSFER"`
	RequestTimeout   *time.Duration `env:"REQUEST_TIMEOUT"`
	Host             *string        `env:"LISTEN_HOST"`
	Port             *int           `env:"PORT"`
	LogLevel         *string        `env:"LOG_LEVEL"`
	CliqAPIBase      *string        `env:"CLIQ_API_BASE"`
	TelegramToken    *string        `env:"TELEGRAM_TOKEN"`
	TempDir          *string        `env:"UPLOAD_TEMP_DIR"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if o.AnalysisEndpoint != nil {
		cfg.Analysis.Endpoint = *o.AnalysisEndpoint
	}
	if o.Transfer != nil {
		cfg.Analysis.Transfer = *o.Transfer
	}
	if o.RequestTimeout != nil {
		cfg.Analysis.Timeout = Duration(*o.RequestTimeout)
	}
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if o.LogLevel != nil {
		cfg.General.LogLevel = *o.LogLevel
	}
	if o.CliqAPIBase != nil {
		cfg.Cliq.APIBase = *o.CliqAPIBase
	}
	if o.TelegramToken != nil {
		cfg.Telegram.Token = *o.TelegramToken
		cfg.Telegram.Enabled = *o.TelegramToken != ""
	}
	if o.TempDir != nil {
		cfg.Relay.TempDir = *o.TempDir
	}
	return nil
}

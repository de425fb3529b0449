package config

import "time"

const (
	DefaultAnalysisEndpoint = "https://food-scanner-server-f486.onrender.com/analyze"
	DefaultPort             = 3000
	// 60s covers the analysis service's cold start; shorter ceilings fail
	// the first request after it has been idle.
	DefaultTimeout = 60 * time.Second
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			BotName:  "Calorie Scanner",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultPort,
		},
		Analysis: AnalysisConfig{
			Endpoint: DefaultAnalysisEndpoint,
			Timeout:  Duration(DefaultTimeout),
			Transfer: "url",
		},
		Relay: RelayConfig{
			MaxUploadBytes: 10 << 20,
			UploadField:    "image",
			Cards:          true,
		},
		Cliq: CliqConfig{
			APIBase:    "https://cliq.zoho.com/api/v2",
			AuthScheme: "Zoho-oauthtoken",
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

package config

import (
	"fmt"
)

type Config struct {
	Server   ServerConfig
	Advisory AdvisoryConfig
	Storage  StorageConfig
	Voice    VoiceConfig
	Locale   LocaleConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type AdvisoryConfig struct {
	BaseURL     string
	Model       string
	VisionModel string
	APIKey      string
}

type StorageConfig struct {
	DataDir string
}

type VoiceConfig struct {
	Enabled       bool
	SpeakCommand  string
	ListenCommand string
}

type LocaleConfig struct {
	Default string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Advisory: AdvisoryConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			VisionModel: "llama-3.2-90b-vision-preview",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Voice: VoiceConfig{
			Enabled:       true,
			SpeakCommand:  "espeak-ng",
			ListenCommand: "",
		},
		Locale: LocaleConfig{
			Default: "en",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file under XDG_CONFIG_HOME,
// applies KISAN_* environment overrides, and resolves the advisory API key
// from the secrets file when not set by environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(), readSecret)
}

// secretReader abstracts secrets-file access for testing.
type secretReader func(account string) (string, error)

func loadWith(b ConfigBackend, secret secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Advisory.APIKey == "" {
		if key, err := secret("advisory_api_key"); err == nil && key != "" {
			cfg.Advisory.APIKey = key
		}
	}

	if cfg.Advisory.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: advisory API key. " +
			"Set it via environment variable KISAN_ADVISORY_API_KEY or `kisan config set-secret advisory_api_key`")
	}

	return cfg, nil
}

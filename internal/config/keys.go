package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KISAN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "advisory.base_url", typ: kString, env: "KISAN_ADVISORY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Advisory.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Advisory.BaseURL },
	},
	{
		key: "advisory.model", typ: kString, env: "KISAN_ADVISORY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Advisory.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Advisory.Model },
	},
	{
		key: "advisory.vision_model", typ: kString, env: "KISAN_ADVISORY_VISION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Advisory.VisionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Advisory.VisionModel },
	},
	{
		key: "advisory.api_key", typ: kString, env: "KISAN_ADVISORY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Advisory.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Advisory.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KISAN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "voice.enabled", typ: kBool, env: "KISAN_VOICE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Voice.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Voice.Enabled },
	},
	{
		key: "voice.speak_command", typ: kString, env: "KISAN_VOICE_SPEAK_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Voice.SpeakCommand = v.(string) },
		extract: func(cfg Config) any { return cfg.Voice.SpeakCommand },
	},
	{
		key: "voice.listen_command", typ: kString, env: "KISAN_VOICE_LISTEN_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Voice.ListenCommand = v.(string) },
		extract: func(cfg Config) any { return cfg.Voice.ListenCommand },
	},
	{
		key: "locale.default", typ: kString, env: "KISAN_LOCALE_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Locale.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Locale.Default },
	},
	{
		key: "log.level", typ: kString, env: "KISAN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the config file backend.
func SetKey(key, value string) error {
	b := newFileBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kString, kBool:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

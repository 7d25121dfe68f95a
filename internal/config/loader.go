package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper builds the configuration from defaults, the values
// known to v (config file and bound flags), then the environment.
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("level") {
		cfg.Level = v.GetString("level")
	}
	if v.IsSet("engine") {
		cfg.Engine = v.GetString("engine")
	}
	if v.IsSet("user") {
		cfg.UserID = v.GetString("user")
	}
	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("style") {
		cfg.GlamourStyle = v.GetString("style")
	}
	if v.IsSet("show_progress") {
		cfg.ShowProgress = v.GetBool("show_progress")
	}
	if v.IsSet("metrics_addr") {
		cfg.MetricsAddr = v.GetString("metrics_addr")
	}

	cfg.OpenAI = loadOpenAIConfig(v, cfg.OpenAI)
	cfg.Audio = loadAudioConfig(v, cfg.Audio)
	cfg.Cache = loadCacheConfig(v, cfg.Cache)
	if v.IsSet("mock.delay") {
		cfg.Mock.Delay = getDuration(v, "mock.delay", cfg.Mock.Delay)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadOpenAIConfig(v *viper.Viper, cfg OpenAIConfig) OpenAIConfig {
	if v.IsSet("openai.api_key") {
		cfg.APIKey = v.GetString("openai.api_key")
	}
	if v.IsSet("openai.base_url") {
		cfg.BaseURL = v.GetString("openai.base_url")
	}
	if v.IsSet("openai.chat_model") {
		cfg.ChatModel = v.GetString("openai.chat_model")
	}
	if v.IsSet("openai.speech_model") {
		cfg.SpeechModel = v.GetString("openai.speech_model")
	}
	if v.IsSet("openai.voices") {
		cfg.Voices = v.GetStringSlice("openai.voices")
	}
	if v.IsSet("openai.language") {
		cfg.Language = v.GetString("openai.language")
	}
	if v.IsSet("openai.native_language") {
		cfg.NativeLanguage = v.GetString("openai.native_language")
	}
	if v.IsSet("openai.requests_per_minute") {
		cfg.RequestsPerMinute = v.GetInt("openai.requests_per_minute")
	}
	if v.IsSet("openai.line_gap") {
		cfg.LineGap = getDuration(v, "openai.line_gap", cfg.LineGap)
	}
	return cfg
}

func loadAudioConfig(v *viper.Viper, cfg AudioConfig) AudioConfig {
	if v.IsSet("audio.volume") {
		cfg.Volume = v.GetFloat64("audio.volume")
	}
	if v.IsSet("audio.buffer_size") {
		cfg.BufferSize = getDuration(v, "audio.buffer_size", cfg.BufferSize)
	}
	return cfg
}

func loadCacheConfig(v *viper.Viper, cfg CacheConfig) CacheConfig {
	if v.IsSet("cache.dir") {
		cfg.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.memory_mb") {
		cfg.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.disk_mb") {
		cfg.DiskMB = v.GetInt("cache.disk_mb")
	}
	if v.IsSet("cache.compression_level") {
		cfg.CompressionLevel = v.GetInt("cache.compression_level")
	}
	return cfg
}

// getDuration reads a duration written either as a string ("300ms") or as
// a plain number of nanoseconds. Unparseable values keep fallback.
func getDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(v.GetString(key)); err == nil {
		return d
	}
	if d := v.GetDuration(key); d != 0 {
		return d
	}
	return fallback
}

// SetDefaults registers the defaults with v so they show up in the
// generated config file and in flag help.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("level", defaults.Level)
	v.SetDefault("engine", defaults.Engine)
	v.SetDefault("style", defaults.GlamourStyle)
	v.SetDefault("show_progress", defaults.ShowProgress)

	v.SetDefault("openai.chat_model", defaults.OpenAI.ChatModel)
	v.SetDefault("openai.speech_model", defaults.OpenAI.SpeechModel)
	v.SetDefault("openai.voices", defaults.OpenAI.Voices)
	v.SetDefault("openai.language", defaults.OpenAI.Language)
	v.SetDefault("openai.native_language", defaults.OpenAI.NativeLanguage)
	v.SetDefault("openai.requests_per_minute", defaults.OpenAI.RequestsPerMinute)
	v.SetDefault("openai.line_gap", defaults.OpenAI.LineGap.String())

	v.SetDefault("audio.volume", defaults.Audio.Volume)
	v.SetDefault("audio.buffer_size", defaults.Audio.BufferSize.String())

	v.SetDefault("cache.memory_mb", defaults.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", defaults.Cache.DiskMB)
	v.SetDefault("cache.compression_level", defaults.Cache.CompressionLevel)

	v.SetDefault("mock.delay", defaults.Mock.Delay.String())
}

// Package config holds lingoplay's settings.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/cache"
	"github.com/dgnsrekt/lingoplay/internal/generate"
	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/store"
	"github.com/dgnsrekt/lingoplay/utils"
)

// AppName names the config, data and cache directories.
const AppName = "lingoplay"

// Config contains all lingoplay configuration options. Environment variables
// override the config file; flags override both.
type Config struct {
	// Session settings
	Level  string `yaml:"level" env:"LINGOPLAY_LEVEL"`
	Engine string `yaml:"engine" env:"LINGOPLAY_ENGINE"`

	// Library settings
	UserID  string `yaml:"user" env:"LINGOPLAY_USER"`
	DataDir string `yaml:"data_dir" env:"LINGOPLAY_DATA_DIR"`

	// Visual settings
	GlamourStyle string `yaml:"style" env:"LINGOPLAY_STYLE"`
	ShowProgress bool   `yaml:"show_progress" env:"LINGOPLAY_SHOW_PROGRESS"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr" env:"LINGOPLAY_METRICS_ADDR"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Audio  AudioConfig  `yaml:"audio"`
	Cache  CacheConfig  `yaml:"cache"`
	Mock   MockConfig   `yaml:"mock"`
}

// OpenAIConfig contains OpenAI engine settings.
type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL           string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	ChatModel         string        `yaml:"chat_model" env:"LINGOPLAY_OPENAI_CHAT_MODEL"`
	SpeechModel       string        `yaml:"speech_model" env:"LINGOPLAY_OPENAI_SPEECH_MODEL"`
	Voices            []string      `yaml:"voices" env:"LINGOPLAY_OPENAI_VOICES" envSeparator:","`
	Language          string        `yaml:"language" env:"LINGOPLAY_LANGUAGE"`
	NativeLanguage    string        `yaml:"native_language" env:"LINGOPLAY_NATIVE_LANGUAGE"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"LINGOPLAY_OPENAI_RPM"`
	LineGap           time.Duration `yaml:"line_gap" env:"LINGOPLAY_OPENAI_LINE_GAP"`
}

// AudioConfig contains playback settings.
type AudioConfig struct {
	Volume     float64       `yaml:"volume" env:"LINGOPLAY_VOLUME"`
	BufferSize time.Duration `yaml:"buffer_size" env:"LINGOPLAY_AUDIO_BUFFER"`
}

// CacheConfig contains audio cache settings.
type CacheConfig struct {
	Dir              string `yaml:"dir" env:"LINGOPLAY_CACHE_DIR"`
	MemoryMB         int    `yaml:"memory_mb" env:"LINGOPLAY_CACHE_MEMORY_MB"`
	DiskMB           int    `yaml:"disk_mb" env:"LINGOPLAY_CACHE_DISK_MB"`
	CompressionLevel int    `yaml:"compression_level" env:"LINGOPLAY_CACHE_COMPRESSION"`
}

// MockConfig contains settings for the offline engine.
type MockConfig struct {
	Delay time.Duration `yaml:"delay" env:"LINGOPLAY_MOCK_DELAY"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	oa := generate.DefaultOpenAIConfig()
	out := audio.DefaultOutputConfig()
	c := cache.DefaultConfig()

	return Config{
		Level:        string(script.Beginner),
		Engine:       generate.EngineOpenAI,
		GlamourStyle: "auto",
		ShowProgress: true,

		OpenAI: OpenAIConfig{
			ChatModel:         oa.ChatModel,
			SpeechModel:       oa.SpeechModel,
			Voices:            oa.Voices,
			Language:          oa.Language,
			NativeLanguage:    oa.NativeLanguage,
			RequestsPerMinute: oa.RequestsPerMinute,
			LineGap:           oa.LineGap,
		},
		Audio: AudioConfig{
			Volume:     out.Volume,
			BufferSize: out.BufferSize,
		},
		Cache: CacheConfig{
			MemoryMB:         int(c.MemoryCapacity >> 20),
			DiskMB:           int(c.DiskCapacity >> 20),
			CompressionLevel: c.CompressionLevel,
		},
		Mock: MockConfig{
			Delay: 800 * time.Millisecond,
		},
	}
}

// Validate checks if the configuration is valid, normalizing case where it
// does not matter.
func (c *Config) Validate() error {
	level, err := script.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	c.Level = string(level)

	validEngines := []string{generate.EngineOpenAI, generate.EngineMock}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = strings.ToLower(c.Engine)
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines)
	}

	if err := c.OpenAI.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if c.Mock.Delay < 0 {
		return fmt.Errorf("mock delay must not be negative, got %v", c.Mock.Delay)
	}

	return nil
}

// Validate checks if the OpenAI configuration is valid. A missing API key is
// reported when the engine is first used, not here.
func (c *OpenAIConfig) Validate() error {
	if len(c.Voices) == 0 {
		return fmt.Errorf("at least one voice is required")
	}
	for _, v := range c.Voices {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("voice names cannot be empty")
		}
	}

	if c.RequestsPerMinute < 1 || c.RequestsPerMinute > 10000 {
		return fmt.Errorf("requests_per_minute must be between 1 and 10000, got %d", c.RequestsPerMinute)
	}

	if c.LineGap < 0 || c.LineGap > 5*time.Second {
		return fmt.Errorf("line_gap must be between 0 and 5s, got %v", c.LineGap)
	}

	return nil
}

// Validate checks if the audio configuration is valid.
func (c *AudioConfig) Validate() error {
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size must not be negative, got %v", c.BufferSize)
	}
	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Volume)
	}

	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.MemoryMB < 1 || c.MemoryMB > 4096 {
		return fmt.Errorf("memory_mb must be between 1 and 4096, got %d", c.MemoryMB)
	}
	if c.DiskMB < 0 {
		return fmt.Errorf("disk_mb must not be negative, got %d", c.DiskMB)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel)
	}
	return nil
}

// ToOpenAIConfig converts to the generator's configuration.
func (c *Config) ToOpenAIConfig() generate.OpenAIConfig {
	return generate.OpenAIConfig{
		APIKey:            c.OpenAI.APIKey,
		BaseURL:           c.OpenAI.BaseURL,
		ChatModel:         c.OpenAI.ChatModel,
		SpeechModel:       c.OpenAI.SpeechModel,
		Voices:            c.OpenAI.Voices,
		Language:          c.OpenAI.Language,
		NativeLanguage:    c.OpenAI.NativeLanguage,
		RequestsPerMinute: c.OpenAI.RequestsPerMinute,
		LineGap:           c.OpenAI.LineGap,
	}
}

// ToOutputConfig converts to the audio device configuration. The device
// always runs in the format the generators produce.
func (c *Config) ToOutputConfig() audio.OutputConfig {
	return audio.OutputConfig{
		SampleRate: audio.DefaultSampleRate,
		Channels:   audio.DefaultChannels,
		BufferSize: c.Audio.BufferSize,
		Volume:     c.Audio.Volume,
	}
}

// ToCacheConfig converts to the artifact cache configuration. An empty
// cache dir uses the user cache directory; a zero disk size disables the
// disk level.
func (c *Config) ToCacheConfig() cache.Config {
	cc := cache.Config{
		MemoryCapacity:   int64(c.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(c.Cache.DiskMB) << 20,
		CompressionLevel: c.Cache.CompressionLevel,
	}
	if c.Cache.DiskMB == 0 {
		return cc
	}

	dir := utils.ExpandPath(c.Cache.Dir)
	if dir == "" {
		if d, err := gap.NewScope(gap.User, AppName).CacheDir(); err == nil {
			dir = filepath.Join(d, "audio")
		}
	}
	cc.DiskPath = dir
	return cc
}

// ToLibraryConfig converts to the history and vocabulary store
// configuration.
func (c *Config) ToLibraryConfig() (store.Config, error) {
	dir := utils.ExpandPath(c.DataDir)
	if dir == "" {
		dirs, err := gap.NewScope(gap.User, AppName).DataDirs()
		if err != nil {
			return store.Config{}, fmt.Errorf("could not find a data directory: %w", err)
		}
		if len(dirs) == 0 {
			return store.Config{}, fmt.Errorf("could not find a data directory")
		}
		dir = dirs[0]
	}
	return store.Config{DataDir: dir, UserID: c.UserID}, nil
}

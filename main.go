// Package main provides the entry point for the lingoplay CLI application.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/cache"
	"github.com/dgnsrekt/lingoplay/internal/config"
	"github.com/dgnsrekt/lingoplay/internal/define"
	"github.com/dgnsrekt/lingoplay/internal/generate"
	"github.com/dgnsrekt/lingoplay/internal/metrics"
	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/session"
	"github.com/dgnsrekt/lingoplay/internal/store"
	"github.com/dgnsrekt/lingoplay/ui"
	"github.com/dgnsrekt/lingoplay/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	level       string
	engine      string
	userID      string
	metricsAddr string
	width       uint

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "lingoplay",
		Short: "Listen to generated dialogues in the language you are learning",
		Long: paragraph(
			fmt.Sprintf("\nGenerate short dialogues, %s, and look up the words you miss.", keyword("listen along line by line")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != "auto" && styles.DefaultStyles[style] == nil {
		style = utils.ExpandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := config.LoadConfigFromViper(viper.GetViper())
	if err != nil {
		return err //nolint:wrapcheck
	}

	// Flags take precedence over the environment.
	flags := cmd.Flags()
	if flags.Changed("level") {
		loaded.Level = level
	}
	if flags.Changed("engine") {
		loaded.Engine = engine
	}
	if flags.Changed("user") {
		loaded.UserID = userID
	}
	if flags.Changed("metrics-addr") {
		loaded.MetricsAddr = metricsAddr
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	if err := validateStyle(loaded.GlamourStyle); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal && loaded.GlamourStyle == styles.AutoStyle {
		loaded.GlamourStyle = styles.NoTTYStyle
	}

	// Detect terminal width
	if !flags.Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}
			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}

	cfg = loaded
	return nil
}

func execute(*cobra.Command, []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("lingoplay needs an interactive terminal")
	}
	return runTUI()
}

func runTUI() error {
	metrics.Serve(cfg.MetricsAddr)
	logger := log.Default()

	scripts, synth, definer, err := generate.New(cfg.Engine, cfg.ToOpenAIConfig())
	if err != nil {
		if errors.Is(err, generate.ErrMissingAPIKey) {
			return fmt.Errorf("%w; run with --engine mock to try lingoplay offline", err)
		}
		return fmt.Errorf("unable to set up %s engine: %w", cfg.Engine, err)
	}
	if m, ok := scripts.(*generate.MockGenerator); ok {
		m.SetDelay(cfg.Mock.Delay)
	}

	outCfg := cfg.ToOutputConfig()
	out, err := audio.NewOtoOutput(outCfg)
	if err != nil {
		return fmt.Errorf("unable to set up audio output: %w", err)
	}
	clock := audio.NewClock(out, nil, audio.WithFormat(outCfg.SampleRate, outCfg.Channels))

	artifacts := cache.NewArtifactCache(cfg.ToCacheConfig(), logger)
	defer artifacts.Close() //nolint:errcheck

	libCfg, err := cfg.ToLibraryConfig()
	if err != nil {
		return err //nolint:wrapcheck
	}
	library, err := store.Open(libCfg, logger)
	if err != nil {
		return fmt.Errorf("unable to open library: %w", err)
	}
	defer library.Close() //nolint:errcheck

	orchestrator := session.New(session.Config{
		Scripts: scripts,
		Audio:   synth,
		Cache:   artifacts,
		Player:  clock,
		History: library,
		Logger:  logger,
	})
	defer orchestrator.Stop()

	// Read environment to get debugging stuff
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the configured one if unset or invalid
	if uiCfg.GlamourStyle == "" || validateStyle(uiCfg.GlamourStyle) != nil {
		uiCfg.GlamourStyle = cfg.GlamourStyle
	}
	uiCfg.GlamourMaxWidth = width
	uiCfg.Level = script.Level(cfg.Level)
	uiCfg.Engine = cfg.Engine
	uiCfg.ShowProgress = cfg.ShowProgress

	services := ui.Services{
		Session:    orchestrator,
		Library:    library,
		Dictionary: define.New(definer, define.DefaultCapacity, logger),
	}

	if _, err := ui.NewProgram(uiCfg, services).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&level, "level", "l", "", "dialogue difficulty: beginner, intermediate or advanced")
	rootCmd.Flags().StringVarP(&engine, "engine", "e", "", "generation engine: openai or mock")
	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "keep history in the local database under this user")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to detect)")

	// Config bindings
	_ = viper.BindPFlag("level", rootCmd.Flags().Lookup("level"))
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("user", rootCmd.Flags().Lookup("user"))
	_ = viper.BindPFlag("metrics_addr", rootCmd.Flags().Lookup("metrics-addr"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("LINGOPLAY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/lingoplay/utils"
)

const defaultConfig = `# difficulty of generated dialogues: beginner, intermediate or advanced
level: "beginner"
# generation engine: openai, or mock to run offline
engine: "openai"
# user id; set it to keep history in the local database instead of the
# plain lists
# user: ""
# where history and vocabulary are kept (default: user data dir)
# data_dir: "~/.local/share/lingoplay"
# glamour style for the scene description (default "auto")
style: "auto"
# show the progress bar while playing
show_progress: true
# serve Prometheus metrics, e.g. ":9090"
# metrics_addr: ""

openai:
  # api_key is usually read from OPENAI_API_KEY
  # api_key: ""
  chat_model: "gpt-4o-mini"
  speech_model: "gpt-4o-mini-tts"
  # voices are given to speakers in order of appearance
  voices: ["alloy", "echo", "nova"]
  language: "Spanish"
  native_language: "English"
  requests_per_minute: 50
  # silence between lines
  line_gap: "300ms"

audio:
  volume: 1.0
  buffer_size: "100ms"

cache:
  # dir: "~/.cache/lingoplay/audio"
  memory_mb: 64
  # set to 0 to keep audio in memory only
  disk_mb: 1024
  compression_level: 3

mock:
  delay: "800ms"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the lingoplay config file",
	Long:    paragraph(fmt.Sprintf("\n%s the lingoplay config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("lingoplay config\nlingoplay config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Lingoplay", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile makes sure configFile names a YAML file, writing the
// default configuration there if it does not exist yet.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no configuration file location")
	}
	configFile = utils.ExpandPath(configFile)

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable create directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	log.Info("Wrote default configuration", "path", configFile)
	return nil
}

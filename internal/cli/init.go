package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/purefact/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	files := []struct {
		name string
		data string
		perm os.FileMode
	}{
		{config.DefaultConfigFile, exampleConfig, 0o644},
		{config.DefaultSourcesFile, exampleSources, 0o644},
		{config.DefaultEnvFile, exampleEnv, 0o600},
	}

	created := 0
	for _, f := range files {
		wrote, err := writeIfNotExists(filepath.Join(configDir, f.name), []byte(f.data), f.perm)
		if err != nil {
			return err
		}
		if wrote {
			created++
		}
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# purefact configuration

sources:
  file: sources.txt
  urls: []

storage:
  backend: file        # file or sqlite
  # path: processed.txt

pipeline:
  min_chars: 100
  commit_on_delivery_failure: true

summarize:
  mode: llm            # llm or heuristic
  fallback: placeholder
  llm:
    base_url: https://api.groq.com/openai/v1
    model: llama-3.3-70b-versatile
    api_key_env: GROQ_API_KEY

image:
  enabled: false
  api_key_env: OPENAI_API_KEY

telegram:
  token_env: TELEGRAM_BOT_TOKEN
  chat_id: 0
  allowed_chats: []

ntfy:
  topic: ""

deliver:
  to: telegram         # telegram, ntfy, stdout or all

schedule:
  daily_at: "08:00"
  timezone: UTC

liveness:
  enabled: false
  addr: ":8080"
  ping_url: ""
  ping_interval: 10m

logging:
  level: info
  format: auto

privacy:
  redact:
    enabled: false
    builtin: true
    patterns: []
`

const exampleSources = `# One source per line. Blank lines and # comments are ignored.
# A plain URL is a page; the first link to a .csv, .xlsx, .xls or .pdf file is used.
# Prefix a feed with rss: to read every entry.
#
# https://www.example.gov/statistics/weekly-data
# rss:https://news.example.org/feed.xml
`

const exampleEnv = `# Secrets for purefact. Variables already set in the environment win.
TELEGRAM_BOT_TOKEN=
GROQ_API_KEY=
OPENAI_API_KEY=
`

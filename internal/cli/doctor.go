package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/purefact/internal/config"
	"github.com/ppiankov/purefact/internal/source"
	"github.com/ppiankov/purefact/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and credentials",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file and sources
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config: %v", err)
		return errors.New("some checks failed")
	}
	pages, feeds := 0, 0
	for _, s := range cfg.Sources.Specs {
		if s.Kind == source.KindFeed {
			feeds++
		} else {
			pages++
		}
	}
	printCheck(true, "config.yaml (%d pages, %d feeds)", pages, feeds)

	// Storage
	st, closeStore, err := openStore(cfg)
	if err != nil {
		printCheck(false, "storage: %v", err)
		ok = false
	} else {
		set, err := st.Load(cmd.Context())
		if err != nil {
			printCheck(false, "storage %s: %v", cfg.Path(cfg.Storage.Path), err)
			ok = false
		} else {
			printCheck(true, "storage %s %s (%d seen)", cfg.Storage.Backend, cfg.Path(cfg.Storage.Path), set.Len())
		}
		if db, isDB := st.(*store.Store); isDB {
			if _, err := db.Stats(cmd.Context()); err != nil {
				printCheck(false, "store stats: %v", err)
				ok = false
			}
		}
		_ = closeStore()
	}
	if unlock, err := lockStore(cfg); err != nil {
		printInfo("storage: %v", err)
	} else {
		_ = unlock()
	}

	// Summarizer
	switch {
	case cfg.Summarize.Mode == "heuristic":
		printCheck(true, "summarizer: heuristic")
	case cfg.Summarize.LLM.APIKey == "":
		printCheck(false, "summarizer: %s not set (articles will be %s)", cfg.Summarize.LLM.APIKeyEnv, cfg.Summarize.Fallback)
		ok = false
	default:
		printCheck(true, "summarizer: llm")
	}

	// Images
	if cfg.Image.Enabled {
		if cfg.Image.APIKey == "" {
			printCheck(false, "images: %s not set", cfg.Image.APIKeyEnv)
			ok = false
		} else {
			printCheck(true, "images")
		}
	}

	// Delivery
	needTelegram := cfg.Deliver.To == "telegram" || cfg.Deliver.To == "all"
	if err := cfg.TelegramReady(); err != nil {
		if needTelegram {
			printCheck(false, "%v", err)
			ok = false
		} else {
			printInfo("telegram not configured (bot and run unavailable)")
		}
	} else {
		printCheck(true, "telegram chat %d", cfg.Telegram.ChatID)
	}
	if cfg.Ntfy.Topic != "" {
		printCheck(true, "ntfy topic %s", cfg.Ntfy.Topic)
	}

	if !ok {
		return errors.New("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/purefact/internal/config"
	"github.com/ppiankov/purefact/internal/seen"
)

var (
	seenLimit int
	seenYes   bool
)

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Inspect or reset the set of delivered items",
}

var seenListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print seen identities, oldest first",
	RunE:  seenListAction,
}

var seenResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every delivered item so the next scan resends everything",
	RunE:  seenResetAction,
}

func init() {
	seenListCmd.Flags().IntVar(&seenLimit, "limit", 0, "print only the newest N identities")
	seenResetCmd.Flags().BoolVar(&seenYes, "yes", false, "confirm the reset")
	seenCmd.AddCommand(seenListCmd, seenResetCmd)
}

func seenListAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	set, err := st.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load seen set: %w", err)
	}
	ids := set.IDs()
	if seenLimit > 0 && len(ids) > seenLimit {
		ids = ids[len(ids)-seenLimit:]
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func seenResetAction(cmd *cobra.Command, _ []string) error {
	if !seenYes {
		return errors.New("refusing to reset without --yes")
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	unlock, err := lockStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	r, ok := st.(seen.Resetter)
	if !ok {
		return fmt.Errorf("storage backend %s cannot be reset", cfg.Storage.Backend)
	}
	if err := r.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Printf("Seen set cleared (%s).\n", cfg.Path(cfg.Storage.Path))
	return nil
}

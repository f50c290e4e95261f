package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	scanTo     string
	scanDryRun bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Check every source once and deliver new articles",
	RunE:  scanAction,
}

func init() {
	scanCmd.Flags().StringVar(&scanTo, "to", "", "channel: telegram, ntfy, stdout, all (default from config)")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "print articles to stdout and remember nothing")
}

func scanAction(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	to := scanTo
	if to == "" {
		to = cfg.Deliver.To
	}
	if scanDryRun {
		to = "stdout"
	}
	ch, err := newChannel(cfg, to, logger)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}

	ctx := cmd.Context()
	svc, closeStore, err := loadService(ctx, cfg, logger, nil, scanDryRun)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	r, err := svc.Scan(ctx, ch)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	for _, se := range r.Errors() {
		logger.Debug().Err(se).Msg("item not committed")
	}
	if to != "stdout" {
		fmt.Printf("%s (%d skipped, %d failed)\n", r.Notice(), r.Skipped, r.Failed)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/purefact/internal/config"
	"github.com/ppiankov/purefact/internal/seen"
	"github.com/ppiankov/purefact/internal/source"
	"github.com/ppiankov/purefact/internal/store"
)

var (
	statusFormat string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sources, seen-set size and recent deliveries",
	RunE:  statusAction,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "terminal", "output format: terminal, json")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "recent deliveries to show (sqlite backend)")
}

type statusReport struct {
	ConfigDir    string          `json:"config_dir"`
	Pages        int             `json:"pages"`
	Feeds        int             `json:"feeds"`
	Backend      string          `json:"backend"`
	StoragePath  string          `json:"storage_path"`
	StorageBytes int64           `json:"storage_bytes"`
	Seen         int             `json:"seen"`
	Deliveries   int             `json:"deliveries,omitempty"`
	Failed       int             `json:"failed,omitempty"`
	LastDelivery *time.Time      `json:"last_delivery,omitempty"`
	Recent       []seen.Delivery `json:"recent,omitempty"`
}

func statusAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()

	rep := statusReport{
		ConfigDir:   configDir,
		Backend:     cfg.Storage.Backend,
		StoragePath: cfg.Path(cfg.Storage.Path),
	}
	for _, s := range cfg.Sources.Specs {
		if s.Kind == source.KindFeed {
			rep.Feeds++
		} else {
			rep.Pages++
		}
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	set, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load seen set: %w", err)
	}
	rep.Seen = set.Len()

	switch s := st.(type) {
	case *store.Store:
		rep.StorageBytes = s.Size()
		stats, err := s.Stats(ctx)
		if err != nil {
			return fmt.Errorf("store stats: %w", err)
		}
		rep.Deliveries = stats.Deliveries
		rep.Failed = stats.Failed
		if !stats.LastDelivery.IsZero() {
			last := stats.LastDelivery
			rep.LastDelivery = &last
		}
		if statusLimit > 0 {
			if rep.Recent, err = s.RecentDeliveries(ctx, statusLimit); err != nil {
				return fmt.Errorf("recent deliveries: %w", err)
			}
		}
	case *seen.FileStore:
		rep.StorageBytes = s.Size()
	}

	switch statusFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "terminal", "":
		printStatus(rep)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statusFormat)
	}
}

func printStatus(rep statusReport) {
	fmt.Printf("purefact — %d pages, %d feeds (%s)\n", rep.Pages, rep.Feeds, rep.ConfigDir)
	fmt.Printf("Storage: %s %s (%s)\n", rep.Backend, rep.StoragePath, humanize.Bytes(uint64(rep.StorageBytes)))
	fmt.Printf("Seen: %s items\n", humanize.Comma(int64(rep.Seen)))

	if rep.Backend != config.BackendSQLite {
		return
	}
	last := "never"
	if rep.LastDelivery != nil {
		last = humanize.Time(*rep.LastDelivery)
	}
	fmt.Printf("Deliveries: %d (%d failed), last %s\n", rep.Deliveries, rep.Failed, last)
	if len(rep.Recent) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"When", "Channel", "Status", "Title"})
	for _, d := range rep.Recent {
		status := d.Status
		if d.Degraded {
			status += " (degraded)"
		}
		t.AppendRow(table.Row{humanize.Time(d.At), d.Channel, status, truncate(d.Title, 60)})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

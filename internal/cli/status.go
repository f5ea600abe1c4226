package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/faultkeeper/internal/infra/redis"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system health, component states and error counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	client, err := newAPIClient(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var snap recovery.Snapshot
	if err := client.do(ctx, "GET", "/health/detailed", &snap); err != nil {
		slog.Error("Failed to fetch status", "error", err)
		printPublishedLevel(cmd)
		os.Exit(1)
	}

	printSnapshot(os.Stdout, snap)
}

func printSnapshot(out io.Writer, snap recovery.Snapshot) {
	_, _ = fmt.Fprintf(out, "System health: %s", snap.SystemHealth)
	if snap.Escalated {
		_, _ = fmt.Fprint(out, " (escalated)")
	}
	_, _ = fmt.Fprintf(out, "\nMonitoring:    %t\nGenerated:     %s\n\n",
		snap.MonitoringActive, snap.GeneratedAt.Format(time.RFC3339))

	names := make([]string, 0, len(snap.Components))
	for name := range snap.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATE\tCRITICAL\tERRORS\tATTEMPTS\tLAST ERROR\tDETAIL")
	for _, name := range names {
		c := snap.Components[name]
		last := "-"
		if c.LastError != nil {
			last = c.LastError.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d/%d\t%s\t%s\n",
			c.Name, c.State, c.Critical, c.ErrorCount, c.RecoveryAttempts, c.MaxRecoveryAttempts, last,
			recovery.StateDescription(c.State))
	}
	_ = w.Flush()

	if len(snap.Errors.Entries) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo tracked errors.")
		return
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CATEGORY\tSEVERITY\tCOUNT\tTHRESHOLD\tLAST SEEN")
	for _, e := range snap.Errors.Entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			e.Category, e.Severity, e.Count, snap.Errors.Thresholds[e.Category], e.LastSeen.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// printPublishedLevel falls back to the level last published to Redis.
func printPublishedLevel(cmd *cobra.Command) {
	cfg, err := loadConfig(cmd)
	if err != nil || !cfg.Redis.Enabled() {
		return
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("Failed to connect to Redis", "error", err)
		return
	}
	defer func() {
		_ = client.Close()
	}()

	key := cfg.Redis.LevelKey
	if key == "" {
		key = redisclient.DefaultLevelKey
	}
	level, err := client.GetValue(context.Background(), key)
	if err != nil || level == "" {
		return
	}
	_, _ = fmt.Fprintf(os.Stdout, "Last published system health: %s\n", level)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teemow/rapture-inbox/internal/app"
	"github.com/teemow/rapture-inbox/internal/history"
)

func newStatusCmd() *cobra.Command {
	var (
		asJSON       bool
		historyLimit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sign-in state, last sync and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := rt.openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.Status()
			out := cmd.OutOrStdout()

			if asJSON {
				data, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			printStatus(out, st, rt.configPath, time.Now())

			if historyLimit > 0 && a.History() != nil {
				runs, err := a.History().RecentRuns(ctx, historyLimit)
				if err != nil {
					return err
				}
				printRuns(out, runs, time.Now())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	cmd.Flags().IntVar(&historyLimit, "history", 5, "Number of recent runs to show")
	return cmd
}

func printStatus(w io.Writer, st app.Status, configPath string, now time.Time) {
	fmt.Fprintln(w, st.ConnectionText())
	if st.Authenticated && !st.TokenExpiry.IsZero() {
		fmt.Fprintf(w, "Access token expires %s\n", humanize.RelTime(st.TokenExpiry, now, "ago", "from now"))
	}
	fmt.Fprintln(w, st.LastSyncText(now))
	fmt.Fprintf(w, "Sync status:   %s\n", st.SyncStatus)
	fmt.Fprintf(w, "Vault:         %s\n", st.VaultPath)
	fmt.Fprintf(w, "Destination:   %s\n", st.Destination)
	fmt.Fprintf(w, "Sync interval: %s\n", st.SyncInterval)
	fmt.Fprintf(w, "Config file:   %s\n", configPath)
}

func printRuns(w io.Writer, runs []history.RunSummary, now time.Time) {
	if len(runs) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecent runs:")
	for _, r := range runs {
		fmt.Fprintf(w, "  %-14s %-8s %s downloaded",
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Outcome,
			humanize.Comma(int64(r.FilesDownloaded)))
		if len(r.Errors) > 0 {
			fmt.Fprintf(w, ", %d error(s)", len(r.Errors))
		}
		fmt.Fprintln(w)
	}
}

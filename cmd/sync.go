package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/rapture-inbox/internal/inbox"
)

// errSyncFailed makes the process exit non-zero after the summary is printed.
var errSyncFailed = errors.New("sync failed")

func newSyncCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Move pending Rapture notes into the vault once",
		Long: `Drain the Drive mailbox once: every Markdown note is downloaded into the
destination folder and then deleted from Drive. Notes that fail stay in the
mailbox and are retried on the next run.`,
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

			result := a.ManualSync(ctx)

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintln(out, inbox.Summary(result))
				for _, f := range result.Files {
					fmt.Fprintf(out, "  %s\n", f.Path)
				}
			}

			if !result.Success() {
				cmd.SilenceErrors = true
				return errSyncFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

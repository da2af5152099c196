package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Print the Google consent URL to connect the mailbox",
		Long: `Print the Google consent URL. After granting access the browser is sent to
the obsidian://rapture-inbox redirect; pass that URI to the callback command
(or register rapture-inbox as the handler for the scheme) to finish signing in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			a, err := rt.openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			state := make([]byte, 16)
			if _, err := rand.Read(state); err != nil {
				return fmt.Errorf("generating state: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Visit this URL in your browser to connect Google Drive:")
			fmt.Fprintf(out, "\n  %s\n\n", a.AuthURL(hex.EncodeToString(state)))
			fmt.Fprintln(out, "Then run: rapture-inbox callback '<redirect URI>'")
			return nil
		},
	}
}

func newCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <redirect-uri>",
		Short: "Complete sign-in with the OAuth redirect URI",
		Args:  cobra.ExactArgs(1),
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

			if err := a.CompleteLogin(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), a.Status().ConnectionText())
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored Google credentials",
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

			a.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected from Google Drive")
			return nil
		},
	}
}

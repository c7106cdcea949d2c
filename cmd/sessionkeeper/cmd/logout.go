package cmd

import (
	"fmt"

	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the shared session",
	Long: `Removes the token expiry from the shared store. Every running instance
sees the removal as a logout and stops refreshing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(appConfig)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := crosstab.NewSignal(store, crosstab.WithLogger(logger)).ClearExpiry(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session shared through the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(appConfig)
		if err != nil {
			return err
		}
		defer store.Close()
		return printStatus(cmd.OutOrStdout(), crosstab.NewSignal(store), time.Now())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, s *crosstab.Signal, now time.Time) error {
	exp, ok, err := s.ReadExpiry()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "No active session")
		return nil
	}

	remaining := exp.Sub(now).Truncate(time.Second)
	fmt.Fprintf(w, "Token expiry:   %s\n", exp.Local().Format(time.RFC3339))
	if remaining > 0 {
		fmt.Fprintf(w, "Remaining:      %s\n", remaining)
	} else {
		fmt.Fprintf(w, "Remaining:      expired %s ago\n", -remaining)
	}

	if last, ok, err := s.LastActivity(); err != nil {
		return err
	} else if ok {
		fmt.Fprintf(w, "Last activity:  %s\n", last.Local().Format(time.RFC3339))
	}
	if id, ok, err := s.SessionID(); err != nil {
		return err
	} else if ok {
		fmt.Fprintf(w, "Session ID:     %s\n", id)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/spf13/cobra"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the send journal",
		Long:  "Shows the most recent sends of the profile, newest first, with their outcome.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(cmd, func(_ context.Context, svc *api.Service) error {
				entries, err := svc.History(limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.json {
					return outputJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No sends recorded.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSTATUS\tFROM\tTO\tRESULT")
				for _, e := range entries {
					result := e.ServerMsgID
					if e.ErrorMessage != "" {
						result = e.ErrorMessage
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						time.UnixMilli(e.CreatedAt).Local().Format(time.DateTime),
						e.Status, e.PhoneNumberID, e.Participant, result)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/spf13/cobra"
)

func newConversationsCmd(g *globals) *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List the conversations of a phone number",
		Long:  "Lists the conversations of a phone number, most recently active first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *api.Service) error {
				convs, err := svc.Conversations(ctx, phone)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.json {
					return outputJSON(out, convs)
				}
				if len(convs) == 0 {
					fmt.Fprintln(out, "No conversations found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPARTICIPANTS\tACTIVITY")
				for _, c := range convs {
					name := "-"
					if c.Name != nil && *c.Name != "" {
						name = *c.Name
					}
					activity := "-"
					if at := c.ActivityAt(); !at.IsZero() {
						activity = at.Local().Format(time.DateTime)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, name, strings.Join(c.Participants, ","), activity)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "phone number ID (required)")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/spf13/cobra"
)

func newPhonesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "phones",
		Short: "List the workspace's phone numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withService(cmd, func(ctx context.Context, svc *api.Service) error {
				phones, err := svc.PhoneNumbers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.json {
					return outputJSON(out, phones)
				}
				if len(phones) == 0 {
					fmt.Fprintln(out, "No phone numbers found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tNUMBER\tUSERS")
				for _, p := range phones {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Display(), len(p.Users))
				}
				return w.Flush()
			})
		},
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/spf13/cobra"
)

func newMessagesCmd(g *globals) *cobra.Command {
	var (
		phone       string
		participant string
		all         bool
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show the messages of a conversation",
		Long:  "Shows a conversation oldest first. Pages already cached are reread; older pages are read only with --all.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := querycache.Key{PhoneNumberID: phone, Participant: participant}
			return g.withService(cmd, func(ctx context.Context, svc *api.Service) error {
				q := svc.Messages(key)
				if err := q.Open(ctx); err != nil {
					return err
				}
				for all && q.HasNextPage() {
					ok, err := q.FetchNextPage(ctx)
					if err != nil {
						return err
					}
					if !ok {
						break
					}
				}

				msgs := q.Messages()
				out := cmd.OutOrStdout()
				if g.json {
					return outputJSON(out, msgs)
				}
				printThread(out, msgs)
				if !all && q.HasNextPage() {
					fmt.Fprintln(out, "(older messages available, use --all)")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "phone number ID (required)")
	cmd.Flags().StringVar(&participant, "participant", "", "participant phone number (required)")
	cmd.Flags().BoolVar(&all, "all", false, "read every page")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}

func printThread(w io.Writer, msgs []openphone.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, api.EmptyText)
		return
	}
	for _, m := range msgs {
		sender := m.From
		if m.Direction == openphone.Outgoing {
			sender = "You"
		}
		fmt.Fprintf(w, "[%s] %s %s\n  %s\n", m.CreatedAt.Local().Format(time.DateTime), sender, api.StatusGlyph(m), m.Text)
	}
}

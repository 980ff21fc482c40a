package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/querycache"
	"github.com/spf13/cobra"
)

func newSendCmd(g *globals) *cobra.Command {
	var (
		phone string
		to    string
		text  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an SMS",
		Long:  "Sends an SMS from a phone number and prints the message as stored by the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := querycache.Key{PhoneNumberID: phone, Participant: to}
			return g.withService(cmd, func(ctx context.Context, svc *api.Service) error {
				msg, err := svc.Send(key).Mutate(ctx, text)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.json {
					return outputJSON(out, msg)
				}
				fmt.Fprintf(out, "Sent message %s to %s (%s)\n", msg.ID, to, msg.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "sending phone number ID (required)")
	cmd.Flags().StringVar(&to, "to", "", "recipient phone number (required)")
	cmd.Flags().StringVar(&text, "text", "", "message text (required)")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

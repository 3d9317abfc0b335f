package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hta-chat/internal/domain"
)

func newSendCmd(open opener) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "send TEXT",
		Short: "Send one message",
		Long:  "Sends TEXT to a new conversation, or to an existing one with --session, and prints the reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := open(cmd.Context())
			if err != nil {
				return err
			}
			ex, err := chat.Converse(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ex.Reply.Content)
			fmt.Fprintf(out, "\nsession: %s\n", ex.Session.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "continue the conversation with this id")
	return cmd
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := open(cmd.Context())
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), chat.List(cmd.Context()))
			return nil
		},
	}
}

func newShowCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := open(cmd.Context())
			if err != nil {
				return err
			}
			sess, err := chat.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), sess)
			return nil
		},
	}
}

func newDeleteCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := open(cmd.Context())
			if err != nil {
				return err
			}
			if err := chat.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printSummaries(out io.Writer, summaries []domain.SessionSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED\tPREVIEW")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Title, s.MessageCount, s.Timestamp.Local().Format(time.DateTime), s.Preview)
	}
	w.Flush()
}

func printSession(out io.Writer, sess domain.Session) {
	if sess.ID != "" {
		fmt.Fprintf(out, "# %s (%s)\n\n", sess.Title, sess.ID)
	}
	for _, m := range sess.Messages {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
	}
}

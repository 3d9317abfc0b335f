package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"hta-chat/internal/usecase"
)

func newReplCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively",
		Long: `Reads messages from standard input, one per line.

Commands:
  /new       start a new conversation
  /open ID   continue a stored conversation
  /list      list conversations
  /quit      exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chat, err := open(cmd.Context())
			if err != nil {
				return err
			}
			return runRepl(cmd.Context(), chat, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runRepl(ctx context.Context, chat *usecase.ChatService, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if quit := handleLine(ctx, chat, line, out); quit {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func handleLine(ctx context.Context, chat *usecase.ChatService, line string, out io.Writer) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/new":
		chat.NewChat()
		fmt.Fprintln(out, "Started a new conversation.")
	case "/list":
		printSummaries(out, chat.List(ctx))
	case "/open":
		sess, err := chat.Open(ctx, strings.TrimSpace(arg))
		if err != nil {
			printErr(out, err)
			return false
		}
		printSession(out, sess)
	default:
		ex, err := chat.Send(ctx, line)
		if err != nil {
			printErr(out, err)
			return false
		}
		fmt.Fprintln(out, ex.Reply.Content)
	}
	return false
}

func printErr(out io.Writer, err error) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		fmt.Fprintf(out, "error: %s (%s)\n", ucErr.Code, ucErr.Reason)
		return
	}
	fmt.Fprintln(out, "error:", err)
}

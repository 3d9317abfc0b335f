package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hta-chat/internal/app"
	"hta-chat/internal/config"
	"hta-chat/internal/usecase"
)

// opener builds the chat service a command runs against.
type opener func(ctx context.Context) (*usecase.ChatService, error)

func openFromEnv(ctx context.Context) (*usecase.ChatService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return app.Build(ctx, cfg, logger)
}

func newRootCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with an AI assistant from the terminal",
		Long:          "chat keeps a history of conversations and continues any of them with the configured provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newSendCmd(open))
	cmd.AddCommand(newListCmd(open))
	cmd.AddCommand(newShowCmd(open))
	cmd.AddCommand(newDeleteCmd(open))
	cmd.AddCommand(newReplCmd(open))
	return cmd
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd(openFromEnv)))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/inboxmesh/config"
	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/dispatcher"
	"github.com/hupe1980/inboxmesh/internal/app"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	policy, err := dispatcher.ParsePolicy(a.Config.Dispatcher.ChatPolicy)
	if err != nil {
		return err
	}
	d, err := a.Dispatcher(policy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "inboxmesh "+version+". Type exit to quit.")
	fmt.Fprintln(out)
	return newConsole(cmd.InOrStdin(), out).repl(ctx, d, func() string { return "chat-" + core.NewID() })
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, version)
}

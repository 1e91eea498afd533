package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akernet/logbuddy"
	"github.com/akernet/logbuddy/pkg/serve"
)

var serveExclude []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a loading session over NDJSON on stdin/stdout",
	Long: `Start a session that reads newline-delimited JSON requests from stdin
("load", "cancel", "files", "close") and writes responses and completion
events to stdout. Used by front-ends that present the file list.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringArrayVar(&serveExclude, "exclude", nil, "Drop files matching a gitignore-style pattern (repeatable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := logbuddy.Open(
		logbuddy.WithScratchDir(scratchDir),
		logbuddy.WithExclude(serveExclude...),
		logbuddy.WithLogger(newLogger(cmd.ErrOrStderr())),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	srv := serve.NewServer(session, cmd.InOrStdin(), cmd.OutOrStdout())
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/chrisuehlinger/hostdom/bridge"
	"github.com/chrisuehlinger/hostdom/host"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve PAGE.html",
		Short: "Serve a document over the stream protocol on stdin/stdout",
		Long: `Serve parses PAGE.html and answers line-delimited JSON requests read
from stdin, writing one response per line to stdout. Log messages sent by
scripts are written to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}
			defer f.Close()

			logger := a.logger.Named("serve")
			doc, err := host.Parse(f,
				host.WithLogOutput(cmd.ErrOrStderr()),
				host.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			logger.Info("serving document", zap.String("page", args[0]))
			return bridge.Serve(cmd.Context(), doc, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}

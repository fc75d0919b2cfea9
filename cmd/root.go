// Package cmd implements the hostdom command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chrisuehlinger/hostdom/config"
	"github.com/chrisuehlinger/hostdom/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is the state shared by every subcommand once configuration has
// been loaded.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds the hostdom command tree.
func NewRootCommand() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "hostdom",
		Short:         "Run page scripts against a host-owned document",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./hostdom.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCommand(a), newServeCommand(a), newVersionCommand())
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("host-cmd"); f != nil {
		if err := v.BindPFlag("host.command", f); err != nil {
			return fmt.Errorf("bind host-cmd: %w", err)
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}

	a.v, a.cfg, a.logger = v, cfg, logger
	a.logger.Debug("configuration loaded", zap.String("config", v.ConfigFileUsed()))
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hostdom:", err)
		os.Exit(1)
	}
}

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nstogner/uistream/pkg/config"
)

// logFileAnnotation names the log file a command uses when none is
// configured, for commands that own the terminal.
const logFileAnnotation = "uistream/log-file"

// app carries what the root command resolves for its subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	closer  io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "uistream",
		Short:        "UI message streams for agent runs",
		Long:         `Translate agent generation chunks into Vercel AI SDK UI message streams and serve them over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./uistream.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	a.v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	a.v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(
		newServeCmd(a),
		newConvertCmd(a),
		newNormalizeCmd(),
		newChatCmd(a),
	)
	return rootCmd
}

// setup loads the configuration and installs the default logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = cmd.Annotations[logFileAnnotation]
	}
	logger, closer, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg, a.logger, a.closer = cfg, logger, closer
	return nil
}

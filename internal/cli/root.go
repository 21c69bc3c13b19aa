package cli

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wesleyorama2/vuload/internal/load"
)

// NewRootCmd builds the vuload command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "vuload",
		Short:   "A virtual-user HTTP load generator",
		Version: load.Version,
		Long: `vuload drives a pool of virtual users against HTTP endpoints following a
load profile (a constant number of VUs, or linear stages), evaluates checks
against every response and prints a k6-style summary, optionally writing
HTML and JSON reports.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command. A non-nil error means the test could not be
// started; failed requests and checks never produce one.
func Execute() error {
	return NewRootCmd().Execute()
}

// newLogger builds the diagnostic logger. It writes to w (stderr) so that
// stdout carries only progress and the summary.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

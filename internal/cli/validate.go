package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/vuload/internal/load/check"
	"github.com/wesleyorama2/vuload/internal/load/config"
	"github.com/wesleyorama2/vuload/internal/load/profile"
	"github.com/wesleyorama2/vuload/internal/load/report"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a configuration file and print the compiled load profile",
		Args:  cobra.ExactArgs(1),
		RunE:  validateConfig,
	}
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	config.ApplyDefaults(cfg)

	timeline, err := profile.Compile(cfg.ToProfile())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := cfg.Name
	if name == "" {
		name = args[0]
	}
	fmt.Fprintf(out, "%s: configuration is valid\n\n", name)

	fmt.Fprintf(out, "load profile (%s, up to %d VUs):\n",
		report.FormatDuration(timeline.Duration()), timeline.MaxTarget())
	for _, bp := range timeline.Breakpoints() {
		fmt.Fprintf(out, "  %8s  %d VUs\n", report.FormatDuration(bp.Offset), bp.Target)
	}
	if sleep := cfg.Sleep(); sleep > 0 {
		fmt.Fprintf(out, "  sleep %s between iterations\n", sleep)
	}
	if cfg.Options.RPS > 0 {
		fmt.Fprintf(out, "  at most %g requests/s\n", cfg.Options.RPS)
	}

	fmt.Fprintln(out, "\nrequests:")
	for _, req := range cfg.Requests {
		fmt.Fprintf(out, "  %s %s\n", req.Method, cfg.ResolveURL(req))
		checks, err := check.Build(req.Checks)
		if err != nil {
			return err
		}
		if names := checks.Names(); len(names) > 0 {
			fmt.Fprintf(out, "    checks: %s\n", strings.Join(names, ", "))
		}
	}
	return nil
}

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/vuload/internal/load/check"
	"github.com/wesleyorama2/vuload/internal/load/config"
	"github.com/wesleyorama2/vuload/internal/load/engine"
	"github.com/wesleyorama2/vuload/internal/load/output"
	"github.com/wesleyorama2/vuload/internal/load/report"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Run a load test from a configuration file or flags",
		Long: `Run a load test and print a summary when it finishes.

Config file mode:
  vuload run test.yaml
  vuload run --config test.yaml --html report/test.html

Quick CLI mode (single GET request):
  vuload run --url https://api.example.com/usuarios --vus 10 --duration 30s --sleep 1

Ramping stages:
  vuload run --url https://api.example.com/usuarios \
    --stages "30s:10,4m:10,30s:0" \
    --header "accept:application/json" --check-status 200

The exit code is 0 whenever the test ran, even if requests or checks failed,
and 1 when the configuration or load profile is invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLoadTest,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	cmd.Flags().String("url", "", "URL to test (alternative to --config)")
	cmd.Flags().Int("vus", 0, "Number of virtual users for a constant profile (default 10)")
	cmd.Flags().String("duration", "", "Test duration for a constant profile, e.g. 30s or 5m (default 30s)")
	cmd.Flags().String("stages", "", "Ramping stages as 'duration:target,...', e.g. '30s:10,1m:0'")
	cmd.Flags().Float64("sleep", 0, "Seconds each VU pauses between iterations")
	cmd.Flags().Float64("rps", 0, "Cap on requests per second across all VUs (0 = unlimited)")
	cmd.Flags().StringArrayP("header", "H", nil, "Request header as 'name:value' (repeatable)")
	cmd.Flags().Int("check-status", 200, "Expected status code check (0 disables)")
	cmd.Flags().Duration("timeout", 0, "Request timeout (default 30s)")
	cmd.Flags().String("graceful-stop", "", "How long in-flight iterations may run after the profile ends (default 30s)")
	cmd.Flags().String("html", "", "Write an HTML report to this path")
	cmd.Flags().String("json", "", "Write a JSON report to this path")
	cmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, show only the final summary")
	cmd.Flags().BoolP("verbose", "v", false, "Log run diagnostics to stderr")
	cmd.Flags().Bool("no-color", false, "Disable colored output")

	return cmd
}

// runLoadTest is the run command. Only configuration problems are returned
// as errors.
func runLoadTest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	quiet, _ := cmd.Flags().GetBool("quiet")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noColor, _ := cmd.Flags().GetBool("no-color")

	cfg, err := loadTestConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := newLogger(errOut, verbose)
	defer func() { _ = logger.Sync() }()

	var console *output.Console
	eng, err := engine.New(cfg,
		engine.WithLogger(logger),
		engine.WithOnTick(func(p engine.Progress) {
			console.Update(output.StatsFromProgress(p))
		}))
	if err != nil {
		return err
	}

	console = output.NewConsole(output.Config{
		TestName: cfg.Name,
		RunID:    eng.RunID(),
		Planned:  eng.Timeline().Duration(),
		MaxVUs:   eng.Timeline().MaxTarget(),
		Writer:   out,
		Quiet:    quiet,
		NoColor:  noColor,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.PrintHeader()
	summary, err := eng.Run(ctx)
	console.Finish()
	if err != nil {
		return err
	}

	if err := report.WriteText(out, summary, report.TextOptions{NoColor: noColor || !console.IsTTY()}); err != nil {
		fmt.Fprintf(errOut, "Error writing summary: %v\n", err)
	}

	writeArtifacts(out, errOut, cfg.Report, summary, quiet)
	return nil
}

// writeArtifacts writes the configured reports. Failures are reported but
// do not change the outcome of the run.
func writeArtifacts(out, errOut io.Writer, rc config.ReportConfig, summary *report.Summary, quiet bool) {
	artifacts := []struct {
		path   string
		render report.RenderFunc
	}{
		{rc.HTML, report.HTML},
		{rc.JSON, report.JSON},
	}
	for _, a := range artifacts {
		if a.path == "" {
			continue
		}
		if err := report.WriteArtifact(a.path, a.render, summary); err != nil {
			fmt.Fprintf(errOut, "Error writing report: %v\n", err)
			continue
		}
		if !quiet {
			fmt.Fprintf(out, "Report: %s\n", a.path)
		}
	}
}

// loadTestConfig reads the configuration file, or builds one from flags.
// --html and --json override the report paths of a file.
func loadTestConfig(cmd *cobra.Command, args []string) (*config.TestConfig, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" && len(args) == 1 {
		configFile = args[0]
	}
	url, _ := cmd.Flags().GetString("url")

	var cfg *config.TestConfig
	var err error
	switch {
	case configFile != "" && url != "":
		return nil, fmt.Errorf("--config and --url cannot be combined")
	case configFile != "":
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
	case url != "":
		cfg, err = buildConfigFromFlags(cmd, url)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("either a config file or --url is required")
	}

	if html, _ := cmd.Flags().GetString("html"); html != "" {
		cfg.Report.HTML = html
	}
	if json, _ := cmd.Flags().GetString("json"); json != "" {
		cfg.Report.JSON = json
	}
	return cfg, nil
}

// buildConfigFromFlags builds a single-request TestConfig from CLI flags.
func buildConfigFromFlags(cmd *cobra.Command, url string) (*config.TestConfig, error) {
	vus, _ := cmd.Flags().GetInt("vus")
	duration, _ := cmd.Flags().GetString("duration")
	stages, _ := cmd.Flags().GetString("stages")
	sleep, _ := cmd.Flags().GetFloat64("sleep")
	rps, _ := cmd.Flags().GetFloat64("rps")
	headers, _ := cmd.Flags().GetStringArray("header")
	checkStatus, _ := cmd.Flags().GetInt("check-status")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	gracefulStop, _ := cmd.Flags().GetString("graceful-stop")

	cfg := &config.TestConfig{
		Name:        "CLI Test",
		Description: fmt.Sprintf("Test generated from CLI flags for %s", url),
		Settings: config.GlobalSettings{
			Timeout: config.Duration(timeout),
		},
		Options: config.Options{
			SleepSeconds: sleep,
			RPS:          rps,
		},
		Requests: []config.RequestConfig{{URL: url}},
	}

	if stages != "" {
		parsed, err := parseStages(stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		cfg.Options.Stages = parsed
		cfg.Options.VUs = vus
		if duration != "" {
			d, err := config.ParseDurationString(duration)
			if err != nil {
				return nil, fmt.Errorf("invalid duration: %w", err)
			}
			cfg.Options.Duration = config.Duration(d)
		}
	} else {
		if vus == 0 {
			vus = 10
		}
		if duration == "" {
			duration = "30s"
		}
		d, err := config.ParseDurationString(duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %w", err)
		}
		cfg.Options.VUs = vus
		cfg.Options.Duration = config.Duration(d)
	}

	if gracefulStop != "" {
		d, err := config.ParseDurationString(gracefulStop)
		if err != nil {
			return nil, fmt.Errorf("invalid graceful stop: %w", err)
		}
		cfg.Options.GracefulStop = config.Duration(d)
	}

	parsedHeaders, err := parseHeaders(headers)
	if err != nil {
		return nil, err
	}
	cfg.Requests[0].Headers = parsedHeaders

	if checkStatus > 0 {
		cfg.Requests[0].Checks = []check.Spec{{
			Name:  fmt.Sprintf("status was %d", checkStatus),
			Type:  "status",
			Value: strconv.Itoa(checkStatus),
		}}
	}

	return cfg, nil
}

// parseStages parses stages from CLI format "30s:10,2m:10,30s:0".
func parseStages(stagesStr string) ([]config.StageConfig, error) {
	var stages []config.StageConfig

	for i, part := range strings.Split(stagesStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}
		durationStr := strings.TrimSpace(part[:colonIdx])
		targetStr := strings.TrimSpace(part[colonIdx+1:])

		d, err := config.ParseDurationString(durationStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}
		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, config.StageConfig{
			Duration: config.Duration(d),
			Target:   target,
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	return stages, nil
}

// parseHeaders parses "name:value" pairs.
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, h := range pairs {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'name:value'", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

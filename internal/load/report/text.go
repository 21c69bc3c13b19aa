package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/wesleyorama2/vuload/internal/load/metrics"
)

// TextOptions controls the plain-text summary.
type TextOptions struct {
	// NoColor disables ANSI colors
	NoColor bool

	// Indent is prepended to every line (default: 5 spaces)
	Indent string
}

const metricNameWidth = 32

type palette struct {
	pass, fail, dim, bold *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		pass: color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		dim:  color.New(color.FgHiBlack),
		bold: color.New(color.Bold),
	}
	if noColor {
		p.pass.DisableColor()
		p.fail.DisableColor()
		p.dim.DisableColor()
		p.bold.DisableColor()
	}
	return p
}

// WriteText writes a k6-style end-of-test summary: per-check outcomes followed
// by the aggregate metrics, one per line.
func WriteText(w io.Writer, s *Summary, opts TextOptions) error {
	if s == nil || s.Metrics == nil {
		return fmt.Errorf("summary has no metrics")
	}
	indent := opts.Indent
	if indent == "" {
		indent = "     "
	}
	p := newPalette(opts.NoColor)
	m := s.Metrics

	var sb strings.Builder
	line := func(format string, args ...interface{}) {
		sb.WriteString(indent)
		sb.WriteString(fmt.Sprintf(format, args...))
		sb.WriteByte('\n')
	}

	sb.WriteByte('\n')
	title := s.Name
	if title == "" {
		title = "load test"
	}
	line("%s", p.bold.Sprint(title))
	line("%s", p.dim.Sprintf("run %s  %s elapsed of %s planned", s.RunID, FormatDuration(s.Elapsed()), FormatDuration(s.Planned)))
	if s.Interrupted {
		line("%s", p.fail.Sprint("run interrupted before the load profile finished"))
	}
	sb.WriteByte('\n')

	if len(m.Checks) > 0 {
		for _, c := range m.Checks {
			if c.Fails == 0 {
				line("%s %s", p.pass.Sprint("✓"), c.Name)
				continue
			}
			line("%s %s", p.fail.Sprint("✗"), c.Name)
			line(" %s  %s %s / %s",
				p.dim.Sprint("↳"),
				FormatPercent(c.PassRate()),
				p.pass.Sprintf("✓ %d", c.Passes),
				p.fail.Sprintf("✗ %d", c.Fails))
		}
		sb.WriteByte('\n')

		checksTotal := m.ChecksPassed + m.ChecksFailed
		checkColor := p.pass
		if m.ChecksFailed > 0 {
			checkColor = p.fail
		}
		line("%s %s %s %s",
			metricName("checks", p),
			checkColor.Sprintf("%-8s", FormatPercent(ratio(m.ChecksPassed, checksTotal))),
			p.pass.Sprintf("✓ %-8d", m.ChecksPassed),
			p.fail.Sprintf("✗ %d", m.ChecksFailed))
	}

	elapsed := s.Elapsed().Seconds()
	perSecond := func(n int64) float64 {
		if elapsed <= 0 {
			return 0
		}
		return float64(n) / elapsed
	}

	line("%s %-8s %s/s", metricName("data_received", p), FormatBytes(m.BytesReceived),
		FormatBytes(int64(perSecond(m.BytesReceived))))
	line("%s %s", metricName("http_req_duration", p), latencyLine(m.Latency))

	failedColor := p.pass
	if m.RequestsFailed > 0 {
		failedColor = p.fail
	}
	line("%s %s %s %s",
		metricName("http_req_failed", p),
		failedColor.Sprintf("%-8s", FormatPercent(m.ErrorRate)),
		p.fail.Sprintf("✓ %-8d", m.RequestsFailed),
		p.pass.Sprintf("✗ %d", m.RequestsTotal-m.RequestsFailed-m.Interrupted))
	line("%s %-8d %.2f/s", metricName("http_reqs", p), m.RequestsTotal, m.RPS)
	if m.Interrupted > 0 {
		line("%s %d", metricName("http_reqs_interrupted", p), m.Interrupted)
	}
	line("%s %-8d %.2f/s", metricName("iterations", p), m.Iterations, s.IterationRate())
	line("%s %d", metricName("vus_max", p), m.MaxVUs)

	if len(m.Requests) > 1 {
		sb.WriteByte('\n')
		names := make([]string, 0, len(m.Requests))
		for name := range m.Requests {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			line("%s %s", metricName("{ name:"+name+" }", p), latencyLine(m.Requests[name]))
		}
	}
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	return err
}

// metricName pads a metric name with dots like k6 does.
func metricName(name string, p palette) string {
	dots := metricNameWidth - len([]rune(name))
	if dots < 3 {
		dots = 3
	}
	return name + p.dim.Sprint(strings.Repeat(".", dots)) + ":"
}

func latencyLine(l metrics.LatencyStats) string {
	return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s p(99)=%s",
		FormatLatency(l.Mean), FormatLatency(l.Min), FormatLatency(l.P50), FormatLatency(l.Max),
		FormatLatency(l.P90), FormatLatency(l.P95), FormatLatency(l.P99))
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

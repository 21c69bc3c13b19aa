package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/vuload/internal/load/metrics"
)

const (
	chartWidth  = 960
	chartHeight = 240
)

// htmlData is the view model for the HTML template.
type htmlData struct {
	*Summary
	Requests     []namedLatency
	ActivePoints string
	TargetPoints string
	ChartWidth   int
	ChartHeight  int
	ChartMaxVUs  int
	GeneratedAt  time.Time
}

type namedLatency struct {
	Name    string
	Latency metrics.LatencyStats
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDuration": FormatDuration,
	"formatNumber":   FormatNumber,
	"formatLatency":  FormatLatency,
	"formatBytes":    FormatBytes,
	"formatPercent":  FormatPercent,
}).Parse(htmlTemplate))

// HTML renders a standalone HTML report with no external resources.
func HTML(s *Summary) ([]byte, error) {
	if s == nil || s.Metrics == nil {
		return nil, fmt.Errorf("summary has no metrics")
	}

	data := htmlData{
		Summary:     s,
		ChartWidth:  chartWidth,
		ChartHeight: chartHeight,
		GeneratedAt: time.Now(),
	}

	names := make([]string, 0, len(s.Metrics.Requests))
	for name := range s.Metrics.Requests {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data.Requests = append(data.Requests, namedLatency{Name: name, Latency: s.Metrics.Requests[name]})
	}

	data.ActivePoints, data.TargetPoints, data.ChartMaxVUs = vuChart(s.Metrics.TimeSeries)

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// vuChart converts the time series into SVG polyline point lists for active
// and target VUs, scaled to the chart area.
func vuChart(series []metrics.Sample) (active, target string, maxVUs int) {
	if len(series) == 0 {
		return "", "", 0
	}

	last := series[len(series)-1].Elapsed
	for _, p := range series {
		if p.ActiveVUs > maxVUs {
			maxVUs = p.ActiveVUs
		}
		if p.TargetVUs > maxVUs {
			maxVUs = p.TargetVUs
		}
	}
	if maxVUs == 0 {
		maxVUs = 1
	}

	var a, t strings.Builder
	for _, p := range series {
		x := 0.0
		if last > 0 {
			x = float64(p.Elapsed) / float64(last) * chartWidth
		}
		writePoint(&a, x, p.ActiveVUs, maxVUs)
		writePoint(&t, x, p.TargetVUs, maxVUs)
	}
	return a.String(), t.String(), maxVUs
}

func writePoint(sb *strings.Builder, x float64, vus, maxVUs int) {
	y := chartHeight - float64(vus)/float64(maxVUs)*chartHeight
	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteString(strconv.FormatFloat(x, 'f', 1, 64))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatFloat(y, 'f', 1, 64))
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{if .Name}}{{.Name}}{{else}}Load test{{end}} - vuload report</title>
<style>
  :root { --bg: #f8fafc; --card: #fff; --text: #1e293b; --muted: #64748b; --border: #e2e8f0; --ok: #16a34a; --bad: #dc2626; --accent: #3b82f6; }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: var(--bg); color: var(--text); line-height: 1.5; }
  .container { max-width: 1100px; margin: 0 auto; padding: 2rem; }
  header { margin-bottom: 1.5rem; }
  header h1 { font-size: 1.6rem; }
  header p { color: var(--muted); font-size: .9rem; }
  .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr)); gap: 1rem; margin-bottom: 1.5rem; }
  .card { background: var(--card); border: 1px solid var(--border); border-radius: 8px; padding: 1rem; }
  .card .label { color: var(--muted); font-size: .8rem; text-transform: uppercase; letter-spacing: .04em; }
  .card .value { font-size: 1.5rem; font-weight: 600; }
  section { background: var(--card); border: 1px solid var(--border); border-radius: 8px; padding: 1.25rem; margin-bottom: 1.5rem; }
  section h2 { font-size: 1.1rem; margin-bottom: .75rem; }
  table { width: 100%; border-collapse: collapse; font-size: .9rem; }
  th, td { text-align: left; padding: .45rem .6rem; border-bottom: 1px solid var(--border); }
  th { color: var(--muted); font-weight: 500; }
  .ok { color: var(--ok); }
  .bad { color: var(--bad); }
  .warning { background: #fef2f2; border-color: #fecaca; color: var(--bad); }
  svg { width: 100%; height: auto; background: var(--bg); border-radius: 4px; }
  .legend span { margin-right: 1rem; font-size: .85rem; }
</style>
</head>
<body>
<div class="container">
  <header>
    <h1>{{if .Name}}{{.Name}}{{else}}Load test{{end}}</h1>
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    <p>Run {{.RunID}} &middot; started {{.StartTime.Format "2006-01-02 15:04:05 MST"}} &middot; {{formatDuration .Elapsed}} elapsed of {{formatDuration .Planned}} planned</p>
  </header>

  {{if .Interrupted}}<section class="warning">The run was interrupted before the load profile finished.</section>{{end}}

  {{with .Metrics}}
  <div class="cards">
    <div class="card"><div class="label">Requests</div><div class="value">{{formatNumber .RequestsTotal}}</div></div>
    <div class="card"><div class="label">Failed</div><div class="value {{if .RequestsFailed}}bad{{else}}ok{{end}}">{{formatPercent .ErrorRate}}</div></div>
    <div class="card"><div class="label">Checks passed</div><div class="value {{if .ChecksFailed}}bad{{else}}ok{{end}}">{{formatPercent .CheckPassRate}}</div></div>
    <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .RPS}}/s</div></div>
    <div class="card"><div class="label">p95 latency</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
    <div class="card"><div class="label">Max VUs</div><div class="value">{{.MaxVUs}}</div></div>
  </div>
  {{end}}

  {{if .Metrics.Checks}}
  <section>
    <h2>Checks</h2>
    <table>
      <thead><tr><th>Check</th><th>Passes</th><th>Fails</th><th>Pass rate</th></tr></thead>
      <tbody>
      {{range .Metrics.Checks}}
        <tr>
          <td>{{if .Fails}}<span class="bad">&#10007;</span>{{else}}<span class="ok">&#10003;</span>{{end}} {{.Name}}</td>
          <td>{{formatNumber .Passes}}</td>
          <td>{{formatNumber .Fails}}</td>
          <td>{{formatPercent .PassRate}}</td>
        </tr>
      {{end}}
      </tbody>
    </table>
  </section>
  {{end}}

  <section>
    <h2>Request duration</h2>
    <table>
      <thead><tr><th>Request</th><th>Count</th><th>avg</th><th>min</th><th>med</th><th>p90</th><th>p95</th><th>p99</th><th>max</th></tr></thead>
      <tbody>
      {{with .Metrics.Latency}}
        <tr><td><strong>all</strong></td><td>{{formatNumber .Count}}</td><td>{{formatLatency .Mean}}</td><td>{{formatLatency .Min}}</td><td>{{formatLatency .P50}}</td><td>{{formatLatency .P90}}</td><td>{{formatLatency .P95}}</td><td>{{formatLatency .P99}}</td><td>{{formatLatency .Max}}</td></tr>
      {{end}}
      {{range .Requests}}
        <tr><td>{{.Name}}</td>{{with .Latency}}<td>{{formatNumber .Count}}</td><td>{{formatLatency .Mean}}</td><td>{{formatLatency .Min}}</td><td>{{formatLatency .P50}}</td><td>{{formatLatency .P90}}</td><td>{{formatLatency .P95}}</td><td>{{formatLatency .P99}}</td><td>{{formatLatency .Max}}</td>{{end}}</tr>
      {{end}}
      </tbody>
    </table>
  </section>

  {{if .ActivePoints}}
  <section>
    <h2>Virtual users</h2>
    <p class="legend"><span style="color: var(--accent)">&#9632; active</span><span style="color: var(--muted)">&#9632; target</span><span>peak scale: {{.ChartMaxVUs}} VUs</span></p>
    <svg viewBox="0 0 {{.ChartWidth}} {{.ChartHeight}}" preserveAspectRatio="none" role="img" aria-label="active and target virtual users over time">
      <polyline fill="none" stroke="#94a3b8" stroke-width="2" stroke-dasharray="6 4" points="{{.TargetPoints}}"/>
      <polyline fill="none" stroke="#3b82f6" stroke-width="2" points="{{.ActivePoints}}"/>
    </svg>
  </section>
  {{end}}

  <section>
    <h2>Load profile</h2>
    <table>
      <thead><tr><th>Offset</th><th>Target VUs</th></tr></thead>
      <tbody>
      {{range .Breakpoints}}<tr><td>{{formatDuration .Offset}}</td><td>{{.Target}}</td></tr>{{end}}
      </tbody>
    </table>
  </section>

  {{with .Metrics}}
  <section>
    <h2>Totals</h2>
    <table>
      <tbody>
        <tr><th>Iterations</th><td>{{formatNumber .Iterations}}</td></tr>
        <tr><th>Data received</th><td>{{formatBytes .BytesReceived}}</td></tr>
        <tr><th>Failed requests</th><td>{{formatNumber .RequestsFailed}} of {{formatNumber .RequestsTotal}}</td></tr>
        {{if .Interrupted}}<tr><th>Interrupted requests</th><td>{{formatNumber .Interrupted}}</td></tr>{{end}}
      </tbody>
    </table>
  </section>
  {{end}}

  <p style="color: var(--muted); font-size: .8rem">Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}} by vuload</p>
</div>
</body>
</html>
`

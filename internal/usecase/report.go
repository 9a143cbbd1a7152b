package usecase

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
	"github.com/fairyhunter13/ai-orchestrator/pkg/textx"
)

const (
	reportTitle   = "AI Orchestrator Diagnostic Report"
	cellMaxLength = 80
	// tableColumnSep is the vertical rule of table.StyleRounded.
	tableColumnSep = "│"
)

var reportHeaders = []string{"ID", "Name", "URL", "Status", "Latency", "Version", "Error"}

type systemInfo struct {
	ServiceName string
	Version     string
	GoVersion   string
	Platform    string
}

func newSystemInfo(service, version string) systemInfo {
	if service == "" {
		service = "ai-orchestrator"
	}
	if version == "" {
		version = "dev"
	}
	return systemInfo{
		ServiceName: service,
		Version:     version,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// reportSnapshot is a consistent view of the monitor used by both exports.
type reportSnapshot struct {
	generated time.Time
	services  []domain.AIServiceStatus
	logs      []domain.DiagnosticLogEntry
	summary   domain.DiagnosticsSummary
}

func (m *Monitor) snapshot() reportSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := make([]domain.DiagnosticLogEntry, len(m.logs))
	copy(logs, m.logs)
	return reportSnapshot{
		generated: m.now(),
		services:  m.copyServicesLocked(),
		logs:      logs,
		summary:   domain.Summarize(m.services),
	}
}

// ExportReport renders the plain-text diagnostic report. The output depends
// only on monitor state and the injected clock.
func (m *Monitor) ExportReport() string {
	snap := m.snapshot()
	var b strings.Builder
	b.WriteString(reportTitle + "\n")
	b.WriteString(strings.Repeat("=", len(reportTitle)) + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", snap.generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Service:   %s\n", m.info.ServiceName)
	fmt.Fprintf(&b, "Version:   %s\n", m.info.Version)
	fmt.Fprintf(&b, "Go:        %s\n", m.info.GoVersion)
	fmt.Fprintf(&b, "Platform:  %s\n\n", m.info.Platform)

	b.WriteString("Services\n")
	b.WriteString(renderStatusTable(snap.services))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Summary: %s\n\n", FormatSummary(snap.summary))

	fmt.Fprintf(&b, "Logs (%d)\n", len(snap.logs))
	for _, e := range snap.logs {
		b.WriteString(formatLogLine(e) + "\n")
	}
	return b.String()
}

func renderStatusTable(services []domain.AIServiceStatus) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(reportHeaders))
	for i, h := range reportHeaders {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, s := range statusRows(services) {
		r := make(table.Row, len(s))
		for i, c := range s {
			r[i] = c
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func statusRows(services []domain.AIServiceStatus) [][]string {
	rows := make([][]string, 0, len(services))
	for _, s := range services {
		latency := "-"
		if s.Status == domain.ServiceOnline {
			latency = fmt.Sprintf("%d ms", s.Latency.Milliseconds())
		}
		rows = append(rows, []string{
			cell(s.ID), cell(s.Name), cell(s.URL), string(s.Status),
			latency, cell(s.Version), cell(s.Error),
		})
	}
	return rows
}

// cell flattens a value so it renders on one table line.
func cell(s string) string {
	s = strings.ReplaceAll(s, tableColumnSep, "|")
	s = textx.Snippet(s, cellMaxLength)
	if s == "" {
		return "-"
	}
	return s
}

func formatLogLine(e domain.DiagnosticLogEntry) string {
	line := fmt.Sprintf("[%s] %-7s %s: %s",
		e.Timestamp.UTC().Format(time.RFC3339), strings.ToUpper(string(e.Level)), e.Service, e.Message)
	if e.Details != "" {
		line += " (" + textx.Snippet(e.Details, 200) + ")"
	}
	return line
}

// ParseReportCounts re-reads the service table of a report produced by
// ExportReport and counts rows per status.
func ParseReportCounts(report string) (domain.DiagnosticsSummary, error) {
	var s domain.DiagnosticsSummary
	statusCol := -1
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, tableColumnSep) {
			continue
		}
		cells := strings.Split(strings.Trim(line, tableColumnSep), tableColumnSep)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if statusCol < 0 {
			for i, c := range cells {
				if strings.EqualFold(c, "status") {
					statusCol = i
				}
			}
			if statusCol < 0 {
				return s, fmt.Errorf("%w: report table has no status column", domain.ErrInvalidArgument)
			}
			continue
		}
		if statusCol >= len(cells) {
			continue
		}
		switch domain.ServiceState(cells[statusCol]) {
		case domain.ServiceOnline:
			s.Online++
		case domain.ServiceOffline:
			s.Offline++
		case domain.ServiceError:
			s.Error++
		}
	}
	if statusCol < 0 {
		return s, fmt.Errorf("%w: report has no service table", domain.ErrInvalidArgument)
	}
	return s, nil
}

// ExportHTML renders the report as Markdown and converts it with goldmark.
func (m *Monitor) ExportHTML() (string, error) {
	snap := m.snapshot()
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", reportTitle)
	fmt.Fprintf(&md, "- **Generated:** %s\n", snap.generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&md, "- **Service:** %s\n", mdEscape(m.info.ServiceName))
	fmt.Fprintf(&md, "- **Version:** %s\n", mdEscape(m.info.Version))
	fmt.Fprintf(&md, "- **Go:** %s\n", m.info.GoVersion)
	fmt.Fprintf(&md, "- **Platform:** %s\n\n", m.info.Platform)

	md.WriteString("## Services\n\n")
	md.WriteString("| " + strings.Join(reportHeaders, " | ") + " |\n")
	md.WriteString("|" + strings.Repeat(" --- |", len(reportHeaders)) + "\n")
	for _, row := range statusRows(snap.services) {
		for i := range row {
			row[i] = mdEscape(row[i])
		}
		md.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	fmt.Fprintf(&md, "\n**Summary:** %s\n\n", FormatSummary(snap.summary))

	fmt.Fprintf(&md, "## Logs (%d)\n\n", len(snap.logs))
	for _, e := range snap.logs {
		md.WriteString("- `" + strings.ReplaceAll(formatLogLine(e), "`", "'") + "`\n")
	}

	var out bytes.Buffer
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := gm.Convert([]byte(md.String()), &out); err != nil {
		return "", fmt.Errorf("op=diagnostics.export_html: %w", err)
	}
	return out.String(), nil
}

var mdReplacer = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "<", "&lt;", ">", "&gt;")

func mdEscape(s string) string { return mdReplacer.Replace(s) }

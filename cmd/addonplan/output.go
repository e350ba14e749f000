package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"addonplan/internal/models"
	"addonplan/internal/services"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// render writes v as JSON or YAML, or calls table for the human format
func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		// round-trip through JSON so YAML keys match the JSON field names
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		table(w)
		return nil
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = text.FgHiCyan.Sprint(c)
	}
	return row
}

func installedMark(installed bool) string {
	if installed {
		return text.FgGreen.Sprint("yes")
	}
	return "no"
}

func printTools(w io.Writer, statuses []models.ToolStatus) {
	t := newTable(w)
	t.AppendHeader(header("CATEGORY", "KEY", "NAME", "CHART", "NAMESPACE", "INSTALLED"))
	for _, s := range statuses {
		t.AppendRow(table.Row{s.Category, s.Tool.Key, s.Tool.Name, s.Tool.ChartRef(), s.Tool.Namespace, installedMark(s.Installed)})
	}
	t.Render()
}

func printPlan(w io.Writer, plan *models.Plan) {
	t := newTable(w)
	t.AppendHeader(header("FIELD", "VALUE"))
	t.AppendRows([]table.Row{
		{"Goal", plan.Goal},
		{"Cluster", fmt.Sprintf("%d nodes, %d cpu, %s / %s", plan.Summary.Nodes, plan.Summary.TotalCPU,
			strings.Join(plan.Summary.Arches, ","), strings.Join(plan.Summary.OSes, ","))},
		{"Profile", plan.Profile},
		{"Tool", fmt.Sprintf("%s (%s)", plan.Tool.Name, plan.Decision.ChartKey)},
		{"Chart", plan.Tool.ChartRef()},
		{"Engine", plan.Decision.Engine},
		{"Confidence", fmt.Sprintf("%.2f", plan.Decision.Confidence)},
		{"Reason", plan.Decision.Reason},
	})
	t.Render()
}

func printResult(w io.Writer, verb string, result *models.InstallResult) {
	if result.Plan != nil {
		printPlan(w, result.Plan)
	}
	if result.DryRun {
		fmt.Fprintf(w, "%s %s (dry run), would run:\n", text.FgYellow.Sprint(verb), result.Tool.Key)
		for _, argv := range result.Commands {
			fmt.Fprintf(w, "  %s\n", strings.Join(argv, " "))
		}
		return
	}
	fmt.Fprintf(w, "%s %s as release %s in namespace %s\n", text.FgGreen.Sprint(verb), result.Tool.Key, result.Release, result.Namespace)
}

func printStatus(w io.Writer, status *models.ToolStatus) {
	t := newTable(w)
	t.AppendHeader(header("FIELD", "VALUE"))
	t.AppendRow(table.Row{"Tool", fmt.Sprintf("%s (%s)", status.Tool.Name, status.Tool.Key)})
	t.AppendRow(table.Row{"Category", status.Category})
	t.AppendRow(table.Row{"Installed", installedMark(status.Installed)})
	if status.LastEvent != nil {
		e := status.LastEvent
		t.AppendRow(table.Row{"Last action", fmt.Sprintf("%s %s ago", e.LastAction, services.FormatAge(e.Timestamp))})
		t.AppendRow(table.Row{"Release", fmt.Sprintf("%s/%s", e.Namespace, e.Release)})
	}
	if status.StatusError != "" {
		t.AppendRow(table.Row{"Helm status", text.FgRed.Sprint(status.StatusError)})
	}
	t.Render()

	if status.ReleaseStatus != "" {
		fmt.Fprintln(w, status.ReleaseStatus)
	}
}

func printHistory(w io.Writer, events []models.InstallEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, text.FgYellow.Sprint("No ledger events"))
		return
	}

	t := newTable(w)
	t.AppendHeader(header("TIME", "AGE", "ACTION", "NAMESPACE", "RELEASE", "CHART"))
	for _, e := range events {
		chart := "-"
		if e.Chart != nil {
			chart = *e.Chart
		}
		t.AppendRow(table.Row{e.Timestamp.Format("2006-01-02 15:04:05"), services.FormatAge(e.Timestamp), e.LastAction, e.Namespace, e.Release, chart})
	}
	t.Render()
}

// printRawJSON writes helm's JSON output under a title, indented when it parses
func printRawJSON(w io.Writer, title, raw string) {
	fmt.Fprintf(w, "\n%s:\n", text.FgHiCyan.Sprint(title))
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		fmt.Fprintln(w, raw)
		return
	}
	fmt.Fprintln(w, buf.String())
}

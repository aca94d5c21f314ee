// Package report renders pipeline run reports as Markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/docgate/internal/pipeline"
)

// maxDiagnostics bounds the diagnostic lines listed per step.
const maxDiagnostics = 50

var titleCaser = cases.Title(language.English)

// StepTitle turns a step name such as build_verify into "Build Verify".
func StepTitle(name pipeline.StepName) string {
	return titleCaser.String(strings.ReplaceAll(string(name), "_", " "))
}

var statusMarks = map[pipeline.StepStatus]string{
	pipeline.StatusPassed:   "✅",
	pipeline.StatusFailed:   "❌",
	pipeline.StatusCanceled: "⏹",
	pipeline.StatusNotRun:   "⏭",
}

// Markdown renders a run report.
func Markdown(r *pipeline.RunReport) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- **Outcome:** %s\n", titleCaser.String(string(r.Outcome)))
	fmt.Fprintf(&b, "- **Trigger:** %s", r.Event.Kind)
	if r.Event.Branch != "" {
		fmt.Fprintf(&b, " on `%s`", r.Event.Branch)
	}
	b.WriteString("\n")
	if r.Event.Repository != "" {
		fmt.Fprintf(&b, "- **Repository:** %s\n", r.Event.Repository)
	}
	if r.Revision != "" {
		fmt.Fprintf(&b, "- **Revision:** `%s`\n", r.Revision)
	}
	fmt.Fprintf(&b, "- **Started:** %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", r.Duration().Round(time.Millisecond))
	}

	b.WriteString("\n## Steps\n\n| Step | Status | Exit code | Duration |\n|---|---|---|---|\n")
	for _, st := range r.Steps {
		dur := "-"
		if st.Status != pipeline.StatusNotRun && st.Status != pipeline.StatusPending {
			dur = st.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(&b, "| %s | %s %s | %d | %s |\n", StepTitle(st.Name), statusMarks[st.Status], st.Status, st.ExitCode, dur)
	}

	if r.Links != nil {
		fmt.Fprintf(&b, "\n## Links\n\n%d checked, %d broken (%d internal, %d external), %d ignored.\n",
			r.Links.Total, r.Links.Broken, r.Links.BrokenInternal, r.Links.BrokenExternal, r.Links.Ignored)
	}

	for _, st := range r.Steps {
		if st.Status != pipeline.StatusFailed && st.Status != pipeline.StatusCanceled {
			continue
		}
		fmt.Fprintf(&b, "\n## %s %s\n\n", StepTitle(st.Name), st.Status)
		if st.Error != "" {
			fmt.Fprintf(&b, "%s\n", escapeInline(st.Error))
		}
		if len(st.Diagnostics) > 0 {
			diags := st.Diagnostics
			if len(diags) > maxDiagnostics {
				diags = diags[:maxDiagnostics]
			}
			fence := fenceFor(diags)
			b.WriteString("\n" + fence + "text\n")
			for _, d := range diags {
				b.WriteString(d + "\n")
			}
			b.WriteString(fence + "\n")
			if n := len(st.Diagnostics) - len(diags); n > 0 {
				fmt.Fprintf(&b, "\n%d more line(s) omitted.\n", n)
			}
		}
	}
	return b.Bytes()
}

// fenceFor returns a backtick fence longer than any backtick run in lines.
func fenceFor(lines []string) string {
	longest := 0
	for _, l := range lines {
		run := 0
		for _, c := range l {
			if c != '`' {
				run = 0
				continue
			}
			run++
			longest = max(longest, run)
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func escapeInline(s string) string {
	return strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`", "<", "&lt;").Replace(s)
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>docgate run {{.RunID}}</title>
<style>body{font-family:sans-serif;max-width:60rem;margin:2rem auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .5rem}pre{background:#f6f8fa;padding:.5rem;overflow-x:auto}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders a run report as a standalone HTML page.
func HTML(r *pipeline.RunReport) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert(Markdown(r), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		RunID string
		Body  template.HTML
	}{RunID: r.RunID, Body: template.HTML(body.String())}) //nolint:gosec // goldmark output, raw HTML disabled
	if err != nil {
		return nil, fmt.Errorf("render report page: %w", err)
	}
	return out.Bytes(), nil
}

package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/linkcheck"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

func failedRun() *pipeline.RunReport {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &pipeline.RunReport{
		RunID:      "7f1c",
		Event:      trigger.PushEvent("refs/heads/update-intro", "abc"),
		Revision:   "abc123",
		Outcome:    pipeline.OutcomeFailed,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Steps: []pipeline.StepResult{
			{Name: pipeline.StepCheckout, Status: pipeline.StatusPassed, Duration: time.Second},
			{Name: pipeline.StepProvision, Status: pipeline.StatusPassed, Duration: 30 * time.Second},
			{Name: pipeline.StepBuildVerify, Status: pipeline.StatusPassed, Duration: 40 * time.Second},
			{
				Name:        pipeline.StepLinkVerify,
				Status:      pipeline.StatusFailed,
				ExitCode:    1,
				Error:       "[linkcheck:fatal] 1 broken link(s) found",
				Diagnostics: []string{"usage.rst:12: [broken] https://example.com/gone (external) - 404"},
			},
		},
		Links: &linkcheck.Summary{Total: 10, Broken: 1, BrokenExternal: 1},
	}
}

func TestStepTitle(t *testing.T) {
	assert.Equal(t, "Build Verify", StepTitle(pipeline.StepBuildVerify))
	assert.Equal(t, "Checkout", StepTitle(pipeline.StepCheckout))
}

func TestMarkdown(t *testing.T) {
	out := string(Markdown(failedRun()))

	assert.Contains(t, out, "# Run 7f1c")
	assert.Contains(t, out, "- **Outcome:** Failed")
	assert.Contains(t, out, "push on `update-intro`")
	assert.Contains(t, out, "| Link Verify | ❌ failed | 1 | 0s |")
	assert.Contains(t, out, "10 checked, 1 broken (0 internal, 1 external)")
	assert.Contains(t, out, "## Link Verify failed")
	assert.Contains(t, out, "https://example.com/gone (external)")
}

func TestMarkdown_TruncatesDiagnostics(t *testing.T) {
	r := failedRun()
	for i := range 60 {
		r.Steps[3].Diagnostics = append(r.Steps[3].Diagnostics, strings.Repeat("x", i+1))
	}
	out := string(Markdown(r))
	assert.Contains(t, out, "11 more line(s) omitted.")
}

func TestMarkdown_DiagnosticsWithBackticks(t *testing.T) {
	r := failedRun()
	r.Steps[3].Diagnostics = []string{"index.rst:3: WARNING: stray ```` fence", "# not a heading"}

	out := string(Markdown(r))
	assert.Contains(t, out, "\n`````text\nindex.rst:3")
	assert.Contains(t, out, "# not a heading\n`````\n")

	page, err := HTML(r)
	require.NoError(t, err)
	assert.NotContains(t, string(page), "<h1 id=\"not-a-heading\">")
	assert.Contains(t, string(page), "# not a heading")
}

func TestHTML(t *testing.T) {
	out, err := HTML(failedRun())
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "<title>docgate run 7f1c</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>Link Verify</td>")
	assert.Contains(t, html, `<pre><code class="language-text">`)
	assert.NotContains(t, html, "<script")
}

package linkcheck

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/docgen"
	"git.home.luguber.info/inful/docgate/internal/process"
)

// ReportFile is the JSON-lines report the generator's link checker writes.
const ReportFile = "output.json"

// generatorEntry is one line of the generator's JSON report.
type generatorEntry struct {
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
	Status   string `json:"status"`
	Code     int    `json:"code"`
	URI      string `json:"uri"`
	Info     string `json:"info"`
}

// ParseGeneratorReport reads the generator's JSON-lines link report.
func ParseGeneratorReport(r io.Reader) ([]Result, error) {
	var results []Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e generatorEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("invalid link report line %d: %w", lineNo, err)
		}
		results = append(results, Result{
			URI:      e.URI,
			Source:   e.Filename,
			Line:     e.Lineno,
			Status:   normalizeStatus(e.Status),
			Code:     e.Code,
			Info:     e.Info,
			Internal: isInternalURI(e.URI),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read link report: %w", err)
	}
	return results, nil
}

func normalizeStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusWorking:
		return StatusWorking
	case StatusRedirected:
		return StatusRedirected
	case StatusIgnored:
		return StatusIgnored
	case StatusUnchecked, "local":
		return StatusUnchecked
	case StatusTimeout:
		return StatusTimeout
	case StatusRateLimited:
		return StatusRateLimited
	default:
		return StatusBroken
	}
}

// isInternalURI treats anything that is not an absolute http(s) URL as internal to the site.
func isInternalURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme != "http" && u.Scheme != "https"
}

// GeneratorChecker runs the documentation generator's link-check builder.
type GeneratorChecker struct {
	cfg    config.GeneratorConfig
	runner process.Runner
}

// NewGeneratorChecker creates a checker delegating to the generator.
func NewGeneratorChecker(cfg config.GeneratorConfig, runner process.Runner) *GeneratorChecker {
	return &GeneratorChecker{cfg: cfg, runner: runner}
}

// Check runs the link-check builder in dir and returns every reported link.
// A non-zero exit with no broken entries in the report is returned as an error.
func (g *GeneratorChecker) Check(ctx context.Context, dir string) ([]Result, *process.Result, error) {
	cmd := docgen.Command(g.cfg, dir, "linkcheck")
	res, runErr := g.runner.Run(ctx, cmd)
	if runErr != nil && ctx.Err() != nil {
		return nil, res, ctx.Err()
	}

	reportPath := filepath.Join(dir, docgen.OutputPath(g.cfg, "linkcheck"), ReportFile)
	f, err := os.Open(filepath.Clean(reportPath))
	if err != nil {
		if runErr != nil {
			return nil, res, runErr
		}
		return nil, res, fmt.Errorf("link report not found at %s: %w", reportPath, err)
	}
	defer func() { _ = f.Close() }()

	results, err := ParseGeneratorReport(f)
	if err != nil {
		return nil, res, err
	}
	if runErr != nil && len(BrokenLinks(results)) == 0 {
		return results, res, runErr
	}
	return results, res, nil
}

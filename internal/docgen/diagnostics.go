package docgen

import (
	"regexp"
	"strconv"
	"strings"
)

// Level is the severity the generator assigned to a diagnostic.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Diagnostic is one warning or error reported by the generator.
type Diagnostic struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// String renders the diagnostic the way the generator printed it.
func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			b.WriteString(":" + strconv.Itoa(d.Line))
		}
		b.WriteString(": ")
	}
	b.WriteString(strings.ToUpper(string(d.Level)) + ": " + d.Message)
	return b.String()
}

var (
	levelPattern = regexp.MustCompile(`(?:^|\s)(WARNING|ERROR|CRITICAL|SEVERE):\s?`)
	linePattern  = regexp.MustCompile(`:(\d+)$`)
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// ParseDiagnostics extracts generator warnings and errors from output lines.
// Lines look like "path/file.rst:12: WARNING: message" or "WARNING: message".
func ParseDiagnostics(lines []string) []Diagnostic {
	var out []Diagnostic
	for _, raw := range lines {
		if d, ok := parseLine(raw); ok {
			out = append(out, d)
		}
	}
	return out
}

func parseLine(raw string) (Diagnostic, bool) {
	line := strings.TrimSpace(ansiPattern.ReplaceAllString(raw, ""))
	loc := levelPattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return Diagnostic{}, false
	}

	d := Diagnostic{
		Level:   levelFor(line[loc[2]:loc[3]]),
		Message: strings.TrimSpace(line[loc[1]:]),
	}
	location := strings.TrimSuffix(strings.TrimSpace(line[:loc[0]]), ":")
	if m := linePattern.FindStringSubmatch(location); m != nil {
		d.Line, _ = strconv.Atoi(m[1])
		location = strings.TrimSuffix(location, m[0])
	}
	d.File = location
	return d, true
}

func levelFor(s string) Level {
	switch s {
	case "WARNING":
		return LevelWarning
	case "CRITICAL":
		return LevelCritical
	default:
		return LevelError
	}
}

// Count tallies diagnostics per level.
func Count(diags []Diagnostic) (warnings, errs int) {
	for _, d := range diags {
		if d.Level == LevelWarning {
			warnings++
		} else {
			errs++
		}
	}
	return warnings, errs
}

package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r-1", RunID("r-1")},
		{"Step", KeyStep, "checkout", Step("checkout")},
		{"Event", KeyEvent, "push", Event("push")},
		{"Branch", KeyBranch, "main", Branch("main")},
		{"Revision", KeyRevision, "abc", Revision("abc")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Command", KeyCommand, "sphinx-build", Command("sphinx-build")},
		{"Forge", KeyForge, "github", Forge("github")},
		{"Error", KeyError, "boom", Error(errors.New("boom"))},
		{"NilError", KeyError, "", Error(nil)},
	}
	for _, c := range cases {
		if c.attr.Key != c.attrKey {
			t.Errorf("%s: key = %q, want %q", c.name, c.attr.Key, c.attrKey)
		}
		if got := c.attr.Value.String(); got != c.attrVal {
			t.Errorf("%s: value = %q, want %q", c.name, got, c.attrVal)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := ExitCode(2); a.Key != KeyExitCode || a.Value.Int64() != 2 {
		t.Errorf("unexpected exit code attr %v", a)
	}
	if a := Duration(1500 * time.Millisecond); a.Key != KeyDurationMS || a.Value.Int64() != 1500 {
		t.Errorf("unexpected duration attr %v", a)
	}
}

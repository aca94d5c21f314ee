package normalization

import "testing"

type mode string

const (
	modeGenerator mode = "generator"
	modeNative    mode = "native"
)

func TestNormalizer(t *testing.T) {
	n := NewNormalizer("link check mode", map[string]mode{
		"generator": modeGenerator,
		"sphinx":    modeGenerator,
		"native":    modeNative,
	}, modeGenerator)

	tests := []struct {
		input string
		want  mode
	}{
		{"native", modeNative},
		{"  NATIVE ", modeNative},
		{"sphinx", modeGenerator},
		{"unknown", modeGenerator},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if _, err := n.Parse("bogus"); err == nil {
		t.Error("expected error for unknown value")
	}
	if got, err := n.Parse(""); err != nil || got != modeGenerator {
		t.Errorf("Parse(\"\") = %q, %v; want default", got, err)
	}
	if keys := n.Keys(); len(keys) != 3 || keys[0] != "generator" {
		t.Errorf("unexpected keys %v", keys)
	}
}

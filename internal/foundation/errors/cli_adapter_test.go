package errors

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitGeneral},
		{"usage", ValidationError("bad flag").Build(), ExitUsage},
		{"config", ConfigError("missing file").Build(), ExitConfig},
		{"checkout", CheckoutError("clone failed").Build(), ExitCheckout},
		{"provision", ProvisionError("install failed").Build(), ExitProvision},
		{"build", BuildError("warnings").Build(), ExitBuild},
		{"linkcheck", LinkCheckError("broken").Build(), ExitLinkCheck},
		{"runtime", RuntimeError("canceled").Build(), ExitRuntime},
		{"internal", InternalError("bug").Build(), ExitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, nil)
	loud := NewCLIErrorAdapter(true, nil)
	err := WrapError(errors.New("exit status 2"), CategoryBuild, "documentation build failed").Build()

	assert.Equal(t, "Error: documentation build failed", quiet.FormatError(err))
	assert.Contains(t, loud.FormatError(err), "exit status 2")
	assert.Equal(t, "Internal error occurred (use -v for details)", quiet.FormatError(InternalError("x").Build()))
	assert.Equal(t, "Error: boom", quiet.FormatError(errors.New("boom")))
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var logs, out bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&logs, nil)))
	adapter.out = &out
	var code int
	adapter.exit = func(c int) { code = c }

	adapter.HandleError(LinkCheckError("broken links detected").WithContext("broken", 2).Build())

	assert.Equal(t, ExitLinkCheck, code)
	assert.True(t, strings.HasPrefix(out.String(), "Error: broken links detected"))
	assert.Contains(t, logs.String(), "category=linkcheck")
	assert.Contains(t, logs.String(), "broken=2")
}

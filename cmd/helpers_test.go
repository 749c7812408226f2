// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/config"
	"github.com/idxwake/idxwake/internal/observability"
)

// executeCommand runs a fresh root command with the given args and returns
// its combined output. The logger singleton is reset around every run so
// tests cannot observe each other's state.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// stubWake swaps the wake seam for the duration of the test.
func stubWake(t *testing.T, fn func(context.Context, *config.Config, *zap.Logger) (wakeResult, error)) {
	t.Helper()

	orig := wakeWorkspace
	wakeWorkspace = fn
	t.Cleanup(func() { wakeWorkspace = orig })
}

// withTestCredential sets a usable credential and clears the legacy alias so
// the command under test starts from a known environment.
func withTestCredential(t *testing.T) {
	t.Helper()

	t.Setenv("IDXWAKE_AUTH_CREDENTIALS", "user@example.com secret123")
	t.Setenv("GOOGLE_PW", "")
}

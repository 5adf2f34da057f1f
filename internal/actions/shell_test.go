package actions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

func TestRunShellCapturesOutput(t *testing.T) {
	a := NewRunShellAction(ShellConfig{})

	out, err := a.Execute(context.Background(), map[string]any{
		"command": `printf 'hello'; printf 'oops' >&2`,
	}, testRunContext())
	require.NoError(t, err)

	assert.Equal(t, "hello", out["stdout"])
	assert.Equal(t, "hello", out["stdout_raw"])
	assert.Equal(t, "oops", out["stderr"])
	assert.Equal(t, 0, out["exit_code"])
	assert.Equal(t, false, out["killed"])
}

func TestRunShellParsesJSONStdout(t *testing.T) {
	a := NewRunShellAction(ShellConfig{})

	out, err := a.Execute(context.Background(), map[string]any{
		"command": `printf '{"ok": true, "n": 2}'`,
	}, testRunContext())
	require.NoError(t, err)

	parsed, ok := out["stdout"].(map[string]any)
	require.True(t, ok, "stdout should be parsed JSON")
	assert.Equal(t, true, parsed["ok"])
	assert.Equal(t, float64(2), parsed["n"])
	assert.Equal(t, `{"ok": true, "n": 2}`, out["stdout_raw"])
}

func TestRunShellNonZeroExitFails(t *testing.T) {
	a := NewRunShellAction(ShellConfig{})

	_, err := a.Execute(context.Background(), map[string]any{
		"command": `printf 'partial'; exit 3`,
	}, testRunContext())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))

	autoErr := err.(*schema.AutomationError)
	assert.Equal(t, 3, autoErr.Details["exit_code"])
	assert.Equal(t, "partial", autoErr.Details["stdout_raw"])
}

func TestRunShellTimeoutKills(t *testing.T) {
	a := NewRunShellAction(ShellConfig{DefaultTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := a.Execute(context.Background(), map[string]any{
		"command": "sleep 5",
	}, testRunContext())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeTimeout, schema.CodeOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	autoErr := err.(*schema.AutomationError)
	assert.Equal(t, true, autoErr.Details["killed"])
}

func TestRunShellPerActionTimeoutParam(t *testing.T) {
	a := NewRunShellAction(ShellConfig{})

	_, err := a.Execute(context.Background(), map[string]any{
		"command": "sleep 5",
		"timeout": "50ms",
	}, testRunContext())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeTimeout, schema.CodeOf(err))
}

func TestRunShellEnvAndStdin(t *testing.T) {
	a := NewRunShellAction(ShellConfig{})

	out, err := a.Execute(context.Background(), map[string]any{
		"command": `printf '%s:' "$GREETING"; cat`,
		"env":     map[string]any{"GREETING": "hi"},
		"stdin":   "from stdin",
	}, testRunContext())
	require.NoError(t, err)
	assert.Equal(t, "hi:from stdin", out["stdout"])
}

func TestRunShellOutputTruncatedAtLimit(t *testing.T) {
	a := NewRunShellAction(ShellConfig{MaxOutputSize: 10})

	out, err := a.Execute(context.Background(), map[string]any{
		"command": `printf '0123456789abcdef'`,
	}, testRunContext())
	require.NoError(t, err)
	assert.Equal(t, "0123456789", out["stdout_raw"])
}

func TestRunShellValidateRequiresCommand(t *testing.T) {
	a := NewRunShellAction(ShellConfig{})
	assert.Error(t, a.Validate(map[string]any{}))
	assert.Error(t, a.Validate(map[string]any{"command": ""}))
	assert.NoError(t, a.Validate(map[string]any{"command": "true"}))
}

func TestLimitedWriterReportsFullLength(t *testing.T) {
	var sb strings.Builder
	lw := &limitedWriter{w: &sb, limit: 4}

	n, err := lw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", sb.String())

	n, err = lw.Write([]byte("ghi"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcd", sb.String())
}

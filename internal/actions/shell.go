package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

const (
	defaultShellTimeout  = 30 * time.Second
	defaultMaxOutputSize = 1 * 1024 * 1024 // 1MB
)

// ShellConfig configures the run_shell action.
type ShellConfig struct {
	DefaultTimeout time.Duration
	MaxOutputSize  int64
}

type runShellAction struct {
	cfg ShellConfig
}

// NewRunShellAction creates the run_shell handler.
func NewRunShellAction(cfg ShellConfig) Handler {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultShellTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	return &runShellAction{cfg: cfg}
}

func (a *runShellAction) Type() schema.ActionType { return schema.ActionRunShell }

func (a *runShellAction) Validate(params map[string]any) error {
	return requireString(a.Type(), params, "command")
}

// Execute runs the command through /bin/sh -c, capturing stdout, stderr
// and the exit code. A non-zero exit is an action failure; the captured
// output is still attached to the error details.
func (a *runShellAction) Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error) {
	command := stringParam(params, "command", "")
	if command == "" {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: resolved command is empty", a.Type())
	}

	timeout := a.cfg.DefaultTimeout
	if ts := stringParam(params, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	if cwd := stringParam(params, "cwd", ""); cwd != "" {
		cmd.Dir = cwd
	}
	if envMap := stringMapParam(params, "env"); envMap != nil {
		cmd.Env = os.Environ()
		for k, v := range envMap {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if stdin := stringParam(params, "stdin", ""); stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: a.cfg.MaxOutputSize}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: a.cfg.MaxOutputSize}

	start := time.Now()
	runErr := cmd.Run()
	durationMs := time.Since(start).Milliseconds()

	exitCode := 0
	killed := execCtx.Err() == context.DeadlineExceeded
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if !killed {
			// Command never ran (e.g. shell not found).
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: %s", a.Type(), runErr.Error()).WithCause(runErr)
		}
	}

	// Auto-parse stdout when it is valid JSON so downstream tooling sees
	// structured output instead of a string blob.
	stdoutStr := stdoutBuf.String()
	var parsedStdout any = stdoutStr
	if stdoutBuf.Len() > 0 && json.Valid(stdoutBuf.Bytes()) {
		var parsed any
		if err := json.Unmarshal(stdoutBuf.Bytes(), &parsed); err == nil {
			parsedStdout = parsed
		}
	}

	result := map[string]any{
		"stdout":      parsedStdout,
		"stdout_raw":  stdoutStr,
		"stderr":      stderrBuf.String(),
		"exit_code":   exitCode,
		"duration_ms": durationMs,
		"killed":      killed,
	}

	if killed {
		return nil, schema.NewErrorf(schema.ErrCodeTimeout, "%s: killed after %s", a.Type(), timeout).WithDetails(result)
	}
	if exitCode != 0 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s: exited with code %d", a.Type(), exitCode).WithDetails(result)
	}
	return result, nil
}

// limitedWriter wraps a writer and silently discards bytes beyond the
// limit. Write always reports the full len(p) consumed so the
// subprocess never blocks on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const historySize = 100

// ShellConfig bounds what the executor may run.
type ShellConfig struct {
	// DefaultTimeout applies when the caller does not pass one.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxTimeout caps caller-supplied timeouts.
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// BlockedCommands rejects any command containing one of these
	// substrings.
	BlockedCommands []string `yaml:"blocked_commands"`
}

func (c *ShellConfig) withDefaults() ShellConfig {
	out := ShellConfig{DefaultTimeout: 30 * time.Second, MaxTimeout: 5 * time.Minute}
	if c != nil {
		if c.DefaultTimeout > 0 {
			out.DefaultTimeout = c.DefaultTimeout
		}
		if c.MaxTimeout > 0 {
			out.MaxTimeout = c.MaxTimeout
		}
		out.BlockedCommands = c.BlockedCommands
	}
	return out
}

// ExecResult is the outcome of one shell invocation.
type ExecResult struct {
	Command    string `json:"command"`
	ReturnCode int    `json:"return_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	WorkingDir string `json:"working_dir,omitempty"`
	Timestamp  string `json:"timestamp"`
	Success    bool   `json:"success"`

	// ErrorHint is set for exit code 127 (command not found).
	ErrorHint string `json:"error_hint,omitempty"`
}

// ShellExecutor runs shell commands under the configured policy.
type ShellExecutor struct {
	cfg ShellConfig
	log *slog.Logger

	mu      sync.Mutex
	history []ExecResult
}

func NewShellExecutor(cfg *ShellConfig, log *slog.Logger) *ShellExecutor {
	return &ShellExecutor{
		cfg: cfg.withDefaults(),
		log: log.With("tool", "shell_executor"),
	}
}

// IsCommandAllowed reports whether the policy permits the command.
func (e *ShellExecutor) IsCommandAllowed(command string) bool {
	for _, blocked := range e.cfg.BlockedCommands {
		if strings.Contains(command, blocked) {
			return false
		}
	}
	return true
}

// Execute runs the command through bash, bounded by the smaller of the
// requested and configured maximum timeout. A non-zero exit code is
// reported in the result, not as an error; errors are reserved for
// policy rejections and spawn failures.
func (e *ShellExecutor) Execute(ctx context.Context, command, workingDir string, timeout time.Duration) (*ExecResult, error) {
	if !e.IsCommandAllowed(command) {
		return nil, fmt.Errorf("command blocked by security policy: %s", command)
	}

	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout > e.cfg.MaxTimeout {
		timeout = e.cfg.MaxTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.log.Info("executing command",
		slog.String("command", command),
		slog.Duration("timeout", timeout))

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", command)
	cmd.Dir = workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ExecResult{
		Command:    command,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		WorkingDir: workingDir,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return nil, fmt.Errorf("command timed out after %s", timeout)
	case err == nil:
		result.Success = true
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("could not start command: %w", err)
		}
		result.ReturnCode = exitErr.ExitCode()
	}

	if result.ReturnCode == 127 {
		name, _, _ := strings.Cut(strings.TrimSpace(command), " ")
		result.ErrorHint = fmt.Sprintf("command not found: %q, check installation and PATH", name)
	}

	e.record(result)
	return result, nil
}

// History returns the retained execution results, most recent last.
func (e *ShellExecutor) History() []ExecResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecResult, len(e.history))
	copy(out, e.history)
	return out
}

func (e *ShellExecutor) record(result *ExecResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, *result)
	if len(e.history) > historySize {
		e.history = e.history[len(e.history)-historySize:]
	}
}

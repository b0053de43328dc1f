// Package collector runs the platform tools whose output feeds the
// topology parsers, and can record or replay those captures.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sigreer/disktopo/internal/cache"
)

// DefaultTimeout bounds a single command
const DefaultTimeout = 10 * time.Second

// Runner captures the standard output of a named tool.
//
// name is the logical tool name ("lshw", "blkid", ...). Implementations map
// it to a binary, a capture file or canned data.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError describes a tool that could not run or exited non-zero
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs tools on the local host with LC_ALL=C
type ExecRunner struct {
	// Timeout per command; DefaultTimeout when zero
	Timeout time.Duration
	// Paths overrides the binary used for a logical tool name
	Paths map[string]string
}

// Run executes the tool and returns its stdout
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := name
	if p, ok := r.Paths[name]; ok && p != "" {
		bin = p
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	slog.Debug("command finished", "cmd", Key(name, args...), "took", time.Since(start), "err", err)

	if err != nil {
		cerr := &CommandError{
			Command:  strings.Join(append([]string{bin}, args...), " "),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() == context.DeadlineExceeded {
			cerr.Err = fmt.Errorf("command timed out after %s", timeout)
		}
		return stdout.Bytes(), cerr
	}

	return stdout.Bytes(), nil
}

// MemoRunner serves repeated identical commands from a run-scoped cache
type MemoRunner struct {
	Next  Runner
	Cache *cache.Cache
}

// NewMemoRunner wraps next with a fresh cache
func NewMemoRunner(next Runner) *MemoRunner {
	return &MemoRunner{Next: next, Cache: cache.New()}
}

// Run returns the cached result or runs the command once
func (m *MemoRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := Key(name, args...)
	if e, ok := m.Cache.Get(key); ok {
		return e.Output, e.Err
	}

	start := time.Now()
	out, err := m.Next.Run(ctx, name, args...)
	m.Cache.Set(key, out, err, time.Since(start))
	return out, err
}

// Key builds a filesystem-safe name for a command line. Capture files in
// record and replay directories use it as their file name.
func Key(name string, args ...string) string {
	parts := append([]string{name}, args...)
	joined := strings.Join(parts, "_")

	var b strings.Builder
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '=':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

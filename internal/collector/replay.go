package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCaptureMissing is returned when no capture exists for a command
var ErrCaptureMissing = errors.New("no capture for command")

// ReplayRunner serves captures previously written by a RecordingRunner
type ReplayRunner struct {
	Dir string
}

// Run reads the capture file for the command
func (r *ReplayRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := Key(name, args...)
	data, err := os.ReadFile(filepath.Join(r.Dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureMissing, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", key, err)
	}
	return data, nil
}

// RecordingRunner writes every successful capture to Dir
type RecordingRunner struct {
	Next Runner
	Dir  string
}

// NewRecordingRunner creates dir and wraps next
func NewRecordingRunner(next Runner, dir string) (*RecordingRunner, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	return &RecordingRunner{Next: next, Dir: dir}, nil
}

// Run runs the command and records its output when it succeeds
func (r *RecordingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := r.Next.Run(ctx, name, args...)
	if err != nil {
		return out, err
	}
	path := filepath.Join(r.Dir, Key(name, args...))
	if werr := os.WriteFile(path, out, 0644); werr != nil {
		return out, fmt.Errorf("failed to record capture: %w", werr)
	}
	return out, nil
}

// Static serves canned output keyed by Key. Commands without an entry fail
// with ErrCaptureMissing.
type Static map[string][]byte

// Run returns the canned output
func (s Static) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := Key(name, args...)
	out, ok := s[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaptureMissing, key)
	}
	return out, nil
}

// Set stores output for a command line
func (s Static) Set(output string, name string, args ...string) {
	s[Key(name, args...)] = []byte(output)
}

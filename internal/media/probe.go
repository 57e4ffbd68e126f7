// Package media inspects uploaded video files with external tooling.
package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrProbeFailed indicates the file could not be inspected or is not a
// readable video.
var ErrProbeFailed = errors.New("media probe failed")

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// FFProbeProvider extracts stream metadata using the ffprobe CLI tool.
type FFProbeProvider struct {
	Binary  string
	Run     CommandRunner
	Timeout time.Duration
}

// NewFFProbeProvider constructs a provider that shells out to ffprobe.
func NewFFProbeProvider(binary string, timeout time.Duration) *FFProbeProvider {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FFProbeProvider{
		Binary:  binary,
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Duration returns the playback length in seconds of the video at path.
func (p *FFProbeProvider) Duration(ctx context.Context, path string) (float64, error) {
	if p == nil {
		return 0, ErrProbeFailed
	}
	if p.Run == nil {
		p.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	out, err := p.Run(execCtx, p.Binary, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe %s: %v", ErrProbeFailed, path, err)
	}

	raw := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse ffprobe output %q", ErrProbeFailed, raw)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("%w: negative duration %q", ErrProbeFailed, raw)
	}

	return seconds, nil
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}

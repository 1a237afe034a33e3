package recorder

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// Sink is a running encoder: a process reading raw frames on its stdin.
type Sink interface {
	// Write sends raw frame bytes to the encoder.
	Write(p []byte) (int, error)

	// CloseInput closes stdin, signalling end of stream.
	CloseInput() error

	// Wait blocks until the process exits or timeout passes. It returns
	// ErrStopTimeout when the process is still running.
	Wait(timeout time.Duration) error

	// Kill forcibly terminates the process.
	Kill() error
}

// Launcher starts encoder processes.
type Launcher interface {
	Launch(args []string) (Sink, error)
}

// ExecLauncher runs ffmpeg as a subprocess.
type ExecLauncher struct {
	// Path is the ffmpeg binary; defaults to "ffmpeg" looked up on PATH.
	Path   string
	Logger *slog.Logger
}

// NewExecLauncher creates a launcher for the given ffmpeg binary.
func NewExecLauncher(path string, logger *slog.Logger) *ExecLauncher {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{Path: path, Logger: logger}
}

// Launch starts ffmpeg with a stdin pipe. Its stderr is forwarded to the
// debug log line by line.
func (l *ExecLauncher) Launch(args []string) (Sink, error) {
	cmd := exec.Command(l.Path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stderr, stderrW := io.Pipe()
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stderrW.Close()
		return nil, fmt.Errorf("failed to start %s: %w", l.Path, err)
	}

	s := &execSink{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	logger := l.Logger.With("pid", cmd.Process.Pid)
	go func() {
		sc := bufio.NewScanner(stderr)
		sc.Split(scanProgressLines)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				logger.Debug("ffmpeg", "line", line)
			}
		}
		// Keep draining so ffmpeg never blocks on a full stderr pipe.
		io.Copy(io.Discard, stderr)
	}()

	go func() {
		s.err = cmd.Wait()
		stderrW.Close()
		close(s.done)
	}()

	return s, nil
}

type execSink struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
	closeErr  error

	done chan struct{}
	err  error
}

func (s *execSink) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, fmt.Errorf("encoder exited: %w", io.ErrClosedPipe)
	default:
	}
	return s.stdin.Write(p)
}

func (s *execSink) CloseInput() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stdin.Close()
	})
	return s.closeErr
}

func (s *execSink) Wait(timeout time.Duration) error {
	select {
	case <-s.done:
		return s.err
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (s *execSink) Kill() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	if s.cmd.Process == nil {
		return nil
	}
	err := s.cmd.Process.Kill()
	<-s.done
	return err
}

// scanProgressLines splits on '\n' or '\r'. ffmpeg rewrites its progress
// line in place with carriage returns.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

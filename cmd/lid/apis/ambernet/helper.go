package ambernet

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	stopTimeout  = 5 * time.Second
	maxStderrLen = 4096
)

type helperRequest struct {
	Mode string `json:"mode"`
	WAV  string `json:"wav"`
}

type helperResult struct {
	Ready  bool      `json:"ready"`
	Logits []float32 `json:"logits"`
	Label  string    `json:"label"`
	Error  string    `json:"error"`
}

// helper is a running instance of the python helper. Requests and responses
// are exchanged one JSON object per line.
type helper struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	reader *bufio.Reader
	stderr *stderrTail
	exited chan struct{}
}

// stderrTail forwards the helper's stderr to the logs and keeps the last
// bytes around for error messages.
type stderrTail struct {
	mut sync.Mutex
	buf []byte
}

func (s *stderrTail) Write(p []byte) (int, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	slog.Debug("ambernet helper", slog.String("stderr", strings.TrimSpace(string(p))))

	s.buf = append(s.buf, p...)
	if len(s.buf) > maxStderrLen {
		s.buf = s.buf[len(s.buf)-maxStderrLen:]
	}
	return len(p), nil
}

func (s *stderrTail) String() string {
	s.mut.Lock()
	defer s.mut.Unlock()
	return strings.TrimSpace(string(s.buf))
}

// startHelper runs the helper script and waits until the model is loaded.
func startHelper(cfg Config, scriptPath string) (*helper, error) {
	cmd := exec.Command(cfg.PythonPath, scriptPath, "--model", cfg.Model, "--device", cfg.Device)
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUNBUFFERED=1")
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.WaitDelay = stopTimeout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	// The read end is ours so that Wait never closes it under a pending read.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stdout = pw

	h := &helper{
		cmd:    cmd,
		stdin:  stdin,
		stdout: pr,
		reader: bufio.NewReader(pr),
		stderr: &stderrTail{},
		exited: make(chan struct{}),
	}
	cmd.Stderr = h.stderr

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to run %s: %w", cfg.PythonPath, err)
	}
	pw.Close()

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("ambernet helper exited", slog.String("err", err.Error()))
		}
		close(h.exited)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartTimeout)
	defer cancel()

	res, err := h.call(ctx, nil)
	if err == nil && res.Error != "" {
		err = fmt.Errorf("failed to load model: %s", res.Error)
	} else if err == nil && !res.Ready {
		err = fmt.Errorf("unexpected helper handshake")
	}
	if err != nil {
		if stopErr := h.stop(); stopErr != nil {
			slog.Debug("helper stopped with error", slog.String("err", stopErr.Error()))
		}
		return nil, fmt.Errorf("failed to start helper: %w", err)
	}

	slog.Debug("ambernet helper is ready", slog.Int("pid", cmd.Process.Pid))

	return h, nil
}

// call writes req, if any, and reads a single response. On cancellation the
// process is killed since the exchange can't be resumed.
func (h *helper) call(ctx context.Context, req *helperRequest) (helperResult, error) {
	type outcome struct {
		res helperResult
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		if req != nil {
			data, err := json.Marshal(req)
			if err != nil {
				ch <- outcome{err: fmt.Errorf("failed to encode request: %w", err)}
				return
			}
			if _, err := h.stdin.Write(append(data, '\n')); err != nil {
				ch <- outcome{err: fmt.Errorf("failed to write request: %w", err)}
				return
			}
		}

		line, err := h.reader.ReadBytes('\n')
		if err != nil {
			ch <- outcome{err: h.exitError(err)}
			return
		}

		var res helperResult
		if err := json.Unmarshal(line, &res); err != nil {
			ch <- outcome{err: fmt.Errorf("failed to decode helper output: %w", err)}
			return
		}
		ch <- outcome{res: res}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		h.kill()
		<-ch
		return helperResult{}, ctx.Err()
	}
}

func (h *helper) exitError(err error) error {
	if tail := h.stderr.String(); tail != "" {
		return fmt.Errorf("helper exited: %w: %s", err, tail)
	}
	return fmt.Errorf("helper exited: %w", err)
}

func (h *helper) kill() {
	if err := h.cmd.Process.Kill(); err != nil {
		slog.Debug("failed to kill helper", slog.String("err", err.Error()))
	}
	// Unblocks a pending read.
	h.stdout.Close()
}

// stop closes the helper's stdin, which makes it exit, and kills it if it
// doesn't within stopTimeout.
func (h *helper) stop() error {
	var err error
	if closeErr := h.stdin.Close(); closeErr != nil {
		err = fmt.Errorf("failed to close helper stdin: %w", closeErr)
	}

	select {
	case <-h.exited:
	case <-time.After(stopTimeout):
		h.kill()
		<-h.exited
	}

	h.stdout.Close()

	return err
}

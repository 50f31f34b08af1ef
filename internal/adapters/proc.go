package adapters

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// procResult carries the raw outcome of one child process run.
type procResult struct {
	stdout   []string
	stderr   []string
	timedOut bool

	// err is non-nil on spawn failure, nonzero exit, or context
	// cancellation. Timeout kills set timedOut instead.
	err error
}

// runProcess spawns bin with argv args (no shell interpolation) in dir,
// inheriting the parent environment with stdin closed. Both output streams
// are line-buffered; onStdout observes each complete stdout line as it
// arrives. If the process outlives timeout its whole process group is
// SIGKILLed: the tool CLIs fork helpers that inherit the pipe write ends,
// and a surviving descendant would otherwise hold the drain open past the
// deadline.
func runProcess(ctx context.Context, bin string, args []string, dir string, timeout time.Duration, onStdout func(string)) procResult {
	var res procResult

	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		res.err = fmt.Errorf("stdout pipe: %w", err)
		return res
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		res.err = fmt.Errorf("stderr pipe: %w", err)
		return res
	}

	var mu sync.Mutex
	outBuf := newLineBuffer(func(line string) {
		mu.Lock()
		res.stdout = append(res.stdout, line)
		mu.Unlock()
		if onStdout != nil {
			onStdout(line)
		}
	})
	errBuf := newLineBuffer(func(line string) {
		mu.Lock()
		res.stderr = append(res.stderr, line)
		mu.Unlock()
	})

	if err := cmd.Start(); err != nil {
		res.err = fmt.Errorf("spawn %s: %w", bin, err)
		return res
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		_, _ = io.Copy(outBuf, stdoutPipe)
		outBuf.Flush()
	}()
	go func() {
		defer readers.Done()
		_, _ = io.Copy(errBuf, stderrPipe)
		errBuf.Flush()
	}()

	waitCh := make(chan error, 1)
	go func() {
		readers.Wait()
		waitCh <- cmd.Wait()
	}()

	if timeout <= 0 {
		timeout = CLITimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	killGroup := func() {
		// Negative pid addresses the process group set at Start.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	select {
	case err := <-waitCh:
		res.err = err
	case <-timer.C:
		killGroup()
		<-waitCh
		res.timedOut = true
	case <-ctx.Done():
		killGroup()
		<-waitCh
		res.err = ctx.Err()
	}
	return res
}

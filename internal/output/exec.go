package output

import (
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/pkg/errors"
)

// execDriver pipes payloads into a child process spawned from the directive
// line.  The line is handed to the shell verbatim, so "output exec cmd args"
// runs as `sh -c "exec cmd args"` and the shell replaces itself with the
// command.  A failed write closes the pipe; the next payload relaunches.
type execDriver struct {
	cmdline string
	logger  logging.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func newExecDriver(cmdline string, logger logging.Logger) *execDriver {
	return &execDriver{cmdline: cmdline, logger: logger}
}

func (e *execDriver) spawn() error {
	cmd := exec.Command("/bin/sh", "-c", e.cmdline)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot open pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "cannot spawn %q", e.cmdline)
	}
	e.cmd = cmd
	e.stdin = stdin
	e.logger.Info("spawned child", logging.String("cmdline", e.cmdline))
	return nil
}

func (e *execDriver) Start() error {
	return e.spawn()
}

func (e *execDriver) Payload(typ string, body []byte) error {
	if e.stdin == nil {
		if err := e.spawn(); err != nil {
			return err
		}
	}
	if _, err := e.stdin.Write(append(append([]byte(nil), body...), '\n')); err != nil {
		e.close()
		return errors.Wrap(err, errors.ErrCodeUnavailable, "write to child failed")
	}
	return nil
}

// close tears the pipe and child down so the next payload can relaunch.
func (e *execDriver) close() {
	if e.stdin != nil {
		_ = e.stdin.Close()
		e.stdin = nil
	}
	if e.cmd == nil {
		return
	}
	cmd := e.cmd
	e.cmd = nil

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func (e *execDriver) Stop() error {
	e.close()
	return nil
}

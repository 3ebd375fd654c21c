package transport

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

const processExitGrace = 2 * time.Second

// process is a controller child process whose stdin and stdout form the
// stream.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	logger logging.Logger

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

func startProcess(name string, args []string, logger logging.Logger) (*process, error) {
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "controller stdin")
	}
	// stdout is a plain pipe so Wait never closes it under a pending read.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "controller stdout")
	}
	cmd.Stdout = stdoutW
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "controller stderr"), stdout.Close(), stdoutW.Close())
	}
	if err := cmd.Start(); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "starting controller %s", name), stdout.Close(), stdoutW.Close())
	}
	stdoutW.Close()
	logger.Infof("started controller %s (pid %d)", name, cmd.Process.Pid)

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		logger: logger,
		exited: make(chan struct{}),
	}

	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			logger.Debugf("controller: %s", sc.Text())
		}
	}()
	go func() {
		// Wait closes the pipes, so stderr must be drained first.
		stderrDone.Wait()
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) Read(b []byte) (int, error) { return p.stdout.Read(b) }

func (p *process) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close hangs up stdin and gives the controller a moment to exit before
// killing it.
func (p *process) Close() error {
	p.closeOnce.Do(func() {
		err := p.stdin.Close()
		select {
		case <-p.exited:
		case <-time.After(processExitGrace):
			p.logger.Warnf("controller did not exit, killing pid %d", p.cmd.Process.Pid)
			err = multierr.Append(err, p.cmd.Process.Kill())
			<-p.exited
		}
		var exitErr *exec.ExitError
		if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
			err = multierr.Append(err, p.waitErr)
		}
		p.closeErr = multierr.Append(err, p.stdout.Close())
	})
	return p.closeErr
}

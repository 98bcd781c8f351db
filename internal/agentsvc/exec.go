package agentsvc

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os/exec"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spuff/spuff/pkg/agentapi"
)

const defaultExecTimeout = 30 * time.Second

// handleExec runs an arbitrary shell command and enforces timeout_secs by
// killing the whole process group on expiry — the same Setpgid +
// syscall.Kill(-pid, ...) pattern internal/sshconn uses for its own
// subprocess timeouts, necessary here because a shell command can itself
// fork children that outlive a signal to the direct child alone.
func (s *Server) handleExec(c *gin.Context) {
	var req agentapi.ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, agentapi.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Command == "" {
		c.JSON(http.StatusBadRequest, agentapi.ErrorResponse{Error: "command is required"})
		return
	}

	timeout := defaultExecTimeout
	if req.TimeoutSecs > 0 {
		timeout = time.Duration(req.TimeoutSecs) * time.Second
	}

	s.metrics.incExecCalls()

	start := time.Now()
	exitCode, stdout, stderr, err := runGroupedShell(c.Request.Context(), req.Command, timeout)
	if err != nil {
		c.JSON(http.StatusInternalServerError, agentapi.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, agentapi.ExecResponse{
		ExitCode:   exitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func runGroupedShell(ctx context.Context, command string, timeout time.Duration) (exitCode int, stdout, stderr string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return -1, "", "", err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		stdout, stderr = outBuf.String(), errBuf.String()
		if waitErr == nil {
			return 0, stdout, stderr, nil
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), stdout, stderr, nil
		}
		return -1, stdout, stderr, waitErr
	case <-timer.C:
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return -1, outBuf.String(), errBuf.String(), context.DeadlineExceeded
	}
}

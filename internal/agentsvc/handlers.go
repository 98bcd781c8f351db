package agentsvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spuff/spuff/pkg/agentapi"
)

func loadProjectSpec(path string) (*agentapi.ProjectSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var spec agentapi.ProjectSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &spec, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, agentapi.HealthResponse{
		Status:  "healthy",
		Service: "spuff-agent",
		Version: s.cfg.Version,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	bootstrapStatus := s.readBootstrapStatus()
	c.JSON(http.StatusOK, agentapi.StatusResponse{
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		IdleSeconds:      s.idleSeconds(),
		Hostname:         s.hostname,
		CloudInitDone:    bootstrapStatus == agentapi.BootstrapReady || bootstrapStatus == agentapi.BootstrapFailed,
		BootstrapStatus:  bootstrapStatus,
		BootstrapReady:   bootstrapStatus == agentapi.BootstrapReady,
		AgentVersion:     s.cfg.Version,
		DestroyRequested: s.DestroyRequested(),
	})
}

func (s *Server) readBootstrapStatus() agentapi.BootstrapStatus {
	data, err := os.ReadFile(s.cfg.BootstrapStatusPath)
	if err != nil {
		return agentapi.BootstrapUnknown
	}
	switch strings.TrimSpace(string(data)) {
	case string(agentapi.BootstrapRunning):
		return agentapi.BootstrapRunning
	case string(agentapi.BootstrapReady):
		return agentapi.BootstrapReady
	case string(agentapi.BootstrapFailed):
		return agentapi.BootstrapFailed
	default:
		return agentapi.BootstrapUnknown
	}
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	s.touchActivity("heartbeat", "")
	c.JSON(http.StatusOK, agentapi.HeartbeatResponse{Status: "ok", Timestamp: time.Now()})
}

// handleLogs tails a file that resolveLogPath confines to
// cfg.LogAllowlistDir (/var/log when that is empty). spuff-agent sets the
// directory to /opt/spuff/logs, so files under /var/log are not readable
// through this route.
func (s *Server) handleLogs(c *gin.Context) {
	file := c.Query("file")
	linesParam := c.DefaultQuery("lines", "100")
	n, err := strconv.Atoi(linesParam)
	if err != nil || n <= 0 {
		n = 100
	}

	full, err := s.resolveLogPath(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, agentapi.ErrorResponse{Error: err.Error()})
		return
	}

	lines, err := tailFile(full, n)
	if err != nil {
		c.JSON(http.StatusNotFound, agentapi.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, agentapi.LogsResponse{Lines: lines})
}

func (s *Server) resolveLogPath(file string) (string, error) {
	allowDir := s.cfg.LogAllowlistDir
	if allowDir == "" {
		allowDir = "/var/log"
	}
	cleanAllow, err := filepath.Abs(allowDir)
	if err != nil {
		return "", fmt.Errorf("resolve log allowlist dir: %w", err)
	}

	candidate := filepath.Join(cleanAllow, file)
	candidate = filepath.Clean(candidate)
	if !strings.HasPrefix(candidate, cleanAllow+string(filepath.Separator)) && candidate != cleanAllow {
		return "", fmt.Errorf("path %q escapes the log allowlist", file)
	}
	return candidate, nil
}

func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

func (s *Server) handleCloudInit(c *gin.Context) {
	status := s.readBootstrapStatus()
	resp := agentapi.CloudInitResponse{
		Status: string(status),
		Done:   status == agentapi.BootstrapReady || status == agentapi.BootstrapFailed,
		Errors: nil,
	}
	if status == agentapi.BootstrapFailed {
		resp.Errors = []string{"bootstrap-async.sh exited non-zero; see /var/log/cloud-init-output.log"}
	}
	if resp.Done {
		finished := time.Now().UTC().Format(time.RFC3339)
		resp.BootFinished = &finished
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProjectConfig(c *gin.Context) {
	spec := s.projectSpecCopy()
	if spec == nil {
		c.JSON(http.StatusNotFound, agentapi.ErrorResponse{Error: "no project spec loaded"})
		return
	}
	c.JSON(http.StatusOK, spec)
}

func (s *Server) handleProjectStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.setup.Status())
}

// handleProjectSetup is idempotent, per spec.md §4.6: 202 if this call
// newly starts the executor, 200 if it was already running or done.
func (s *Server) handleProjectSetup(c *gin.Context) {
	spec := s.projectSpecCopy()
	if spec == nil {
		c.JSON(http.StatusBadRequest, agentapi.ErrorResponse{Error: "no project spec loaded"})
		return
	}

	started := s.setup.Start(c.Request.Context(), spec)
	if started {
		c.JSON(http.StatusAccepted, agentapi.SetupAcceptedResponse{Status: "started"})
		return
	}
	c.JSON(http.StatusOK, agentapi.SetupAcceptedResponse{Status: "already in progress or complete"})
}

// handleCloneRepositories runs the deferred repository-clone phase using an
// SSH agent socket forwarded by a live login session. No spuff command
// calls this route; `spuff ssh` only starts the interactive session.
func (s *Server) handleCloneRepositories(c *gin.Context) {
	spec := s.projectSpecCopy()
	if spec == nil {
		c.JSON(http.StatusBadRequest, agentapi.ErrorResponse{Error: "no project spec loaded"})
		return
	}
	if err := s.setup.CloneRepositories(c.Request.Context(), spec); err != nil {
		c.JSON(http.StatusConflict, agentapi.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.setup.Status())
}

func (s *Server) handleActivity(c *gin.Context) {
	entries := s.activity.entries()
	c.JSON(http.StatusOK, agentapi.ActivityResponse{Entries: entries, Count: len(entries)})
}

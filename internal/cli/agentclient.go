package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spuff/spuff/internal/config"
	"github.com/spuff/spuff/internal/sshconn"
	"github.com/spuff/spuff/internal/store"
	"github.com/spuff/spuff/pkg/agentapi"
)

// agentClient reaches the Agent's loopback-only HTTP port through an
// SSH-forwarded local port, per spec.md §6's "proxy to agent HTTP through an
// SSH-forwarded localhost port" contract for the `agent` and `exec`
// commands.
type agentClient struct {
	forwarder *sshconn.Forwarder
	baseURL   string
	token     string
	http      *http.Client
}

// dialAgent opens a tunnel to inst's Agent port and returns a client ready to
// make authenticated calls. The caller must Close it when done.
func (a *App) dialAgent(ctx context.Context, inst *store.LocalInstance) (*agentClient, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	token, err := readAgentToken(dir, inst.Name)
	if err != nil {
		return nil, err
	}

	localPort := a.Cfg.AgentPort
	target := a.sshTarget(inst)
	forwarder, err := sshconn.ForwardLocalPort(ctx, target, localPort, a.Cfg.AgentPort, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("forward agent port: %w", err)
	}

	return &agentClient{
		forwarder: forwarder,
		baseURL:   fmt.Sprintf("http://127.0.0.1:%d", localPort),
		token:     token,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *agentClient) Close() error {
	return c.forwarder.Close()
}

func (c *agentClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set(agentapi.AgentTokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call agent %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read agent response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp agentapi.ErrorResponse
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("agent %s %s: %s (%d)", method, path, errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("agent %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode agent response: %w", err)
	}
	return nil
}

func (c *agentClient) Status(ctx context.Context) (agentapi.StatusResponse, error) {
	var out agentapi.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *agentClient) Metrics(ctx context.Context) (agentapi.MetricsResponse, error) {
	var out agentapi.MetricsResponse
	err := c.do(ctx, http.MethodGet, "/metrics", nil, &out)
	return out, err
}

func (c *agentClient) Processes(ctx context.Context) ([]agentapi.ProcessInfo, error) {
	var out []agentapi.ProcessInfo
	err := c.do(ctx, http.MethodGet, "/processes", nil, &out)
	return out, err
}

func (c *agentClient) Logs(ctx context.Context, file string, lines int) (agentapi.LogsResponse, error) {
	var out agentapi.LogsResponse
	path := fmt.Sprintf("/logs?file=%s&lines=%d", file, lines)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *agentClient) ProjectStatus(ctx context.Context) (agentapi.ProjectStatus, error) {
	var out agentapi.ProjectStatus
	err := c.do(ctx, http.MethodGet, "/project/status", nil, &out)
	return out, err
}

func (c *agentClient) Exec(ctx context.Context, command string, timeoutSecs int) (agentapi.ExecResponse, error) {
	var out agentapi.ExecResponse
	req := agentapi.ExecRequest{Command: command, TimeoutSecs: timeoutSecs}
	err := c.do(ctx, http.MethodPost, "/exec", req, &out)
	return out, err
}

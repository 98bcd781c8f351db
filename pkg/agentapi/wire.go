package agentapi

import "time"

// AgentTokenHeader is the bearer-token header every authenticated Agent
// endpoint requires, per spec.md §4.6.
const AgentTokenHeader = "X-Spuff-Token"

// HealthResponse is the unauthenticated liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	UptimeSeconds    int64           `json:"uptime_seconds"`
	IdleSeconds      int64           `json:"idle_seconds"`
	Hostname         string          `json:"hostname"`
	CloudInitDone    bool            `json:"cloud_init_done"`
	BootstrapStatus  BootstrapStatus `json:"bootstrap_status"`
	BootstrapReady   bool            `json:"bootstrap_ready"`
	AgentVersion     string          `json:"agent_version"`
	DestroyRequested bool            `json:"destroy_requested"`
}

// LoadAverage is 1/5/15 minute load.
type LoadAverage struct {
	One     float64 `json:"one"`
	Five    float64 `json:"five"`
	Fifteen float64 `json:"fifteen"`
}

// MetricsResponse is the /metrics payload.
type MetricsResponse struct {
	CPUPercent    float64     `json:"cpu_percent"`
	MemoryUsed    uint64      `json:"memory_used"`
	MemoryTotal   uint64      `json:"memory_total"`
	MemoryPercent float64     `json:"memory_percent"`
	DiskUsed      uint64      `json:"disk_used"`
	DiskTotal     uint64      `json:"disk_total"`
	DiskPercent   float64     `json:"disk_percent"`
	LoadAverage   LoadAverage `json:"load_average"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ProcessInfo is one row of the /processes response.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

// ExecRequest is the /exec request body.
type ExecRequest struct {
	Command     string `json:"command"`
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
}

// ExecResponse is the /exec response body.
type ExecResponse struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
}

// HeartbeatResponse is the /heartbeat response body.
type HeartbeatResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// LogsResponse is the /logs response body.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

// CloudInitResponse is the /cloud-init response body.
type CloudInitResponse struct {
	Status       string   `json:"status"`
	Done         bool     `json:"done"`
	Errors       []string `json:"errors"`
	BootFinished *string  `json:"boot_finished,omitempty"`
}

// SetupAcceptedResponse is returned by POST /project/setup.
type SetupAcceptedResponse struct {
	Status string `json:"status"`
}

// ActivityEntry is one row of the supplemented /activity ring buffer.
type ActivityEntry struct {
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityResponse is the /activity response body.
type ActivityResponse struct {
	Entries []ActivityEntry `json:"entries"`
	Count   int             `json:"count"`
}

// ErrorResponse is the uniform error envelope, including the 401
// "unauthorized" shape spec.md §6 requires.
type ErrorResponse struct {
	Error string `json:"error"`
}

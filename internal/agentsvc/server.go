// Package agentsvc is the HTTP service that runs on every provisioned VM:
// the gin router, the auth middleware, the setup executor, and the idle
// watchdog described in spec.md §4.6. The router/middleware shape —
// gin.New() + gin.Recovery() + a zerolog request logger, route groups
// registered against a handlers struct holding its collaborators by
// pointer — is the teacher's own control-plane/api and
// control-plane/cmd/control-plane/main.go idiom, generalized from VM CRUD
// to the Agent's endpoint table.
package agentsvc

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/spuff/spuff/pkg/agentapi"
)

// Config configures a Server. Token and Version are fixed at startup;
// everything else can be overridden in tests.
type Config struct {
	Token               string
	Version             string
	ProjectJSONPath     string
	ProjectStatusPath   string
	BootstrapStatusPath string
	ScriptLogDir        string
	IdleTimeout         time.Duration
	LogAllowlistDir     string
}

// Server holds every piece of mutable Agent state: the last-activity
// clock the idle watchdog reads, the destroy-requested bit the Controller
// polls for, the activity ring buffer, and the setup executor.
type Server struct {
	cfg       Config
	startedAt time.Time
	hostname  string

	lastActivityUnixNano atomic.Int64
	destroyRequested     atomic.Bool

	activity *activityLog
	setup    *SetupExecutor
	metrics  *metricsSampler

	mu          sync.RWMutex
	projectSpec *agentapi.ProjectSpec
}

// NewServer constructs a Server and loads the project spec embedded at
// cfg.ProjectJSONPath, if present.
func NewServer(cfg Config) (*Server, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	s := &Server{
		cfg:       cfg,
		startedAt: time.Now(),
		hostname:  hostname,
		activity:  newActivityLog(200),
		metrics:   newMetricsSampler(),
	}
	s.lastActivityUnixNano.Store(time.Now().UnixNano())

	spec, err := loadProjectSpec(cfg.ProjectJSONPath)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load embedded project spec")
	} else {
		s.projectSpec = spec
	}

	s.setup = NewSetupExecutor(cfg.ProjectStatusPath, cfg.ScriptLogDir, s.metrics)
	return s, nil
}

func (s *Server) projectSpecCopy() *agentapi.ProjectSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectSpec
}

// touchActivity records that an authenticated call (other than /heartbeat)
// happened, resetting the idle watchdog's clock, per spec.md §4.6.
func (s *Server) touchActivity(action, detail string) {
	s.lastActivityUnixNano.Store(time.Now().UnixNano())
	s.activity.record(action, detail)
}

func (s *Server) idleSeconds() int64 {
	last := time.Unix(0, s.lastActivityUnixNano.Load())
	return int64(time.Since(last).Seconds())
}

// Router builds the gin engine with every route from spec.md §4.6/§6
// registered, unauthenticated /health aside.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", s.handleHealth)

	authed := r.Group("/")
	authed.Use(s.requireToken())
	authed.GET("/status", s.handleStatus)
	authed.GET("/metrics", s.handleMetrics)
	authed.GET("/metrics/prom", s.handleMetricsProm)
	authed.GET("/processes", s.handleProcesses)
	authed.POST("/exec", s.handleExec)
	authed.POST("/heartbeat", s.handleHeartbeat)
	authed.GET("/logs", s.handleLogs)
	authed.GET("/cloud-init", s.handleCloudInit)
	authed.GET("/project/config", s.handleProjectConfig)
	authed.GET("/project/status", s.handleProjectStatus)
	authed.POST("/project/setup", s.handleProjectSetup)
	authed.POST("/project/repos/clone", s.handleCloneRepositories)
	authed.GET("/activity", s.handleActivity)

	return r
}

// requireToken enforces spec.md §4.6's auth rule: every route in this
// group requires X-Spuff-Token to equal the configured token, compared in
// constant time so a mistyped token can't be distinguished by timing.
// Every authenticated call except /heartbeat also touches the activity
// clock; /heartbeat does its own touch with a distinct action label.
func (s *Server) requireToken() gin.HandlerFunc {
	token := []byte(s.cfg.Token)
	return func(c *gin.Context) {
		supplied := []byte(c.GetHeader(agentapi.AgentTokenHeader))
		if len(supplied) != len(token) || subtle.ConstantTimeCompare(supplied, token) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, agentapi.ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
		if c.Request.URL.Path != "/heartbeat" {
			s.touchActivity(c.Request.Method+" "+c.Request.URL.Path, "")
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Run starts the HTTP server bound to addr (127.0.0.1:7575 per spec.md
// §4.6) and blocks until ctx is cancelled, then shuts down gracefully —
// the same signal-driven shutdown shape as the teacher's own main.go.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("spuff-agent listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go s.runWatchdog(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// DestroyRequested reports the "request destroy" bit the Controller polls
// for (the idle self-destruction design recorded in DESIGN.md).
func (s *Server) DestroyRequested() bool { return s.destroyRequested.Load() }

func setupLogging(development bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if development {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

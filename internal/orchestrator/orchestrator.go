// Package orchestrator drives the Controller's up/down state machine,
// wiring together the provider adapter, the local instance store, the
// SSH/mosh connector, and the volume layer. The step-by-step,
// log-then-persist-then-advance shape follows the teacher's own
// control-plane/internal/vm.Manager.provisionVM: named steps, a zerolog
// line at each, persisting progress before moving on.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/spuff/spuff/internal/cloudinit"
	"github.com/spuff/spuff/internal/config"
	"github.com/spuff/spuff/internal/provider"
	"github.com/spuff/spuff/internal/sshconn"
	"github.com/spuff/spuff/internal/store"
	"github.com/spuff/spuff/internal/volume"
	"github.com/spuff/spuff/pkg/agentapi"
)

// State names every node of the up-pipeline state machine in spec.md §4.3.
type State int

const (
	StateStart State = iota
	StateRenderingDocument
	StateRequestingCreate
	StateAwaitingActive
	StateAwaitingSSHPort
	StateAwaitingSSHLogin
	StateAgentUpload
	StateAwaitingBootstrapSync
	StateSeedingVolumes
	StateMountingVolumes
	StateEstablishingTunnels
	StateInteractive
	StateEnd
)

var stateNames = [...]string{
	"Start", "RenderingDocument", "RequestingCreate", "AwaitingActive",
	"AwaitingSshPort", "AwaitingSshLogin", "AgentUpload",
	"AwaitingBootstrapSync", "SeedingVolumes", "MountingVolumes",
	"EstablishingTunnels", "Interactive", "End",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// ProgressFunc is notified on every state transition, letting the CLI
// render a progress indicator without the orchestrator importing any UI
// concern.
type ProgressFunc func(State)

// Options configures a single up invocation.
type Options struct {
	Size            string
	Region          string
	Dev             bool
	NoConnect       bool
	DevAgentBinary  string
	AgentBinaryURL  string
	AIToolsOverride *agentapi.AIToolsSpec
	SnapshotImageID string
	AgentVersion    string

	AdminUser    string
	SSHPublicKey string
	SSHKeyPath   string
	Progress     ProgressFunc
}

// DownOptions configures a teardown.
type DownOptions struct {
	Snapshot bool
	Force    bool
	Progress ProgressFunc
}

// Orchestrator holds every collaborator the up/down pipelines need.
type Orchestrator struct {
	Provider     provider.Provider
	ProviderName string
	Store        *store.Store
	VolumeState  *volume.MountState
	Log          zerolog.Logger
}

func (o *Orchestrator) report(p ProgressFunc, s State) {
	if p != nil {
		p(s)
	}
	o.Log.Info().Str("state", s.String()).Msg("orchestrator transition")
}

// Up runs the full create→wait-ip→wait-ssh→wait-login→bootstrap→connect
// pipeline described in spec.md §4.3 and returns the persisted instance
// along with the per-instance Agent bearer token baked into its first-boot
// document, which the caller must persist for later `spuff agent`/`exec`
// calls since the Agent never hands it back over the wire.
func (o *Orchestrator) Up(ctx context.Context, spec *agentapi.ProjectSpec, opts Options) (*store.LocalInstance, string, error) {
	if opts.AIToolsOverride != nil {
		spec.AITools = *opts.AIToolsOverride
	}

	if existing, err := o.Store.GetActiveInstance(ctx); err != nil {
		return nil, "", fmt.Errorf("check for active instance: %w", err)
	} else if existing != nil {
		return nil, "", fmt.Errorf("instance %s is already active; run 'spuff down' first", existing.Name)
	}

	o.report(opts.Progress, StateRenderingDocument)
	name := fmt.Sprintf("spuff-%s", uuid.New().String()[:8])

	agentToken, agentTokenHash, err := config.GenerateAgentToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate agent token: %w", err)
	}
	if override := os.Getenv("SPUFF_AGENT_TOKEN"); override != "" {
		agentToken = override
	}
	o.Log.Debug().Str("agent_token_hash", agentTokenHash).Msg("generated agent token")

	projectJSON, err := cloudinit.BuildProjectJSON(spec)
	if err != nil {
		return nil, "", fmt.Errorf("serialize project spec: %w", err)
	}

	agentURL := opts.AgentBinaryURL
	if agentURL == "" {
		version := opts.AgentVersion
		if version == "" {
			version = "latest"
		}
		agentURL = fmt.Sprintf("https://github.com/spuff/spuff/releases/download/%s/spuff-agent", version)
	}

	doc, err := cloudinit.Build(cloudinit.Data{
		InstanceName: name,
		AdminUser:    opts.AdminUser,
		SSHPublicKey: opts.SSHPublicKey,
		AgentToken:   agentToken,
		AgentURL:     agentURL,
		AgentVersion: opts.AgentVersion,
		ProjectJSON:  projectJSON,
	})
	if err != nil {
		return nil, "", fmt.Errorf("render first-boot document: %w", err)
	}

	req := provider.NewInstanceRequest(name, opts.Region, opts.Size).WithUserData(doc)
	if opts.SnapshotImageID != "" {
		req = req.WithImage(provider.SnapshotImage(opts.SnapshotImageID))
	}

	o.report(opts.Progress, StateRequestingCreate)
	inst, err := o.Provider.CreateInstance(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("create instance: %w", err)
	}

	o.report(opts.Progress, StateAwaitingActive)
	inst, err = o.Provider.WaitReady(ctx, inst.ID)
	if err != nil {
		return nil, "", fmt.Errorf("wait for instance ready: %w", err)
	}

	local := &store.LocalInstance{
		ID:        inst.ID,
		Name:      name,
		IP:        inst.IP.String(),
		Provider:  o.ProviderName,
		Region:    opts.Region,
		Size:      opts.Size,
		CreatedAt: inst.CreatedAt,
	}
	if err := o.Store.SaveInstance(ctx, local); err != nil {
		return nil, "", fmt.Errorf("persist instance: %w", err)
	}

	target := sshconn.Target{IP: local.IP, User: opts.AdminUser, KeyPath: opts.SSHKeyPath}

	o.report(opts.Progress, StateAwaitingSSHPort)
	if err := sshconn.WaitTCP(ctx, target, 5*time.Minute); err != nil {
		return local, agentToken, fmt.Errorf("wait for ssh port: %w", err)
	}

	o.report(opts.Progress, StateAwaitingSSHLogin)
	if err := sshconn.WaitLogin(ctx, target, 5*time.Minute); err != nil {
		return local, agentToken, fmt.Errorf("wait for ssh login: %w", err)
	}

	if opts.Dev && opts.DevAgentBinary != "" {
		o.report(opts.Progress, StateAgentUpload)
		if err := uploadDevAgent(ctx, target, opts.DevAgentBinary); err != nil {
			return local, agentToken, fmt.Errorf("upload dev agent binary: %w", err)
		}
	}

	o.report(opts.Progress, StateAwaitingBootstrapSync)
	if err := awaitBootstrapSync(ctx, target, 10*time.Minute); err != nil {
		return local, agentToken, err
	}

	if len(spec.Volumes) > 0 {
		o.report(opts.Progress, StateSeedingVolumes)
		if err := seedVolumes(ctx, target, spec.Volumes); err != nil {
			return local, agentToken, fmt.Errorf("seed volumes: %w", err)
		}

		o.report(opts.Progress, StateMountingVolumes)
		if err := mountVolumes(ctx, target, name, spec.Volumes, o.VolumeState); err != nil {
			return local, agentToken, fmt.Errorf("mount volumes: %w", err)
		}
	}

	o.report(opts.Progress, StateEstablishingTunnels)
	o.report(opts.Progress, StateInteractive)
	if !opts.NoConnect {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			o.Log.Info().Str("ip", local.IP).Msg("stdin is not a terminal, skipping interactive connect; use 'spuff ssh' to connect later")
			o.report(opts.Progress, StateEnd)
			return local, agentToken, nil
		}
		if err := sshconn.ConnectInteractive(target, spec.Ports); err != nil {
			return local, agentToken, fmt.Errorf("connect interactive session: %w", err)
		}
	}

	o.report(opts.Progress, StateEnd)
	return local, agentToken, nil
}

// Down tears an active instance down: run the pre_down hook if reachable,
// force-unmount every recorded volume for it, ask the provider to destroy
// it, then remove the store row. Per spec.md §4.7/§5, unmount precedes
// destroy.
func (o *Orchestrator) Down(ctx context.Context, opts DownOptions, adminUser, keyPath, preDownHook string) error {
	active, err := o.Store.GetActiveInstance(ctx)
	if err != nil {
		return fmt.Errorf("resolve active instance: %w", err)
	}
	if active == nil {
		return fmt.Errorf("no active instance")
	}

	target := sshconn.Target{IP: active.IP, User: adminUser, KeyPath: keyPath}

	if preDownHook != "" {
		if _, _, _, err := sshconn.RunCommand(ctx, target, preDownHook, 60*time.Second); err != nil && !opts.Force {
			o.Log.Warn().Err(err).Msg("pre_down hook failed")
		}
	}

	records, err := o.VolumeState.ForInstance(active.Name)
	if err != nil {
		return fmt.Errorf("list volume mounts: %w", err)
	}
	// Unmount failures are never fatal here: a destroyed VM routinely leaves
	// a hanging FUSE endpoint behind, and down must still empty volume-state
	// and destroy the instance regardless (spec.md §7's escalation path).
	for _, rec := range records {
		if err := volume.Unmount(ctx, rec.MountPoint); err != nil {
			o.Log.Warn().Err(err).Str("mount_point", rec.MountPoint).Msg("unmount failed, continuing")
		}
		if err := o.VolumeState.Remove(rec.MountPoint); err != nil {
			o.Log.Warn().Err(err).Str("mount_point", rec.MountPoint).Msg("failed to clear volume state row")
		}
	}

	if opts.Snapshot {
		if _, err := o.Provider.CreateSnapshot(ctx, active.ID, active.Name+"-snapshot"); err != nil {
			if !opts.Force {
				return fmt.Errorf("create snapshot: %w", err)
			}
			o.Log.Warn().Err(err).Msg("snapshot failed, continuing with destroy")
		}
	}

	if err := o.Provider.DestroyInstance(ctx, active.ID); err != nil {
		return fmt.Errorf("destroy instance: %w", err)
	}

	return o.Store.RemoveInstance(ctx, active.ID)
}

func uploadDevAgent(ctx context.Context, target sshconn.Target, localBinary string) error {
	if err := sshconn.ScpUpload(ctx, target, localBinary, "/tmp/spuff-agent", 60*time.Second); err != nil {
		return err
	}
	elevate := "sudo mkdir -p /opt/spuff/bin && sudo mv /tmp/spuff-agent /opt/spuff/bin/spuff-agent && sudo chmod 755 /opt/spuff/bin/spuff-agent && sudo systemctl restart spuff-agent"
	exitCode, _, stderr, err := sshconn.RunCommand(ctx, target, elevate, 30*time.Second)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("elevate dev agent binary: %s", stderr)
	}
	return nil
}

func awaitBootstrapSync(ctx context.Context, target sshconn.Target, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		exitCode, stdout, _, err := sshconn.RunCommand(ctx, target, "cat /opt/spuff/bootstrap.status", 10*time.Second)
		if err == nil && exitCode == 0 {
			switch strings.TrimSpace(stdout) {
			case "ready":
				return nil
			case "failed":
				_, tail, _, _ := sshconn.RunCommand(ctx, target, "tail -n 40 /var/log/cloud-init-output.log", 10*time.Second)
				return fmt.Errorf("bootstrap failed:\n%s", tail)
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for bootstrap: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func seedVolumes(ctx context.Context, target sshconn.Target, volumes []agentapi.Volume) error {
	for _, v := range volumes {
		if err := volume.Seed(ctx, target, v.Source, v.Target, 5*time.Minute); err != nil {
			return fmt.Errorf("seed volume %s: %w", v.Target, err)
		}
	}
	return nil
}

func mountVolumes(ctx context.Context, target sshconn.Target, instanceName string, volumes []agentapi.Volume, state *volume.MountState) error {
	if err := volume.CheckFuseAvailable(); err != nil {
		return err
	}

	var mounter volume.Mounter
	for _, v := range volumes {
		resolved, err := volume.Resolve(instanceName, v)
		if err != nil {
			return err
		}
		if _, err := mounter.Mount(ctx, target, resolved.Target, resolved.MountPoint, 2*time.Minute); err != nil {
			return fmt.Errorf("mount %s: %w", resolved.Target, err)
		}
		if err := state.Add(volume.Record{
			MountPoint:   resolved.MountPoint,
			RemotePath:   resolved.Target,
			InstanceName: instanceName,
			MountedAt:    time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("record mount %s: %w", resolved.MountPoint, err)
		}
	}
	return nil
}

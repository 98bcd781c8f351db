// Package volume resolves volume specs into concrete mount plans, seeds
// remote targets over rsync, and drives SSHFS mount/unmount through the
// sshconn package's subprocess primitives. The mount-point resolution
// priority, the rsync-then-sshfs pipeline, and the escalating unmount
// sequence all follow spec.md §4.7; the atomic-rewrite state file follows
// the teacher's own pattern for small local JSON documents
// (control-plane/internal/vm/localstate.go).
package volume

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spuff/spuff/internal/provider"
	"github.com/spuff/spuff/internal/sshconn"
	"github.com/spuff/spuff/pkg/agentapi"
)

// Mount is a resolved, ready-to-execute volume plan: the remote path to
// seed and mount, and the local directory it will appear under.
type Mount struct {
	Target     string
	MountPoint string
	Bidirectional bool
}

// dataDir is the per-user directory auto-generated mount points live
// under, matching spec.md §4.7's "auto-generated path under a per-user
// data directory."
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "spuff", "mounts"), nil
}

// Resolve turns a declared agentapi.Volume into a Mount, applying the
// three-tier priority from spec.md §4.7: an explicit mount_point wins;
// otherwise a declared source is used bidirectionally; otherwise a path is
// auto-generated under the per-user mounts directory, keyed by instance
// name and target.
func Resolve(instanceName string, v agentapi.Volume) (Mount, error) {
	if v.Target == "" {
		return Mount{}, fmt.Errorf("volume target is required")
	}

	if v.MountPoint != "" {
		abs, err := filepath.Abs(v.MountPoint)
		if err != nil {
			return Mount{}, fmt.Errorf("resolve mount_point %q: %w", v.MountPoint, err)
		}
		return Mount{Target: v.Target, MountPoint: abs, Bidirectional: v.Source != ""}, nil
	}

	if v.Source != "" {
		abs, err := filepath.Abs(v.Source)
		if err != nil {
			return Mount{}, fmt.Errorf("resolve source %q: %w", v.Source, err)
		}
		return Mount{Target: v.Target, MountPoint: abs, Bidirectional: true}, nil
	}

	base, err := dataDir()
	if err != nil {
		return Mount{}, err
	}
	auto := filepath.Join(base, instanceName, sanitizeTargetPath(v.Target))
	return Mount{Target: v.Target, MountPoint: auto, Bidirectional: false}, nil
}

func sanitizeTargetPath(target string) string {
	clean := filepath.ToSlash(filepath.Clean(target))
	clean = strings.TrimLeft(clean, "./")
	if clean == "" {
		return "root"
	}
	return filepath.FromSlash(clean)
}

// CheckFuseAvailable reports whether the local SSHFS prerequisites are
// installed, returning a provider.Error with a platform-specific install
// hint when they are not — spec.md §4.7 requires this surface explicitly.
func CheckFuseAvailable() error {
	if _, err := exec.LookPath("sshfs"); err != nil {
		return provider.NewInvalidConfigError("volume", installHint())
	}
	switch runtime.GOOS {
	case "darwin":
		if _, err := os.Stat("/Library/Filesystems/macfuse.fs"); err != nil {
			return provider.NewInvalidConfigError("volume", installHint())
		}
	case "linux":
		if _, err := exec.LookPath("fusermount"); err != nil {
			return provider.NewInvalidConfigError("volume", installHint())
		}
	}
	return nil
}

func installHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "sshfs requires macFUSE and sshfs; install with: brew install macfuse gromgit/fuse/sshfs-mac"
	case "linux":
		return "sshfs requires fuse and sshfs; install with: sudo apt install fuse sshfs (or your distro's equivalent)"
	default:
		return "sshfs is required for volume mounts; install it for your platform"
	}
}

// Seed ensures the remote target directory exists and rsyncs the local
// source into it. It is a no-op for volumes with no local source (pure
// one-directional mounts resolve a mount point but have nothing to push).
func Seed(ctx context.Context, tgt sshconn.Target, localSource, remoteTarget string, timeout time.Duration) error {
	if localSource == "" {
		return nil
	}

	mkdirCmd := fmt.Sprintf("mkdir -p %s", shellQuote(remoteTarget))
	exitCode, _, stderr, err := sshconn.RunCommand(ctx, tgt, mkdirCmd, 30*time.Second)
	if err != nil {
		return fmt.Errorf("create remote volume target: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("create remote volume target: %s", stderr)
	}

	return rsync(ctx, tgt, localSource, remoteTarget, timeout)
}

func rsync(ctx context.Context, tgt sshconn.Target, localSource, remoteTarget string, timeout time.Duration) error {
	sshCmd := "ssh -o BatchMode=yes -o StrictHostKeyChecking=accept-new -o UserKnownHostsFile=/dev/null -o LogLevel=ERROR"
	if tgt.KeyPath != "" {
		sshCmd += " -i " + tgt.KeyPath
	}

	args := []string{
		"-az", "--delete-excluded",
		"-e", sshCmd,
		ensureTrailingSlash(localSource),
		fmt.Sprintf("%s@%s:%s", tgt.User, tgt.IP, remoteTarget),
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "rsync", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rsync %s: %w: %s", localSource, err, output)
	}
	return nil
}

func ensureTrailingSlash(path string) string {
	if len(path) == 0 || path[len(path)-1] == '/' {
		return path
	}
	return path + "/"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// MountState describes where the local volume-state document lives.
type MountState struct {
	path string
}

// OpenMountState opens the volume-state document at the given path. It
// touches nothing on disk: the parent directory and the document itself
// are created lazily on first write.
func OpenMountState(path string) *MountState {
	return &MountState{path: path}
}

// Record is a single VolumeMount row as described in spec.md §4.3.
type Record struct {
	MountPoint   string    `json:"mount_point"`
	RemotePath   string    `json:"remote_path"`
	InstanceName string    `json:"instance_name"`
	MountedAt    time.Time `json:"mounted_at"`
}

type stateDocument struct {
	Mounts []Record `json:"mounts"`
}

// Load reads every recorded mount, returning an empty slice if the state
// file does not yet exist.
func (s *MountState) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read volume state: %w", err)
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse volume state: %w", err)
	}
	return doc.Mounts, nil
}

// Add records a successful mount, keyed by mount point, overwriting any
// stale entry for the same mount point.
func (s *MountState) Add(rec Record) error {
	existing, err := s.Load()
	if err != nil {
		return err
	}
	out := make([]Record, 0, len(existing)+1)
	for _, r := range existing {
		if r.MountPoint != rec.MountPoint {
			out = append(out, r)
		}
	}
	out = append(out, rec)
	return s.write(out)
}

// Remove deletes the row for mountPoint, matching spec.md's "removed on
// successful unmount" invariant.
func (s *MountState) Remove(mountPoint string) error {
	existing, err := s.Load()
	if err != nil {
		return err
	}
	out := make([]Record, 0, len(existing))
	for _, r := range existing {
		if r.MountPoint != mountPoint {
			out = append(out, r)
		}
	}
	return s.write(out)
}

// ForInstance returns every recorded mount for instanceName, the set
// `down` enumerates to drive force-unmount.
func (s *MountState) ForInstance(instanceName string) ([]Record, error) {
	all, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		if r.InstanceName == instanceName {
			out = append(out, r)
		}
	}
	return out, nil
}

// write performs an atomic whole-file rewrite: write to a temp file in the
// same directory, then rename over the target. This is the serialization
// discipline spec.md §5(c) requires for the local volume state file.
func (s *MountState) write(mounts []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create volume state directory: %w", err)
	}
	data, err := json.MarshalIndent(stateDocument{Mounts: mounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode volume state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write volume state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit volume state: %w", err)
	}
	return nil
}

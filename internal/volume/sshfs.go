package volume

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spuff/spuff/internal/sshconn"
)

// wrapperScript is the template for the temporary SSH wrapper sshfs's
// ssh_command option invokes, so that a key path containing spaces still
// survives argv splitting — spec.md §4.7 calls this out explicitly.
const wrapperScript = `#!/bin/sh
exec ssh -i "%s" -o StrictHostKeyChecking=accept-new -o UserKnownHostsFile=/dev/null -o BatchMode=yes "$@"
`

// Mounter drives sshfs mount/unmount for resolved volume plans.
type Mounter struct{}

// Mount creates the local mount point and invokes sshfs against
// tgt.User@tgt.IP:remoteTarget, using a generated SSH wrapper script so the
// key path can contain spaces. On success it returns the wrapper script
// path, which the caller should remove once the mount is torn down.
func (Mounter) Mount(ctx context.Context, tgt sshconn.Target, remoteTarget, mountPoint string, timeout time.Duration) (wrapperPath string, err error) {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return "", fmt.Errorf("create mount point %s: %w", mountPoint, err)
	}

	wrapperPath, err = writeWrapper(tgt.KeyPath)
	if err != nil {
		return "", err
	}

	args := []string{
		fmt.Sprintf("%s@%s:%s", tgt.User, tgt.IP, remoteTarget),
		mountPoint,
		"-o", "ssh_command=" + wrapperPath,
		"-o", "reconnect",
		"-o", "ServerAliveInterval=15",
	}
	args = append(args, platformMountOptions()...)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sshfs", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(wrapperPath)
		return "", fmt.Errorf("sshfs mount %s: %w: %s", mountPoint, err, output)
	}
	return wrapperPath, nil
}

func writeWrapper(keyPath string) (string, error) {
	f, err := os.CreateTemp("", "spuff-sshfs-wrapper-*.sh")
	if err != nil {
		return "", fmt.Errorf("create ssh wrapper: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, wrapperScript, keyPath); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write ssh wrapper: %w", err)
	}
	if err := f.Chmod(0o700); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("chmod ssh wrapper: %w", err)
	}
	return f.Name(), nil
}

func platformMountOptions() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-o", "volname=spuff", "-o", "defer_permissions"}
	default:
		return []string{"-o", "allow_other"}
	}
}

// Unmount tears down mountPoint, escalating on failure the way spec.md
// §4.7 requires: first a cooperative unmount, then a forced and/or lazy
// one. It is idempotent and hardened — a destroyed VM leaves a hanging
// FUSE endpoint, so every step is best-effort and failures here are
// reported only by the caller's final error, not by panicking partway.
func Unmount(ctx context.Context, mountPoint string) error {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if runtime.GOOS == "darwin" {
		return unmountDarwin(runCtx, mountPoint)
	}
	return unmountLinux(runCtx, mountPoint)
}

func unmountDarwin(ctx context.Context, mountPoint string) error {
	if err := run(ctx, "umount", mountPoint); err == nil {
		return nil
	}
	if err := run(ctx, "umount", "-f", mountPoint); err == nil {
		return nil
	}
	if err := run(ctx, "diskutil", "unmount", "force", mountPoint); err == nil {
		return nil
	}
	return fmt.Errorf("unmount %s: cooperative, forced, and diskutil-forced unmount all failed", mountPoint)
}

func unmountLinux(ctx context.Context, mountPoint string) error {
	if err := run(ctx, "fusermount", "-u", mountPoint); err == nil {
		return nil
	}
	if err := run(ctx, "fusermount", "-uz", mountPoint); err == nil {
		return nil
	}
	if err := run(ctx, "umount", "-l", mountPoint); err == nil {
		return nil
	}
	return fmt.Errorf("unmount %s: cooperative, lazy fusermount, and lazy umount all failed", mountPoint)
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, output)
	}
	return nil
}

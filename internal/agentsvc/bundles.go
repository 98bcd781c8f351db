package agentsvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spuff/spuff/pkg/agentapi"
)

// bundleInstaller is one language toolchain's install + version-probe
// commands, run via runGroupedShell as the agent's own user; steps that
// need root call sudo themselves. Any install failure marks that bundle
// failed; installBundle does not consult the required flag.
type bundleInstaller struct {
	install     string
	versionCmd  string
	required    bool
	installTime time.Duration
}

// bundleInstallers is the closed dispatch table backing spec.md §4.6's
// bundle phase, one entry per agentapi.AllBundles token. Install commands
// assume an Ubuntu base image with apt available, matching the cloud-init
// document's base OS.
var bundleInstallers = map[agentapi.Bundle]bundleInstaller{
	agentapi.BundleRust: {
		install:     `curl --proto '=https' --tlsv1.2 -sSf https://sh.rustup.rs | sh -s -- -y`,
		versionCmd:  `$HOME/.cargo/bin/rustc --version`,
		required:    true,
		installTime: 3 * time.Minute,
	},
	agentapi.BundleGo: {
		install:     `curl -fsSL https://go.dev/dl/go1.22.5.linux-amd64.tar.gz | sudo tar -C /usr/local -xz && echo 'export PATH=$PATH:/usr/local/go/bin' | sudo tee /etc/profile.d/spuff-go.sh`,
		versionCmd:  `/usr/local/go/bin/go version`,
		required:    true,
		installTime: 2 * time.Minute,
	},
	agentapi.BundlePython: {
		install:     `sudo apt-get update -qq && sudo apt-get install -y python3 python3-pip python3-venv`,
		versionCmd:  `python3 --version`,
		required:    true,
		installTime: 90 * time.Second,
	},
	agentapi.BundleNode: {
		install:     `curl -fsSL https://deb.nodesource.com/setup_20.x | sudo -E bash - && sudo apt-get install -y nodejs`,
		versionCmd:  `node --version`,
		required:    true,
		installTime: 2 * time.Minute,
	},
	agentapi.BundleElixir: {
		install:     `sudo apt-get update -qq && sudo apt-get install -y elixir`,
		versionCmd:  `elixir --version`,
		required:    false,
		installTime: 90 * time.Second,
	},
	agentapi.BundleJava: {
		install:     `sudo apt-get update -qq && sudo apt-get install -y openjdk-21-jdk-headless`,
		versionCmd:  `java --version`,
		required:    false,
		installTime: 2 * time.Minute,
	},
	agentapi.BundleZig: {
		install:     `curl -fsSL https://ziglang.org/download/0.13.0/zig-linux-x86_64-0.13.0.tar.xz | sudo tar -C /usr/local -xJ && sudo ln -sf /usr/local/zig-linux-x86_64-0.13.0/zig /usr/local/bin/zig`,
		versionCmd:  `zig version`,
		required:    false,
		installTime: time.Minute,
	},
	agentapi.BundleCpp: {
		install:     `sudo apt-get update -qq && sudo apt-get install -y build-essential cmake`,
		versionCmd:  `gcc --version`,
		required:    false,
		installTime: 90 * time.Second,
	},
	agentapi.BundleRuby: {
		install:     `sudo apt-get update -qq && sudo apt-get install -y ruby-full`,
		versionCmd:  `ruby --version`,
		required:    false,
		installTime: 90 * time.Second,
	},
}

// installBundle runs one bundle's install command, then its version probe.
// The returned BundleState always carries Name/Status; Version/Error are
// set only on success/failure respectively.
func installBundle(ctx context.Context, name string) agentapi.BundleState {
	state := agentapi.BundleState{Name: name, Status: agentapi.SetupInProgress}

	installer, ok := bundleInstallers[agentapi.Bundle(name)]
	if !ok {
		state.Status = agentapi.SetupFailed
		state.Error = fmt.Sprintf("unknown bundle %q", name)
		return state
	}

	timeout := installer.installTime
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	exitCode, _, stderr, err := runGroupedShell(ctx, installer.install, timeout)
	if err != nil || exitCode != 0 {
		state.Status = agentapi.SetupFailed
		state.Error = firstNonEmpty(strings.TrimSpace(stderr), errString(err))
		return state
	}

	if installer.versionCmd != "" {
		if _, vout, _, verr := runGroupedShell(ctx, installer.versionCmd, 15*time.Second); verr == nil {
			state.Version = strings.TrimSpace(firstLine(vout))
		}
	}

	state.Status = agentapi.SetupDone
	return state
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

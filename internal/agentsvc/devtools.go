package agentsvc

import (
	"context"
	"strings"
	"time"

	"github.com/spuff/spuff/pkg/agentapi"
)

// devtool is one AI coding CLI the Agent knows how to install and probe,
// backing the "AI CLI installation surface" supplement: --ai-tools on `up`
// threads an AIToolsSpec into the embedded ProjectSpec, and the setup
// executor installs whichever of these the mode selects.
type devtool struct {
	Name       string
	Install    string
	VersionCmd string
}

// devtoolRegistry is the closed set of AI CLIs the bundle bootstrap can
// install: claude-code, codex, opencode.
var devtoolRegistry = []devtool{
	{
		Name:       "claude-code",
		Install:    `curl -fsSL https://claude.ai/install.sh | bash`,
		VersionCmd: `claude --version`,
	},
	{
		Name:       "codex",
		Install:    `npm install -g @openai/codex`,
		VersionCmd: `codex --version`,
	},
	{
		Name:       "opencode",
		Install:    `curl -fsSL https://opencode.ai/install | bash`,
		VersionCmd: `opencode --version`,
	},
}

func findDevtool(name string) (devtool, bool) {
	for _, d := range devtoolRegistry {
		if d.Name == name {
			return d, true
		}
	}
	return devtool{}, false
}

// resolveAITools expands an AIToolsSpec into the concrete list of devtool
// names the setup executor should install.
func resolveAITools(spec agentapi.AIToolsSpec) []string {
	switch spec.Mode {
	case agentapi.AIToolsAll:
		names := make([]string, len(devtoolRegistry))
		for i, d := range devtoolRegistry {
			names[i] = d.Name
		}
		return names
	case agentapi.AIToolsList:
		return spec.List
	default:
		return nil
	}
}

// installDevtool runs one devtool's install command and returns a
// BundleState so it can be reported alongside language bundles in
// ProjectStatus under the "ai:" namespace.
func installDevtool(ctx context.Context, name string) agentapi.BundleState {
	state := agentapi.BundleState{Name: "ai:" + name, Status: agentapi.SetupInProgress}

	tool, ok := findDevtool(name)
	if !ok {
		state.Status = agentapi.SetupFailed
		state.Error = "unknown AI tool " + name
		return state
	}

	exitCode, _, stderr, err := runGroupedShell(ctx, tool.Install, 2*time.Minute)
	if err != nil || exitCode != 0 {
		state.Status = agentapi.SetupFailed
		state.Error = firstNonEmpty(strings.TrimSpace(stderr), errString(err))
		return state
	}

	if tool.VersionCmd != "" {
		if _, vout, _, verr := runGroupedShell(ctx, tool.VersionCmd, 15*time.Second); verr == nil {
			state.Version = strings.TrimSpace(firstLine(vout))
		}
	}

	state.Status = agentapi.SetupDone
	return state
}

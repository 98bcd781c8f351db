// Package projectspec loads a project's spuff.yaml (plus an optional
// spuff.secrets.yaml overlay) into the wire-level agentapi.ProjectSpec,
// resolving $VAR-style environment references along the way. The discovery
// and secrets-merge shape is grounded in original_source's
// project_config.go; the YAML decoding idiom (gopkg.in/yaml.v3, tagged
// defaults, a hand-rolled Unmarshaler for the ai_tools union) follows the
// same pattern the pack's YAML-consuming repos use.
package projectspec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/spuff/spuff/pkg/agentapi"
)

const (
	primaryFilename = "spuff.yaml"
	altFilename      = "spuff.yml"
	secretsFilename  = "spuff.secrets.yaml"
)

// Discover walks up from dir looking for spuff.yaml or spuff.yml, the way
// the original implementation's ProjectConfig::discover does. It returns
// "" if none is found before reaching the filesystem root.
func Discover(dir string) string {
	current, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		for _, name := range []string{primaryFilename, altFilename} {
			candidate := filepath.Join(current, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// rawConfig mirrors the on-disk spuff.yaml shape before env resolution.
type rawConfig struct {
	Version      string              `yaml:"version"`
	Name         string              `yaml:"name"`
	Resources    agentapi.Resources  `yaml:"resources"`
	Bundles      []string            `yaml:"bundles"`
	Packages     []string            `yaml:"packages"`
	Services     rawServices         `yaml:"services"`
	Repositories []agentapi.Repository `yaml:"repositories"`
	Env          map[string]string   `yaml:"env"`
	Setup        []string            `yaml:"setup"`
	Ports        []int               `yaml:"ports"`
	Volumes      []agentapi.Volume   `yaml:"volumes"`
	Hooks        agentapi.HooksSpec  `yaml:"hooks"`
	AITools      rawAITools          `yaml:"ai_tools"`
}

type rawServices struct {
	Enabled     *bool    `yaml:"enabled"`
	ComposeFile string   `yaml:"compose_file"`
	Profiles    []string `yaml:"profiles"`
}

// rawAITools accepts "all", "none", or an explicit list, matching the
// original's AiToolsConfig union.
type rawAITools struct {
	set  bool
	mode agentapi.AIToolsMode
	list []string
}

func (r *rawAITools) UnmarshalYAML(value *yaml.Node) error {
	r.set = true
	var scalar string
	if err := value.Decode(&scalar); err == nil {
		switch scalar {
		case "all":
			r.mode = agentapi.AIToolsAll
		case "none":
			r.mode = agentapi.AIToolsNone
		default:
			return fmt.Errorf("invalid ai_tools value %q, expected 'all', 'none', or a list", scalar)
		}
		return nil
	}

	var list []string
	if err := value.Decode(&list); err != nil {
		return fmt.Errorf("ai_tools must be 'all', 'none', or a list of tool names: %w", err)
	}
	r.mode = agentapi.AIToolsList
	r.list = list
	return nil
}

type secretsFile struct {
	Env map[string]string `yaml:"env"`
}

// Load reads path, merges an adjacent spuff.secrets.yaml if present, resolves
// $VAR-style references in env values against the process environment, and
// returns the resulting wire-level ProjectSpec.
func Load(path string) (*agentapi.ProjectSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}

	secretsPath := filepath.Join(filepath.Dir(path), secretsFilename)
	if _, err := os.Stat(secretsPath); err == nil {
		secretsContent, err := os.ReadFile(secretsPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", secretsFilename, err)
		}
		var secrets secretsFile
		if err := yaml.Unmarshal(secretsContent, &secrets); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", secretsFilename, err)
		}
		if raw.Env == nil {
			raw.Env = map[string]string{}
		}
		for k, v := range secrets.Env {
			raw.Env[k] = v
		}
	}

	resolvedEnv := make(map[string]string, len(raw.Env))
	for k, v := range raw.Env {
		resolvedEnv[k] = ResolveEnvValue(v, os.LookupEnv)
	}

	name := raw.Name
	if name == "" {
		name = filepath.Base(filepath.Dir(path))
	}

	servicesEnabled := true
	if raw.Services.Enabled != nil {
		servicesEnabled = *raw.Services.Enabled
	}
	composeFile := raw.Services.ComposeFile
	if composeFile == "" {
		composeFile = "docker-compose.yaml"
	}

	for _, b := range raw.Bundles {
		if !agentapi.ValidBundle(b) {
			return nil, fmt.Errorf("invalid %s: unknown bundle %q", filepath.Base(path), b)
		}
	}

	spec := &agentapi.ProjectSpec{
		Name:      name,
		Resources: raw.Resources,
		Bundles:   raw.Bundles,
		Packages:  raw.Packages,
		Services: agentapi.ServicesSpec{
			Enabled:     servicesEnabled,
			ComposeFile: composeFile,
			Profiles:    raw.Services.Profiles,
		},
		Repositories: raw.Repositories,
		Env:          resolvedEnv,
		Setup:        raw.Setup,
		Ports:        raw.Ports,
		Volumes:      raw.Volumes,
		Hooks:        raw.Hooks,
		AITools:      resolveAITools(raw.AITools),
	}
	return spec, nil
}

func resolveAITools(raw rawAITools) agentapi.AIToolsSpec {
	if !raw.set {
		return agentapi.AIToolsSpec{Mode: agentapi.AIToolsAll}
	}
	return agentapi.AIToolsSpec{Mode: raw.mode, List: raw.list}
}

// envRefPattern matches $$, ${NAME}, ${NAME:-DEFAULT}, and $NAME, per the
// controller-side substitution grammar.
var envRefPattern = regexp.MustCompile(`\$(\$|\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}|([A-Za-z_][A-Za-z0-9_]*))`)

// ResolveEnvValue substitutes $NAME / ${NAME} / ${NAME:-DEFAULT} references
// in value using lookup, and turns a literal "$$" into "$". An unset name
// without a default resolves to the empty string.
func ResolveEnvValue(value string, lookup func(string) (string, bool)) string {
	return envRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		groups := envRefPattern.FindStringSubmatch(match)
		if groups[1] == "$" {
			return "$"
		}
		name := groups[2]
		hasDefault := groups[3] != ""
		def := groups[4]
		if name == "" {
			name = groups[5]
		}
		if v, ok := lookup(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// Package agentapi is the wire schema shared by the Controller and the
// Agent. Neither side imports the other; both import this package, breaking
// the dependency cycle described in spuff's design notes.
package agentapi

import "time"

// Bundle is a closed set of named language-toolchain installers the Agent
// knows how to run. Unknown tokens are rejected at project-spec load time on
// the controller, not at the Agent.
type Bundle string

const (
	BundleRust   Bundle = "rust"
	BundleGo     Bundle = "go"
	BundlePython Bundle = "python"
	BundleNode   Bundle = "node"
	BundleElixir Bundle = "elixir"
	BundleJava   Bundle = "java"
	BundleZig    Bundle = "zig"
	BundleCpp    Bundle = "cpp"
	BundleRuby   Bundle = "ruby"
)

// AllBundles lists every token the Agent's setup executor accepts.
var AllBundles = []Bundle{
	BundleRust, BundleGo, BundlePython, BundleNode,
	BundleElixir, BundleJava, BundleZig, BundleCpp, BundleRuby,
}

// ValidBundle reports whether token is one of the closed set of bundles.
func ValidBundle(token string) bool {
	for _, b := range AllBundles {
		if string(b) == token {
			return true
		}
	}
	return false
}

// AIToolsMode selects which AI coding CLIs the setup executor installs.
type AIToolsMode string

const (
	AIToolsAll  AIToolsMode = "all"
	AIToolsNone AIToolsMode = "none"
	AIToolsList AIToolsMode = "list"
)

// Resources carries per-project size/region overrides. Weaker than CLI
// flags, stronger than global config, per spec.md §3.
type Resources struct {
	Size   string `json:"size,omitempty" yaml:"size,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// ServicesSpec configures docker-compose-driven services started during
// setup.
type ServicesSpec struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	ComposeFile string   `json:"compose_file,omitempty" yaml:"compose_file,omitempty"`
	Profiles    []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// Repository is either the GitHub short form ("owner/repo") or the full
// form with an explicit URL/path/branch. Exactly one of ShortForm or URL is
// set after decode; Resolve fills in the defaults spec.md §3 describes.
type Repository struct {
	ShortForm string `json:"-" yaml:"-"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Branch    string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// UnmarshalYAML accepts either a bare "owner/repo" scalar or a mapping with
// url/path/branch.
func (r *Repository) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var short string
	if err := unmarshal(&short); err == nil {
		r.ShortForm = short
		return nil
	}

	type full struct {
		URL    string `yaml:"url"`
		Path   string `yaml:"path,omitempty"`
		Branch string `yaml:"branch,omitempty"`
	}
	var f full
	if err := unmarshal(&f); err != nil {
		return err
	}
	r.URL, r.Path, r.Branch = f.URL, f.Path, f.Branch
	return nil
}

// MarshalJSON always emits the full form, so the Agent never needs to know
// about the short-form sugar.
func (r Repository) MarshalJSON() ([]byte, error) {
	resolved := r.Resolve("")
	type full struct {
		URL    string `json:"url"`
		Path   string `json:"path,omitempty"`
		Branch string `json:"branch,omitempty"`
	}
	return marshalJSON(full{URL: resolved.URL, Path: resolved.Path, Branch: resolved.Branch})
}

// UnmarshalJSON mirrors MarshalJSON's full-form-only wire shape.
func (r *Repository) UnmarshalJSON(data []byte) error {
	type full struct {
		URL    string `json:"url"`
		Path   string `json:"path,omitempty"`
		Branch string `json:"branch,omitempty"`
	}
	var f full
	if err := unmarshalJSON(data, &f); err != nil {
		return err
	}
	r.URL, r.Path, r.Branch = f.URL, f.Path, f.Branch
	return nil
}

// ResolvedRepository is the full form after short-form expansion.
type ResolvedRepository struct {
	URL    string
	Path   string
	Branch string
}

// Resolve expands the GitHub short form ("owner/repo") into its full URL and
// default clone path (~/projects/<repo>), per spec.md §3.
func (r Repository) Resolve(projectsDir string) ResolvedRepository {
	if r.ShortForm != "" {
		name := lastPathSegment(r.ShortForm)
		path := r.Path
		if path == "" && projectsDir != "" {
			path = projectsDir + "/" + name
		}
		return ResolvedRepository{
			URL:    "https://github.com/" + r.ShortForm + ".git",
			Path:   path,
			Branch: r.Branch,
		}
	}

	path := r.Path
	if path == "" && projectsDir != "" {
		path = projectsDir + "/" + repoNameFromURL(r.URL)
	}
	return ResolvedRepository{URL: r.URL, Path: path, Branch: r.Branch}
}

// HooksSpec carries shell code run at fixed points in the lifecycle.
type HooksSpec struct {
	PostUp  string `json:"post_up,omitempty" yaml:"post_up,omitempty"`
	PreDown string `json:"pre_down,omitempty" yaml:"pre_down,omitempty"`
}

// Volume declares a bidirectional (by default) mount between a local
// directory and a path on the VM.
type Volume struct {
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
	Target     string `json:"target" yaml:"target"`
	MountPoint string `json:"mount_point,omitempty" yaml:"mount_point,omitempty"`
}

// ProjectSpec is the declarative, per-project description embedded verbatim
// (after env resolution) into the first-boot document at
// /opt/spuff/project.json. See spec.md §3.
type ProjectSpec struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Resources    Resources         `json:"resources,omitempty" yaml:"resources,omitempty"`
	Bundles      []string          `json:"bundles,omitempty" yaml:"bundles,omitempty"`
	Packages     []string          `json:"packages,omitempty" yaml:"packages,omitempty"`
	Services     ServicesSpec      `json:"services,omitempty" yaml:"services,omitempty"`
	Repositories []Repository      `json:"repositories,omitempty" yaml:"repositories,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Setup        []string          `json:"setup,omitempty" yaml:"setup,omitempty"`
	Ports        []int             `json:"ports,omitempty" yaml:"ports,omitempty"`
	Volumes      []Volume          `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Hooks        HooksSpec         `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	AITools      AIToolsSpec       `json:"ai_tools,omitempty" yaml:"ai_tools,omitempty"`
}

// AIToolsSpec records which AI coding CLIs to install; see SPEC_FULL.md's
// "AI CLI installation surface" supplement.
type AIToolsSpec struct {
	Mode AIToolsMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	List []string    `json:"list,omitempty" yaml:"list,omitempty"`
}

// DefaultProjectsDir is where short-form repositories clone to by default.
const DefaultProjectsDir = "~/projects"

// BootstrapStatus is the one of {unknown, running, ready, failed} value
// written atomically to /opt/spuff/bootstrap.status.
type BootstrapStatus string

const (
	BootstrapUnknown BootstrapStatus = "unknown"
	BootstrapRunning BootstrapStatus = "running"
	BootstrapReady   BootstrapStatus = "ready"
	BootstrapFailed  BootstrapStatus = "failed"
)

// SetupStatus is the lifecycle of one setup-executor step.
type SetupStatus string

const (
	SetupPending    SetupStatus = "pending"
	SetupInProgress SetupStatus = "in_progress"
	SetupDone       SetupStatus = "done"
	SetupFailed     SetupStatus = "failed"
	SetupSkipped    SetupStatus = "skipped"
)

// BundleState is one bundle's progress, as reported by /project/status.
type BundleState struct {
	Name    string      `json:"name"`
	Status  SetupStatus `json:"status"`
	Version string      `json:"version,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PackagesState is the system-package installation phase's progress.
type PackagesState struct {
	Status    SetupStatus `json:"status"`
	Installed []string    `json:"installed"`
	Failed    []string    `json:"failed"`
}

// ContainerState reports one docker-compose service container.
type ContainerState struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Port   int    `json:"port,omitempty"`
}

// ServicesState is the docker-compose phase's progress.
type ServicesState struct {
	Status     SetupStatus      `json:"status"`
	Containers []ContainerState `json:"containers"`
}

// RepositoryState reports one repository's clone progress.
type RepositoryState struct {
	URL    string      `json:"url"`
	Path   string      `json:"path"`
	Status SetupStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// ScriptState reports one `setup` command's execution progress.
type ScriptState struct {
	Command  string      `json:"command"`
	Status   SetupStatus `json:"status"`
	ExitCode *int        `json:"exit_code,omitempty"`
}

// ProjectStatus is the live setup-executor state served at
// /project/status.
type ProjectStatus struct {
	Started      bool              `json:"started"`
	Completed    bool              `json:"completed"`
	Bundles      []BundleState     `json:"bundles"`
	Packages     PackagesState     `json:"packages"`
	Services     ServicesState     `json:"services"`
	Repositories []RepositoryState `json:"repositories"`
	Scripts      []ScriptState     `json:"scripts"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

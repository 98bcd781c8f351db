package projectspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spuff/spuff/pkg/agentapi"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSimpleConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "spuff.yaml", `
version: "1"
name: my-project
bundles:
  - rust
  - python
packages:
  - postgresql-client
ports:
  - 3000
  - 8080
`)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.Name != "my-project" {
		t.Errorf("Name = %q, want my-project", spec.Name)
	}
	if len(spec.Bundles) != 2 || spec.Bundles[0] != "rust" {
		t.Errorf("Bundles = %v", spec.Bundles)
	}
	if len(spec.Ports) != 2 || spec.Ports[0] != 3000 {
		t.Errorf("Ports = %v", spec.Ports)
	}
}

func TestLoadRepositoriesMixedForm(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "spuff.yaml", `
repositories:
  - owner/repo
  - url: git@github.com:empresa/backend.git
    path: ~/projects/backend
    branch: develop
`)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(spec.Repositories) != 2 {
		t.Fatalf("expected 2 repositories, got %d", len(spec.Repositories))
	}
	if spec.Repositories[0].ShortForm != "owner/repo" {
		t.Errorf("Repositories[0].ShortForm = %q", spec.Repositories[0].ShortForm)
	}
	resolved := spec.Repositories[1].Resolve("")
	if resolved.URL != "git@github.com:empresa/backend.git" || resolved.Branch != "develop" {
		t.Errorf("Resolve() = %+v", resolved)
	}
}

func TestLoadSecretsOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "spuff.yaml", `
env:
  DATABASE_URL: postgres://localhost/dev
`)
	writeTemp(t, dir, "spuff.secrets.yaml", `
env:
  API_KEY: super-secret
`)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.Env["DATABASE_URL"] != "postgres://localhost/dev" {
		t.Errorf("Env[DATABASE_URL] = %q", spec.Env["DATABASE_URL"])
	}
	if spec.Env["API_KEY"] != "super-secret" {
		t.Errorf("Env[API_KEY] = %q", spec.Env["API_KEY"])
	}
}

func TestResolveEnvValueSimple(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "TEST_VAR" {
			return "hello", true
		}
		return "", false
	}
	if got := ResolveEnvValue("$TEST_VAR", lookup); got != "hello" {
		t.Errorf("ResolveEnvValue($TEST_VAR) = %q", got)
	}
}

func TestResolveEnvValueBraces(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "TEST_VAR2" {
			return "world", true
		}
		return "", false
	}
	if got := ResolveEnvValue("${TEST_VAR2}", lookup); got != "world" {
		t.Errorf("ResolveEnvValue(%q) = %q", "${TEST_VAR2}", got)
	}
}

func TestResolveEnvValueWithDefault(t *testing.T) {
	lookup := func(string) (string, bool) { return "", false }
	if got := ResolveEnvValue("${NONEXISTENT_VAR:-default_value}", lookup); got != "default_value" {
		t.Errorf("got %q, want default_value", got)
	}
}

func TestResolveEnvValueExistingWithDefault(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "EXISTING_VAR" {
			return "actual", true
		}
		return "", false
	}
	if got := ResolveEnvValue("${EXISTING_VAR:-default}", lookup); got != "actual" {
		t.Errorf("got %q, want actual", got)
	}
}

func TestResolveEnvValueUnsetWithoutDefault(t *testing.T) {
	lookup := func(string) (string, bool) { return "", false }
	if got := ResolveEnvValue("$MISSING", lookup); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestResolveEnvValueLiteralDollar(t *testing.T) {
	lookup := func(string) (string, bool) { return "", false }
	if got := ResolveEnvValue("price: $$5", lookup); got != "price: $5" {
		t.Errorf("got %q, want %q", got, "price: $5")
	}
}

func TestAIToolsDefaultIsAll(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "spuff.yaml", `
bundles:
  - go
`)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.AITools.Mode != agentapi.AIToolsAll {
		t.Errorf("AITools.Mode = %v, want AIToolsAll", spec.AITools.Mode)
	}
}

func TestAIToolsExplicitList(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "spuff.yaml", `
ai_tools:
  - claude-code
  - opencode
`)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if spec.AITools.Mode != agentapi.AIToolsList {
		t.Fatalf("AITools.Mode = %v, want AIToolsList", spec.AITools.Mode)
	}
	if len(spec.AITools.List) != 2 || spec.AITools.List[0] != "claude-code" {
		t.Errorf("AITools.List = %v", spec.AITools.List)
	}
}

func TestDiscoverWalksUpDirectories(t *testing.T) {
	root := t.TempDir()
	writeTemp(t, root, "spuff.yaml", "name: root-project\n")
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	found := Discover(nested)
	if found == "" {
		t.Fatal("expected to discover spuff.yaml from a nested directory")
	}
}

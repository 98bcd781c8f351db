package cloudinit

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spuff/spuff/pkg/agentapi"
)

func sampleData() Data {
	return Data{
		InstanceName: "spuff-abc123",
		AdminUser:    "coder",
		SSHPublicKey: "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIQ test@host",
		AgentToken:   "tok-deadbeef",
		AgentURL:     "https://example.com/spuff-agent",
		AgentVersion: "0.1.0",
		ProjectJSON:  "{}",
	}
}

// TestBuildIsPure covers testable property 1: the same Data always renders
// the same document, with no time-of-day or host-dependent content leaking
// in.
func TestBuildIsPure(t *testing.T) {
	data := sampleData()

	first, err := Build(data)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(data)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first != second {
		t.Errorf("Build(data) is not pure: got two different documents for identical input")
	}
}

func TestBuildAsyncScriptPostsToProjectSetup(t *testing.T) {
	doc, err := Build(sampleData())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if strings.Contains(doc, "run-setup.sh") {
		t.Error("document references a run-setup.sh script that nothing creates")
	}

	wantHeader := agentapi.AgentTokenHeader + ": tok-deadbeef"
	if !strings.Contains(doc, wantHeader) {
		t.Errorf("bootstrap-async.sh missing auth header %q", wantHeader)
	}
	if !strings.Contains(doc, "http://127.0.0.1:7575/project/setup") {
		t.Error("bootstrap-async.sh does not POST to /project/setup")
	}
	if !strings.Contains(doc, "http://127.0.0.1:7575/health") {
		t.Error("bootstrap-async.sh does not wait for the agent's /health endpoint before posting")
	}
}

func TestBuildRejectsOversizedDocument(t *testing.T) {
	data := sampleData()
	data.ProjectJSON = strings.Repeat("x", MaxDocumentBytes)

	if _, err := Build(data); err == nil {
		t.Error("Build() with an oversized ProjectJSON payload succeeded, want error")
	}
}

// TestBuildProjectJSONRoundTrip covers testable property 9: what
// BuildProjectJSON embeds in the document must unmarshal back into an
// equivalent ProjectSpec on the Agent side.
func TestBuildProjectJSONRoundTrip(t *testing.T) {
	spec := &agentapi.ProjectSpec{
		Name:     "my-project",
		Bundles:  []string{"go", "rust"},
		Packages: []string{"postgresql-client"},
		Ports:    []int{3000, 8080},
		Env:      map[string]string{"FOO": "bar"},
	}

	raw, err := BuildProjectJSON(spec)
	if err != nil {
		t.Fatalf("BuildProjectJSON: %v", err)
	}

	var got agentapi.ProjectSpec
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Name != spec.Name {
		t.Errorf("Name = %q, want %q", got.Name, spec.Name)
	}
	if len(got.Bundles) != 2 || got.Bundles[0] != "go" || got.Bundles[1] != "rust" {
		t.Errorf("Bundles = %v, want %v", got.Bundles, spec.Bundles)
	}
	if got.Env["FOO"] != "bar" {
		t.Errorf("Env[FOO] = %q, want bar", got.Env["FOO"])
	}
}

func TestBase64RoundTrip(t *testing.T) {
	doc, err := Build(sampleData())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	encoded := Base64(doc)
	if encoded == doc {
		t.Error("Base64(doc) returned the document unchanged")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != doc {
		t.Error("decoding Base64(doc) did not give back the original document")
	}
}

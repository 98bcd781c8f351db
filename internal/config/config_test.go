package config

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Defaults()
	cfg.DefaultSize = "cx32"
	cfg.AdminUser = "coder"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DefaultSize != "cx32" || loaded.AdminUser != "coder" {
		t.Errorf("Load() = %+v", loaded)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "hetzner" {
		t.Errorf("Provider = %q, want hetzner default", cfg.Provider)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if Exists(path) {
		t.Error("Exists() = true before Save")
	}
	if err := Save(path, Defaults()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists(path) {
		t.Error("Exists() = false after Save")
	}
}

func TestGenerateManagedKeyProducesParsableKeys(t *testing.T) {
	dir := t.TempDir()
	privPath, pubPath, err := GenerateManagedKey(dir)
	if err != nil {
		t.Fatalf("GenerateManagedKey: %v", err)
	}

	privData, err := os.ReadFile(privPath)
	if err != nil {
		t.Fatalf("read private key: %v", err)
	}
	if _, err := ssh.ParsePrivateKey(privData); err != nil {
		t.Errorf("ParsePrivateKey: %v", err)
	}

	pubData, err := os.ReadFile(pubPath)
	if err != nil {
		t.Fatalf("read public key: %v", err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(pubData); err != nil {
		t.Errorf("ParseAuthorizedKey: %v", err)
	}
}

func TestGenerateAgentTokenHashVerifies(t *testing.T) {
	token, hash, err := GenerateAgentToken()
	if err != nil {
		t.Fatalf("GenerateAgentToken: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("len(token) = %d, want 64 (32 bytes hex-encoded)", len(token))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		t.Errorf("bcrypt hash does not verify against its own token: %v", err)
	}
}

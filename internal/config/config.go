// Package config is the thin, mostly-opaque global configuration loader
// spec.md treats as an external collaborator: it knows how to find, read,
// and write the on-disk settings file, but never becomes a full settings
// editor. Loading follows the teacher's own viper wiring in
// control-plane/cmd/control-plane/main.go (SetDefault, AutomaticEnv,
// BindPFlag) rather than a hand-rolled format.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"
)

// Config is the global, per-user settings the controller loads once at
// startup and every command reads from.
type Config struct {
	Provider       string `mapstructure:"provider"`
	DefaultSize    string `mapstructure:"default_size"`
	DefaultRegion  string `mapstructure:"default_region"`
	AdminUser      string `mapstructure:"admin_user"`
	SSHKeyPath     string `mapstructure:"ssh_key_path"`
	SSHPublicKeyPath string `mapstructure:"ssh_public_key_path"`
	IdleTimeoutSecs int   `mapstructure:"idle_timeout_secs"`
	AgentPort      int    `mapstructure:"agent_port"`
}

// Defaults mirrors the teacher's viper.SetDefault block, just scoped to
// spuff's own settings instead of the teacher's database/gateway URLs.
func Defaults() *Config {
	return &Config{
		Provider:        "hetzner",
		DefaultSize:     "cx22",
		DefaultRegion:   "fsn1",
		AdminUser:       "dev",
		IdleTimeoutSecs: 2 * 60 * 60,
		AgentPort:       7575,
	}
}

// Dir returns the per-user directory spuff's config and local state live
// under, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "spuff")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path, falling back to Defaults for any
// key the file doesn't set. A missing file is not an error; it behaves as
// if every key were unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := Defaults()
	v.SetDefault("provider", defaults.Provider)
	v.SetDefault("default_size", defaults.DefaultSize)
	v.SetDefault("default_region", defaults.DefaultRegion)
	v.SetDefault("admin_user", defaults.AdminUser)
	v.SetDefault("idle_timeout_secs", defaults.IdleTimeoutSecs)
	v.SetDefault("agent_port", defaults.AgentPort)

	v.SetEnvPrefix("spuff")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if
// needed. Exists reports whether a file is already at path; spuff init
// checks it when deciding whether --force is required.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("provider", cfg.Provider)
	v.Set("default_size", cfg.DefaultSize)
	v.Set("default_region", cfg.DefaultRegion)
	v.Set("admin_user", cfg.AdminUser)
	v.Set("ssh_key_path", cfg.SSHKeyPath)
	v.Set("ssh_public_key_path", cfg.SSHPublicKeyPath)
	v.Set("idle_timeout_secs", cfg.IdleTimeoutSecs)
	v.Set("agent_port", cfg.AgentPort)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Exists reports whether a config file is already present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GenerateManagedKey creates a dedicated ed25519 keypair for spuff under
// dir, rather than requiring the user's own SSH key. Returns the private
// and public key paths.
func GenerateManagedKey(dir string) (privPath, pubPath string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 keypair: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "spuff managed key")
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("derive public key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("create key directory: %w", err)
	}

	privPath = filepath.Join(dir, "spuff_ed25519")
	pubPath = privPath + ".pub"

	if err := os.WriteFile(privPath, pemEncode(block), 0o600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(sshPub), 0o644); err != nil {
		os.Remove(privPath)
		return "", "", fmt.Errorf("write public key: %w", err)
	}
	return privPath, pubPath, nil
}

// GenerateAgentToken produces a fresh per-instance bearer token for the
// Agent's HTTP auth, plus a bcrypt hash suitable for an audit log copy —
// the token itself is compared in constant time by the Agent (see
// agentsvc), never by comparing hashes on the hot path.
func GenerateAgentToken() (token, bcryptHash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate agent token: %w", err)
	}
	token = hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash agent token: %w", err)
	}
	return token, string(hash), nil
}

func pemEncode(block *pem.Block) []byte {
	return pem.EncodeToMemory(block)
}

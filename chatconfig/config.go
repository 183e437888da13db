// Package chatconfig loads and saves spacechat's user configuration: the
// global YAML file with servers and accounts, the per-directory context
// file, and the selection of which account and room a command uses.
package chatconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/awebai/spacechat/logging"
	"github.com/awebai/spacechat/room"
)

// Transports for the live event feed.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

type GlobalConfig struct {
	Servers        map[string]Server  `yaml:"servers,omitempty"`
	Accounts       map[string]Account `yaml:"accounts,omitempty"`
	DefaultAccount string             `yaml:"default_account,omitempty"`
	Log            logging.Config     `yaml:"log,omitempty"`
	Session        SessionConfig      `yaml:"session,omitempty"`
}

type Server struct {
	URL string `yaml:"url,omitempty"`
	// URNPrefix is the id namespace used to translate websocket activity ids.
	URNPrefix string `yaml:"urn_prefix,omitempty"`
}

type Account struct {
	Server      string `yaml:"server,omitempty"`
	Token       string `yaml:"token,omitempty"`
	PersonID    string `yaml:"person_id,omitempty"`
	DisplayName string `yaml:"display_name,omitempty"`
	DefaultRoom string `yaml:"default_room,omitempty"`
}

// SessionConfig tunes room sessions started by the watch command.
type SessionConfig struct {
	MaxMessages int    `yaml:"max_messages,omitempty"`
	ReadStatus  string `yaml:"read_status,omitempty"`
	Transport   string `yaml:"transport,omitempty"`
}

// WithDefaults fills unset fields.
func (s SessionConfig) WithDefaults() SessionConfig {
	if s.MaxMessages <= 0 {
		s.MaxMessages = room.DefaultMaxMessages
	}
	if s.ReadStatus == "" {
		s.ReadStatus = string(room.ReadStatusEmbedded)
	}
	if s.Transport == "" {
		s.Transport = TransportSSE
	}
	return s
}

func (s SessionConfig) Validate() error {
	if _, err := room.ParseReadStatusMode(s.ReadStatus); err != nil {
		return fmt.Errorf("session.read_status: %w", err)
	}
	switch s.Transport {
	case "", TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("session.transport: unknown transport %q (want sse or ws)", s.Transport)
	}
	if s.MaxMessages < 0 {
		return fmt.Errorf("session.max_messages: must not be negative, got %d", s.MaxMessages)
	}
	return nil
}

func DefaultGlobalConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("SPACECHAT_CONFIG_PATH")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "spacechat", "config.yaml"), nil
}

func LoadGlobal() (*GlobalConfig, error) {
	path, err := DefaultGlobalConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadGlobalFrom(path)
}

// LoadGlobalFrom returns an empty config when path does not exist.
func LoadGlobalFrom(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &GlobalConfig{}
			cfg.ensureMaps()
			return cfg, nil
		}
		return nil, err
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.ensureMaps()
	if err := cfg.Session.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *GlobalConfig) ensureMaps() {
	if c.Servers == nil {
		c.Servers = map[string]Server{}
	}
	if c.Accounts == nil {
		c.Accounts = map[string]Account{}
	}
}

// SaveGlobalTo writes the config atomically with 0600 permissions.
func (c *GlobalConfig) SaveGlobalTo(path string) error {
	c.ensureMaps()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// UpdateGlobal runs fn on the current config under the config lock and saves the result.
func UpdateGlobal(fn func(cfg *GlobalConfig) error) error {
	path, err := DefaultGlobalConfigPath()
	if err != nil {
		return err
	}
	return UpdateGlobalAt(path, fn)
}

func UpdateGlobalAt(path string, fn func(cfg *GlobalConfig) error) error {
	if fn == nil {
		return errors.New("nil update function")
	}

	unlock, err := lockExclusive(path + ".lock")
	if err != nil {
		return fmt.Errorf("locking config: %w", err)
	}
	defer func() { _ = unlock() }()

	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return cfg.SaveGlobalTo(path)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

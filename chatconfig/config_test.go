package chatconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadGlobalFromMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := LoadGlobalFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadGlobalFrom: %v", err)
	}
	if cfg.Servers == nil || cfg.Accounts == nil {
		t.Fatalf("expected maps initialized")
	}
}

func TestLoadGlobalFromParsesSessionAndLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Join([]string{
		"accounts:",
		"  work:",
		"    server: chat.example.com",
		"    token: tok_work",
		"    person_id: p-me",
		"default_account: work",
		"log:",
		"  level: debug",
		"  pretty: true",
		"session:",
		"  max_messages: 50",
		"  read_status: separate",
		"  transport: ws",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		t.Fatalf("LoadGlobalFrom: %v", err)
	}
	if cfg.Accounts["work"].PersonID != "p-me" {
		t.Fatalf("account=%+v", cfg.Accounts["work"])
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Fatalf("log=%+v", cfg.Log)
	}
	s := cfg.Session.WithDefaults()
	if s.MaxMessages != 50 || s.ReadStatus != "separate" || s.Transport != TransportWebSocket {
		t.Fatalf("session=%+v", s)
	}
}

func TestLoadGlobalFromRejectsBadSession(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  transport: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadGlobalFrom(path); err == nil || !strings.Contains(err.Error(), "session.transport") {
		t.Fatalf("err=%v", err)
	}
}

func TestSessionConfigDefaults(t *testing.T) {
	t.Parallel()

	s := SessionConfig{}.WithDefaults()
	if s.MaxMessages != 20 || s.ReadStatus != "embedded" || s.Transport != TransportSSE {
		t.Fatalf("session=%+v", s)
	}
}

func TestSaveGlobalToWrites0600(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &GlobalConfig{
		Accounts:       map[string]Account{"alice": {Server: "localhost:8000", Token: "tok_a"}},
		DefaultAccount: "alice",
	}
	if err := cfg.SaveGlobalTo(path); err != nil {
		t.Fatalf("SaveGlobalTo: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("perm=%o, want 600", got)
	}
}

func TestUpdateGlobalAtMergesAccounts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := UpdateGlobalAt(path, func(cfg *GlobalConfig) error {
		cfg.Accounts["a"] = Account{Server: "localhost:8000", Token: "tok_a"}
		cfg.DefaultAccount = "a"
		return nil
	}); err != nil {
		t.Fatalf("UpdateGlobalAt #1: %v", err)
	}
	if err := UpdateGlobalAt(path, func(cfg *GlobalConfig) error {
		cfg.Accounts["b"] = Account{Server: "localhost:8000", Token: "tok_b"}
		return nil
	}); err != nil {
		t.Fatalf("UpdateGlobalAt #2: %v", err)
	}

	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		t.Fatalf("LoadGlobalFrom: %v", err)
	}
	if _, ok := cfg.Accounts["a"]; !ok {
		t.Fatalf("missing account a")
	}
	if _, ok := cfg.Accounts["b"]; !ok {
		t.Fatalf("missing account b")
	}
	if cfg.DefaultAccount != "a" {
		t.Fatalf("default=%q", cfg.DefaultAccount)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.Host != "127.0.0.1" || cfg.Port != 58421 {
		t.Fatalf("defaults: got %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.AgentsDir != "./agents" {
		t.Fatalf("agents dir: got %q", cfg.AgentsDir)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level: got %q", cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("origins: got %v", cfg.AllowedOrigins)
	}
}

func TestSetDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{Port: 9000, LogLevel: "debug"}
	cfg.SetDefaults()
	if cfg.Port != 9000 || cfg.LogLevel != "debug" {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestLoadFileOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "port: 7777\nagents_dir: /srv/agents\nallowed_origins:\n  - http://localhost:3000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var cfg Config
	cfg.SetDefaults()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 7777 || cfg.AgentsDir != "/srv/agents" {
		t.Fatalf("overlay: got %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("origins: got %v", cfg.AllowedOrigins)
	}
	if cfg.Host != "127.0.0.1" {
		t.Fatalf("unrelated default lost: %q", cfg.Host)
	}
}

func TestLoadFileMissingIsNotExist(t *testing.T) {
	var cfg Config
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("got %v want not-exist", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TABWIRE_PORT", "6001")
	t.Setenv("TABWIRE_LOG_LEVEL", "debug")
	t.Setenv("TABWIRE_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	var cfg Config
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if cfg.Port != 6001 || cfg.LogLevel != "debug" {
		t.Fatalf("env overlay: got %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("origins: got %v", cfg.AllowedOrigins)
	}
}

func TestApplyEnvIgnoresBadPort(t *testing.T) {
	t.Setenv("TABWIRE_PORT", "not-a-port")
	var cfg Config
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if cfg.Port != 58421 {
		t.Fatalf("port: got %d", cfg.Port)
	}
}

func TestResolveConfigPath(t *testing.T) {
	cases := []struct {
		goos string
		want string
	}{
		{"linux", "/home/u/.config/tabwire/config.yaml"},
		{"darwin", "/home/u/Library/Application Support/tabwire/config.yaml"},
		{"windows", "C:/ProgramData/tabwire/config.yaml"},
	}
	for _, c := range cases {
		got := resolveConfigPath(c.goos, "/home/u", "", "config.yaml")
		if filepath.ToSlash(got) != c.want {
			t.Fatalf("%s: got %q want %q", c.goos, got, c.want)
		}
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Config{Host: "0.0.0.0", Port: 8080}
	if got := cfg.ListenAddr(); got != "0.0.0.0:8080" {
		t.Fatalf("ListenAddr: got %q", got)
	}
}

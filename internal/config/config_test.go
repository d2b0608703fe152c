package config

import (
	"testing"

	"github.com/ucpgw/ucpgw/internal/mcp"
	"github.com/ucpgw/ucpgw/internal/routing"
)

func TestToolZooSettingsBuildAppliesOverrides(t *testing.T) {
	s := ToolZooSettings{TopK: 25, SimilarityThreshold: 0.4}
	cfg := s.Build()
	if cfg.TopK != 25 {
		t.Errorf("expected TopK 25, got %d", cfg.TopK)
	}
	if cfg.SimilarityThreshold != 0.4 {
		t.Errorf("expected threshold 0.4, got %f", cfg.SimilarityThreshold)
	}
}

func TestToolZooSettingsBuildKeepsDefaultsWhenUnset(t *testing.T) {
	cfg := ToolZooSettings{}.Build()
	if cfg.TopK == 0 {
		t.Error("expected a non-zero default TopK")
	}
}

func TestRouterSettingsBuildAppliesMode(t *testing.T) {
	s := RouterSettings{Mode: "keyword", MaxTools: 5}
	cfg := s.Build()
	if cfg.Mode != routing.SearchMode("keyword") {
		t.Errorf("expected mode keyword, got %v", cfg.Mode)
	}
	if cfg.MaxTools != 5 {
		t.Errorf("expected max tools 5, got %d", cfg.MaxTools)
	}
}

func TestSessionSettingsBuildConvertsTTLSeconds(t *testing.T) {
	s := SessionSettings{TTLSeconds: 3600, MaxMessages: 10}
	cfg := s.Build()
	if cfg.TTL.Seconds() != 3600 {
		t.Errorf("expected 3600s TTL, got %v", cfg.TTL)
	}
	if cfg.MaxMessages != 10 {
		t.Errorf("expected max messages 10, got %d", cfg.MaxMessages)
	}
}

func TestBanditSettingsBuildOverridesDBPath(t *testing.T) {
	s := BanditSettings{SQLitePath: "/tmp/bandit.db"}
	cfg := s.Build()
	if cfg.DBPath != "/tmp/bandit.db" {
		t.Errorf("expected overridden db path, got %q", cfg.DBPath)
	}
}

func TestDownstreamServerSettingsToMCPServerConfig(t *testing.T) {
	s := DownstreamServerSettings{
		ID:        "gmail",
		Name:      "Gmail",
		Transport: "stdio",
		Command:   "uvx",
		Args:      []string{"gmail-mcp"},
		AutoStart: true,
	}
	got := s.ToMCPServerConfig()
	want := &mcp.ServerConfig{
		ID:        "gmail",
		Name:      "Gmail",
		Transport: mcp.TransportStdio,
		Command:   "uvx",
		Args:      []string{"gmail-mcp"},
		AutoStart: true,
	}
	if got.ID != want.ID || got.Transport != want.Transport || got.Command != want.Command || got.AutoStart != want.AutoStart {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestConfigMCPServersConvertsAll(t *testing.T) {
	cfg := &Config{
		DownstreamServers: []DownstreamServerSettings{
			{ID: "gmail", Transport: "stdio"},
			{ID: "calendar", Transport: "http", URL: "http://localhost:9090"},
		},
	}
	servers := cfg.MCPServers()
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
}

func TestConfigAnyLazy(t *testing.T) {
	cfg := &Config{DownstreamServers: []DownstreamServerSettings{{ID: "a"}, {ID: "b", Lazy: true}}}
	if !cfg.AnyLazy() {
		t.Error("expected AnyLazy to report true")
	}

	cfg2 := &Config{DownstreamServers: []DownstreamServerSettings{{ID: "a"}}}
	if cfg2.AnyLazy() {
		t.Error("expected AnyLazy to report false")
	}
}

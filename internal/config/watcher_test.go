package config

import "testing"

func TestApplyHotReloadableUpdatesSafeFields(t *testing.T) {
	prev := &Config{
		Server: ServerSettings{Name: "gateway", ListenAddr: ":8787"},
		Router: RouterSettings{MaxTools: 5},
		DownstreamServers: []DownstreamServerSettings{
			{ID: "gmail", Tags: []string{"email"}},
		},
	}
	next := &Config{
		Server: ServerSettings{Name: "renamed", ListenAddr: ":9999"},
		Router: RouterSettings{MaxTools: 12},
		DownstreamServers: []DownstreamServerSettings{
			{ID: "gmail", Tags: []string{"email", "inbox"}},
		},
	}

	merged := applyHotReloadable(prev, next)

	if merged.Server.ListenAddr != ":8787" {
		t.Errorf("expected listen addr to require restart and stay unchanged, got %q", merged.Server.ListenAddr)
	}
	if merged.Router.MaxTools != 12 {
		t.Errorf("expected max tools hot-reloaded to 12, got %d", merged.Router.MaxTools)
	}
	if len(merged.DownstreamServers) != 1 || len(merged.DownstreamServers[0].Tags) != 2 {
		t.Errorf("expected downstream server tags hot-reloaded, got %+v", merged.DownstreamServers)
	}
}

func TestApplyHotReloadableNilPrevReturnsNext(t *testing.T) {
	next := &Config{Server: ServerSettings{Name: "gateway"}}
	merged := applyHotReloadable(nil, next)
	if merged != next {
		t.Error("expected nil prev to return next verbatim")
	}
}

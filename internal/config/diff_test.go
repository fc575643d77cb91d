package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/toolhub/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Tools: []config.ToolConfig{
			{Name: "calculator", Kind: config.ToolBuiltin},
			{Name: "weather", Kind: config.ToolHTTP, URL: "https://a.example", Headers: map[string]string{"k": "v"}},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	if d := config.Diff(baseConfig(), baseConfig()); !d.Empty() {
		t.Errorf("Diff = %+v, want empty", d)
	}
}

func TestDiff_LogLevelOnly(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.Server.LogLevel = config.LogDebug
	d := config.Diff(baseConfig(), next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change must not require a restart: %v", d.RestartRequired)
	}
}

func TestDiff_Tools(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.Tools[1].Headers = map[string]string{"k": "w"}
	next.Tools[0] = config.ToolConfig{Name: "code_interpreter", Kind: config.ToolBuiltin}

	d := config.Diff(baseConfig(), next)
	want := []config.ToolDiff{
		{Name: "calculator", Removed: true},
		{Name: "code_interpreter", Added: true},
		{Name: "weather", Modified: true},
	}
	if !d.ToolsChanged || !slices.Equal(d.ToolChanges, want) {
		t.Errorf("ToolChanges = %+v, want %+v", d.ToolChanges, want)
	}
	if !slices.Equal(d.RestartRequired, []string{"tools"}) {
		t.Errorf("RestartRequired = %v", d.RestartRequired)
	}
}

func TestDiff_Sections(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.Server.ListenAddr = ":1"
	next.Files.Root = "/srv"
	next.Hub.MaxConcurrency = 2

	d := config.Diff(baseConfig(), next)
	if want := []string{"files", "hub", "server"}; !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.ToolsChanged {
		t.Errorf("Diff = %+v", d)
	}
}

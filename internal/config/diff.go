package config

import (
	"reflect"
	"slices"
	"strings"
)

// ConfigDiff describes what changed between two configs.
// Only the log level is applied live; everything else is reported so the
// operator knows a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ToolsChanged bool
	ToolChanges  []ToolDiff // sorted by name

	// RestartRequired names the top-level sections, other than the log
	// level, whose change takes effect only after a restart. Sorted.
	RestartRequired []string
}

// ToolDiff describes what changed for one configured tool.
type ToolDiff struct {
	Name     string
	Added    bool
	Removed  bool
	Modified bool
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ToolsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"hub", old.Hub, new.Hub},
		{"operator", old.Operator, new.Operator},
		{"health", old.Health, new.Health},
		{"embeddings", old.Embeddings, new.Embeddings},
		{"hybrid_search", old.HybridSearch, new.HybridSearch},
		{"files", old.Files, new.Files},
		{"code_interpreter", old.Code, new.Code},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}

	// Tools, keyed by name.
	oldTools := make(map[string]*ToolConfig, len(old.Tools))
	for i := range old.Tools {
		oldTools[old.Tools[i].Name] = &old.Tools[i]
	}
	newTools := make(map[string]*ToolConfig, len(new.Tools))
	for i := range new.Tools {
		newTools[new.Tools[i].Name] = &new.Tools[i]
	}
	for name, ot := range oldTools {
		nt, exists := newTools[name]
		switch {
		case !exists:
			d.ToolChanges = append(d.ToolChanges, ToolDiff{Name: name, Removed: true})
		case !reflect.DeepEqual(ot, nt):
			d.ToolChanges = append(d.ToolChanges, ToolDiff{Name: name, Modified: true})
		}
	}
	for name := range newTools {
		if _, exists := oldTools[name]; !exists {
			d.ToolChanges = append(d.ToolChanges, ToolDiff{Name: name, Added: true})
		}
	}
	if len(d.ToolChanges) > 0 {
		d.ToolsChanged = true
		d.RestartRequired = append(d.RestartRequired, "tools")
		slices.SortFunc(d.ToolChanges, func(a, b ToolDiff) int { return strings.Compare(a.Name, b.Name) })
	}
	slices.Sort(d.RestartRequired)
	return d
}

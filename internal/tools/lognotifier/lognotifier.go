// Package lognotifier implements the log_notifier tool, which writes a
// message to the hub's structured log.
package lognotifier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "log_notifier"

var descriptor = types.ToolDescriptor{
	Name:        Name,
	Description: "Writes a notification to the server log. Use it to report task completion or important events.",
	Parameters: types.Parameters{
		{Name: "message", Type: types.TypeString, Description: "The notification text.", Required: true},
		{Name: "level", Type: types.TypeString, Description: "DEBUG, INFO, WARN or ERROR. Defaults to INFO."},
	},
}

// ParseLevel maps a level name to a slog level. Unknown names are INFO.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "", "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// New returns the tool. A nil logger means the context logger.
func New(logger *slog.Logger) *tool.Func {
	return tool.MustFunc(descriptor, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		msg, _ := args.Str("message")
		raw := args.StrOr("level", "")
		level, ok := ParseLevel(raw)
		l := logger
		if l == nil {
			l = observe.Logger(ctx)
		}
		if !ok {
			l.Warn("log_notifier: unknown level, using INFO", "level", raw)
		}
		l.Log(ctx, level, msg, "source", Name)
		return types.Object(map[string]types.Value{
			"logged": types.Bool(true),
			"level":  types.String(level.String()),
		}), nil
	})
}

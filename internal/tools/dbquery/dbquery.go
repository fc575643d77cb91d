// Package dbquery implements the db_querier tool: read-only SQL over SQLite
// files inside the file sandbox.
package dbquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/internal/tools/fileio"
	"github.com/MrWong99/toolhub/pkg/store/sqlite"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "db_querier"

// ErrNotReadOnly rejects anything but a single SELECT or WITH statement.
var ErrNotReadOnly = errors.New("only a single SELECT or WITH statement is allowed")

var descriptor = types.ToolDescriptor{
	Name:        Name,
	Description: "Runs a read-only SQL query against a SQLite database file and returns the rows.",
	Parameters: types.Parameters{
		{Name: "db_path", Type: types.TypeString, Description: "Database file relative to the sandbox root.", Required: true},
		{Name: "query", Type: types.TypeString, Description: "A SELECT or WITH statement.", Required: true},
	},
}

// New returns the tool. Database paths are resolved through sb.
func New(sb *fileio.Sandbox) *tool.Func {
	return tool.MustFunc(descriptor, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		rel, _ := args.Str("db_path")
		query, _ := args.Str("query")
		if err := CheckQuery(query); err != nil {
			return types.Value{}, err
		}
		path, err := sb.Resolve(rel)
		if err != nil {
			return types.Value{}, err
		}
		rows, err := Query(ctx, path, query)
		if err != nil {
			return types.Value{}, err
		}
		out := make([]types.Value, len(rows))
		for i, r := range rows {
			out[i] = types.Object(r)
		}
		return types.Array(out...), nil
	})
}

// Query runs query against the database at path, opened read-only.
func Query(ctx context.Context, path, query string) ([]map[string]types.Value, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("dbquery: open: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dbquery: %w", err)
	}
	recs, err := sqlite.ScanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("dbquery: %w", err)
	}
	out := make([]map[string]types.Value, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out, nil
}

// CheckQuery accepts exactly one SELECT or WITH statement. A trailing
// semicolon is allowed.
func CheckQuery(q string) error {
	q = strings.TrimSpace(q)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return errors.New("query must not be empty")
	}
	if strings.Contains(q, ";") {
		return ErrNotReadOnly
	}
	switch strings.ToUpper(strings.Fields(q)[0]) {
	case "SELECT", "WITH":
		return nil
	}
	return ErrNotReadOnly
}

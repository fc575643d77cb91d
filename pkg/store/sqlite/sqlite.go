// Package sqlite is a read-only relational store over one SQLite table,
// backed by the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/toolhub/pkg/store"
	"github.com/MrWong99/toolhub/pkg/types"
)

var _ store.RelationalStore = (*Store)(nil)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config selects the database file and table.
type Config struct {
	// Path is the database file. The file is opened read-only.
	Path string

	// Table holds the records. Default "records".
	Table string

	// IDField is the join column. Default "id".
	IDField string
}

// Store filters rows of one table. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	table   string
	idField string
	columns map[string]struct{}
}

// Open opens cfg.Path read-only and loads the table's column set.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+cfg.Path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", cfg.Path, err)
	}
	s, err := FromDB(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// FromDB wraps an existing handle. Close closes db.
func FromDB(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		cfg.Table = "records"
	}
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("sqlite store: invalid table name %q", cfg.Table)
	}
	return fromDB(ctx, db, cfg)
}

func fromDB(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	cols, err := Columns(ctx, db, cfg.Table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("sqlite store: table %q does not exist or has no columns", cfg.Table)
	}
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	if _, ok := set[cfg.IDField]; !ok {
		return nil, fmt.Errorf("sqlite store: table %q has no id column %q", cfg.Table, cfg.IDField)
	}
	return &Store{db: db, table: cfg.Table, idField: cfg.IDField, columns: set}, nil
}

// Columns lists the columns of table in declaration order.
func Columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: table info: %w", err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite store: table info: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// IDField implements store.RelationalStore.
func (s *Store) IDField() string { return s.idField }

// Filter implements store.RelationalStore.
func (s *Store) Filter(ctx context.Context, filters map[string]types.Value) ([]store.Record, error) {
	keys := slices.Sorted(maps.Keys(filters))
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if _, ok := s.columns[k]; !ok {
			return nil, fmt.Errorf("%w: %q", store.ErrUnknownField, k)
		}
		v := filters[k]
		if v.IsNull() {
			conds = append(conds, fmt.Sprintf("%q IS NULL", k))
			continue
		}
		if kind := v.Kind(); kind == types.KindObject || kind == types.KindArray {
			return nil, fmt.Errorf("sqlite store: filter value must be a scalar, got %s", kind)
		}
		conds = append(conds, fmt.Sprintf("%q = ?", k))
		args = append(args, v.Any())
	}
	q := fmt.Sprintf("SELECT * FROM %q", s.table)
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: filter: %w", err)
	}
	return ScanRecords(rows)
}

// ScanRecords drains rows into records and closes them.
func ScanRecords(rows *sql.Rows) ([]store.Record, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []store.Record{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite store: scan: %w", err)
		}
		rec := make(store.Record, len(cols))
		for i, c := range cols {
			rec[c] = store.ValueFromColumn(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

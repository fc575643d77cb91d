// Package postgres provides both store contracts on PostgreSQL: a semantic
// store over a pgvector column and a relational store over any table.
//
// Both share one [pgxpool.Pool] with pgvector types registered on every
// connection.
package postgres

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/toolhub/pkg/store"
	"github.com/MrWong99/toolhub/pkg/types"
)

var (
	_ store.SemanticStore   = (*Semantic)(nil)
	_ store.RelationalStore = (*Relational)(nil)
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Connect opens a pool at dsn with pgvector types registered and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return pool, nil
}

// ─── Semantic ────────────────────────────────────────────────────────────────

// Semantic ranks rows of a documents table by cosine similarity.
type Semantic struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// SemanticConfig selects the documents table.
type SemanticConfig struct {
	// Table defaults to "documents".
	Table string

	// OwnPool makes Close close the pool.
	OwnPool bool
}

// NewSemantic wraps pool.
func NewSemantic(pool *pgxpool.Pool, cfg SemanticConfig) (*Semantic, error) {
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("postgres store: invalid table name %q", cfg.Table)
	}
	return &Semantic{pool: pool, table: cfg.Table, owned: cfg.OwnPool}, nil
}

// Migrate creates the documents table and its HNSW index when missing.
func (s *Semantic) Migrate(ctx context.Context, dimensions int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    id         TEXT PRIMARY KEY,
    text       TEXT NOT NULL DEFAULT '',
    embedding  vector(%[2]d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding
    ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, s.table, dimensions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres store: migrate %s: %w", s.table, err)
	}
	return nil
}

// Upsert inserts or replaces documents.
func (s *Semantic) Upsert(ctx context.Context, docs ...store.Document) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (id, text, embedding) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, embedding = EXCLUDED.embedding`, s.table)
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(q, d.ID, d.Text, pgvector.NewVector(d.Embedding))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: upsert documents: %w", err)
	}
	return nil
}

// Rank implements store.SemanticStore. Every document is scored; ordering is
// finalized in Go so ties break the same way as the file store.
func (s *Semantic) Rank(ctx context.Context, query []float32) ([]store.Scored, error) {
	q := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS score FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(query))
	if err != nil {
		return nil, fmt.Errorf("postgres store: rank: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Scored, error) {
		var sc store.Scored
		err := row.Scan(&sc.ID, &sc.Score)
		return sc, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan ranks: %w", err)
	}
	store.SortScored(out)
	return out, nil
}

// Close releases the pool when owned.
func (s *Semantic) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

// ─── Relational ──────────────────────────────────────────────────────────────

// Relational filters rows of one table by exact equality.
type Relational struct {
	pool    *pgxpool.Pool
	table   string
	idField string
	columns map[string]struct{}
	owned   bool
}

// RelationalConfig selects the table.
type RelationalConfig struct {
	// Table defaults to "records".
	Table string

	// IDField defaults to "id".
	IDField string

	// OwnPool makes Close close the pool.
	OwnPool bool
}

// NewRelational loads the column set of the table.
func NewRelational(ctx context.Context, pool *pgxpool.Pool, cfg RelationalConfig) (*Relational, error) {
	if cfg.Table == "" {
		cfg.Table = "records"
	}
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("postgres store: invalid table name %q", cfg.Table)
	}
	rows, err := pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1`, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("postgres store: columns of %s: %w", cfg.Table, err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: columns of %s: %w", cfg.Table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("postgres store: table %q does not exist", cfg.Table)
	}
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	if _, ok := set[cfg.IDField]; !ok {
		return nil, fmt.Errorf("postgres store: table %q has no id column %q", cfg.Table, cfg.IDField)
	}
	return &Relational{pool: pool, table: cfg.Table, idField: cfg.IDField, columns: set, owned: cfg.OwnPool}, nil
}

// IDField implements store.RelationalStore.
func (r *Relational) IDField() string { return r.idField }

// Filter implements store.RelationalStore.
func (r *Relational) Filter(ctx context.Context, filters map[string]types.Value) ([]store.Record, error) {
	var (
		args  []any
		conds []string
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	for _, k := range slices.Sorted(maps.Keys(filters)) {
		if _, ok := r.columns[k]; !ok {
			return nil, fmt.Errorf("%w: %q", store.ErrUnknownField, k)
		}
		v := filters[k]
		col := pgx.Identifier{k}.Sanitize()
		switch v.Kind() {
		case types.KindNull:
			conds = append(conds, col+" IS NULL")
		case types.KindObject, types.KindArray:
			return nil, fmt.Errorf("postgres store: filter value must be a scalar, got %s", v.Kind())
		default:
			// Compare as text so JSON numbers match integer columns.
			conds = append(conds, col+"::text = "+next(scalarText(v)))
		}
	}
	q := "SELECT * FROM " + pgx.Identifier{r.table}.Sanitize()
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: filter: %w", err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan records: %w", err)
	}
	out := make([]store.Record, 0, len(raw))
	for _, m := range raw {
		rec := make(store.Record, len(m))
		for k, x := range m {
			rec[k] = store.ValueFromColumn(x)
		}
		out = append(out, rec)
	}
	return out, nil
}

func scalarText(v types.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	if b, ok := v.Boolean(); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return v.String()
}

// Close releases the pool when owned.
func (r *Relational) Close() error {
	if r.owned {
		r.pool.Close()
	}
	return nil
}

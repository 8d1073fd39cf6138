package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	created    TEXT    NOT NULL,
	updated    TEXT    NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 1,
	data       TEXT    NOT NULL DEFAULT '{}',
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_collection_created ON records(collection, created);
`

// SQLiteStore keeps records as JSON documents in a single SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: cannot create directory %s: %w", dir, err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &SQLiteStore{db: db, opts: applyOptions(opts)}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, fields map[string]any) (Record, error) {
	if err := validateName(collection); err != nil {
		return Record{}, err
	}
	data, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := s.opts.now().UTC()
	rec := Record{ID: s.opts.newID(), Created: now, Updated: now, Revision: 1, Fields: data}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, created, updated, revision, data) VALUES (?, ?, ?, ?, ?, ?)`,
		collection, rec.ID, FormatTime(now), FormatTime(now), rec.Revision, string(raw))
	if err != nil {
		return Record{}, upstream("create", err)
	}
	// Reload so timestamps carry the stored precision.
	return s.GetOne(ctx, collection, rec.ID)
}

func (s *SQLiteStore) GetOne(ctx context.Context, collection, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created, updated, revision, data FROM records WHERE collection = ? AND id = ?`,
		collection, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Record{}, upstream("get_one", err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetList(ctx context.Context, collection string, page, perPage int, opts ListOptions) (ListResult, error) {
	if perPage < 1 {
		return ListResult{}, fmt.Errorf("%w: perPage must be >= 1", ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	where, args, err := buildWhere(collection, opts.Filter)
	if err != nil {
		return ListResult{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&total); err != nil {
		return ListResult{}, upstream("count", err)
	}
	items, err := s.selectRecords(ctx, where, args, opts.Sort, perPage, (page-1)*perPage)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: pageCount(total, perPage),
	}, nil
}

func (s *SQLiteStore) GetFullList(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	where, args, err := buildWhere(collection, opts.Filter)
	if err != nil {
		return nil, err
	}
	return s.selectRecords(ctx, where, args, opts.Sort, -1, 0)
}

func (s *SQLiteStore) GetFirstListItem(ctx context.Context, collection string, opts ListOptions) (Record, error) {
	where, args, err := buildWhere(collection, opts.Filter)
	if err != nil {
		return Record{}, err
	}
	items, err := s.selectRecords(ctx, where, args, opts.Sort, 1, 0)
	if err != nil {
		return Record{}, err
	}
	if len(items) == 0 {
		return Record{}, fmt.Errorf("%s: %w", collection, ErrNotFound)
	}
	return items[0], nil
}

func (s *SQLiteStore) selectRecords(ctx context.Context, where string, args []any, srt Sort, limit, offset int) ([]Record, error) {
	order, err := buildOrder(srt)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, created, updated, revision, data FROM records WHERE ` + where +
		` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, upstream("list", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, upstream("scan", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("list", err)
	}
	return out, nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any, opts ...UpdateOption) (Record, error) {
	data, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	uo := applyUpdateOptions(opts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, upstream("update", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT id, created, updated, revision, data FROM records WHERE collection = ? AND id = ?`,
		collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Record{}, upstream("update", err)
	}
	if uo.ifRevision != nil && *uo.ifRevision != rec.Revision {
		return Record{}, fmt.Errorf("%s/%s at revision %d, expected %d: %w",
			collection, id, rec.Revision, *uo.ifRevision, ErrConflict)
	}
	for k, v := range data {
		rec.Fields[k] = v
	}
	raw, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ?, revision = revision + 1, updated = ? WHERE collection = ? AND id = ? AND revision = ?`,
		string(raw), FormatTime(s.opts.now()), collection, id, rec.Revision)
	if err != nil {
		return Record{}, upstream("update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Record{}, fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, upstream("update", err)
	}
	return s.GetOne(ctx, collection, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return upstream("delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return upstream("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec              Record
		created, updated string
		raw              string
	)
	if err := row.Scan(&rec.ID, &created, &updated, &rec.Revision, &raw); err != nil {
		return Record{}, err
	}
	rec.Created, _ = ParseTime(created)
	rec.Updated, _ = ParseTime(updated)
	rec.Fields = map[string]any{}
	if err := json.Unmarshal([]byte(raw), &rec.Fields); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", rec.ID, err)
	}
	return rec, nil
}

func fieldExpr(field string) string {
	switch field {
	case FieldID, FieldCreated, FieldUpdated, FieldRevision:
		return field
	}
	return "COALESCE(json_extract(data, '$." + field + "'), '')"
}

func sqlArg(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func buildWhere(collection string, f Filter) (string, []any, error) {
	if err := validateName(collection); err != nil {
		return "", nil, err
	}
	nf, err := f.normalized()
	if err != nil {
		return "", nil, err
	}
	clauses := []string{"collection = ?"}
	args := []any{collection}
	for _, c := range nf {
		expr := fieldExpr(c.Field)
		if c.Op == OpIn {
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			clauses = append(clauses, expr+" IN ("+marks+")")
			for _, v := range c.Values {
				args = append(args, sqlArg(v))
			}
			continue
		}
		op := string(c.Op)
		if c.Op == OpNeq {
			op = "<>"
		}
		clauses = append(clauses, expr+" "+op+" ?")
		args = append(args, sqlArg(c.Value))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func buildOrder(s Sort) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(s)+2)
	for _, f := range s {
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, fieldExpr(f.Field)+" "+dir)
	}
	parts = append(parts, "created ASC", "id ASC")
	return strings.Join(parts, ", "), nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %v", ErrUpstream, op, err)
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	logx "standupbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

// sqlStore stores one row per leaf. Subtrees are range scans over the
// bytewise-ordered primary key: everything below "a/b" sorts in ["a/b/", "a/b0").
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	log     logx.Logger
	now     func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return newSQLStore(db, dialectSQLite, log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return newSQLStore(db, dialectPostgres, log)
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) (*sqlStore, error) {
	st := &sqlStore{db: db, dialect: d, log: log, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + string(s.dialect) + ".sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *sqlStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// subtreeWhere selects p and everything below it.
func subtreeWhere(p string) (string, []any) {
	if p == "" {
		return "1=1", nil
	}
	return "(path = ? OR (path >= ? AND path < ?))", []any{p, p + "/", p + "0"}
}

func (s *sqlStore) Get(ctx context.Context, path string) (any, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	where, args := subtreeWhere(p)
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT path, value FROM nodes WHERE "+where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leaves := map[string]any{}
	for rows.Next() {
		var leaf, raw string
		if err := rows.Scan(&leaf, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode %q: %w", leaf, err)
		}
		leaves[leaf] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assemble(p, leaves), nil
}

func (s *sqlStore) Set(ctx context.Context, path string, value any) error {
	ws, err := prepareSet(path, value, s.now())
	if err != nil {
		return err
	}
	return s.apply(ctx, ws)
}

func (s *sqlStore) Update(ctx context.Context, path string, children map[string]any) error {
	ws, err := prepareUpdate(path, children, s.now())
	if err != nil {
		return err
	}
	return s.apply(ctx, ws)
}

func (s *sqlStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *sqlStore) apply(ctx context.Context, ws []write) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := s.rebind(`INSERT INTO nodes(path, value) VALUES(?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value`)
	for _, w := range ws {
		where, args := subtreeWhere(w.Path)
		if _, err = tx.ExecContext(ctx, s.rebind("DELETE FROM nodes WHERE "+where), args...); err != nil {
			return err
		}
		if w.Value == nil {
			continue
		}
		// A scalar stored at an ancestor would shadow the new subtree.
		for _, a := range ancestors(w.Path) {
			if _, err = tx.ExecContext(ctx, s.rebind("DELETE FROM nodes WHERE path = ?"), a); err != nil {
				return err
			}
		}
		leaves := map[string]any{}
		flatten(w.Path, w.Value, leaves)
		for leaf, v := range leaves {
			raw, merr := json.Marshal(v)
			if merr != nil {
				return merr
			}
			if _, err = tx.ExecContext(ctx, upsert, leaf, string(raw)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

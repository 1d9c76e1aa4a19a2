// Package sqlite implements the record store on an embedded SQLite database.
//
// Array-valued document fields (likes, saved blogs, followed topics, category
// followers, visitors, comments) live in child tables so that add-to-set and
// remove-from-set are single INSERT OR IGNORE / DELETE statements and stay
// atomic without application locking.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements every repository
// interface. Accounts(), Profiles() etc. all return the same value.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/blogs.db" → file-based database
//   - ":memory:"      → in-memory database, used by tests
func New(dbPath string) (*DB, error) {
	// PRAGMAs executed below only reach the connection that runs them;
	// _pragma in the DSN applies them to every pooled connection.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Accounts() repository.AccountRepository { return db }
func (db *DB) Profiles() repository.ProfileRepository { return db }
func (db *DB) Blogs() repository.BlogRepository { return db }
func (db *DB) Categories() repository.CategoryRepository { return db }

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				id               TEXT PRIMARY KEY,
				username         TEXT NOT NULL,
				email            TEXT NOT NULL UNIQUE,
				password_hash    TEXT NOT NULL DEFAULT '',
				reset_token      TEXT,
				reset_expires_at DATETIME,
				created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username);
			CREATE INDEX IF NOT EXISTS idx_accounts_reset_token ON accounts(reset_token);
		`},
		{"profiles", `
			CREATE TABLE IF NOT EXISTS profiles (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL UNIQUE,
				profile_pic TEXT NOT NULL DEFAULT '',
				phoneno     TEXT NOT NULL DEFAULT '',
				bio         TEXT NOT NULL DEFAULT '',
				instagram   TEXT NOT NULL DEFAULT '',
				linkedin    TEXT NOT NULL DEFAULT ''
			);
			CREATE TABLE IF NOT EXISTS profile_saved_blogs (
				seq        INTEGER PRIMARY KEY AUTOINCREMENT,
				profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
				blog_id    TEXT NOT NULL,
				UNIQUE (profile_id, blog_id)
			);
			CREATE INDEX IF NOT EXISTS idx_saved_blog_id ON profile_saved_blogs(blog_id);
			CREATE TABLE IF NOT EXISTS profile_followed_topics (
				seq        INTEGER PRIMARY KEY AUTOINCREMENT,
				profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
				category   TEXT NOT NULL,
				UNIQUE (profile_id, category)
			);
		`},
		{"blogs", `
			CREATE TABLE IF NOT EXISTS blogs (
				id             TEXT PRIMARY KEY,
				author         TEXT NOT NULL,
				author_img     TEXT NOT NULL DEFAULT '',
				author_id      TEXT NOT NULL DEFAULT '',
				image          TEXT NOT NULL DEFAULT '',
				title          TEXT NOT NULL,
				body           TEXT NOT NULL DEFAULT '',
				tags           TEXT NOT NULL DEFAULT '[]',
				category       TEXT NOT NULL DEFAULT '',
				views          INTEGER NOT NULL DEFAULT 0,
				last_viewed_at DATETIME,
				is_private     INTEGER NOT NULL DEFAULT 0,
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_blogs_author ON blogs(author);
			CREATE INDEX IF NOT EXISTS idx_blogs_category ON blogs(category);
			CREATE TABLE IF NOT EXISTS blog_comments (
				id       TEXT PRIMARY KEY,
				blog_id  TEXT NOT NULL REFERENCES blogs(id) ON DELETE CASCADE,
				username TEXT NOT NULL,
				user_img TEXT NOT NULL DEFAULT '',
				comment  TEXT NOT NULL,
				date     DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_comments_blog ON blog_comments(blog_id);
			CREATE INDEX IF NOT EXISTS idx_comments_username ON blog_comments(username);
			CREATE TABLE IF NOT EXISTS blog_likes (
				blog_id  TEXT NOT NULL REFERENCES blogs(id) ON DELETE CASCADE,
				username TEXT NOT NULL,
				PRIMARY KEY (blog_id, username)
			);
			CREATE INDEX IF NOT EXISTS idx_likes_username ON blog_likes(username);
			CREATE TABLE IF NOT EXISTS blog_visitors (
				blog_id TEXT NOT NULL REFERENCES blogs(id) ON DELETE CASCADE,
				visitor TEXT NOT NULL,
				PRIMARY KEY (blog_id, visitor)
			);
		`},
		{"categories", `
			CREATE TABLE IF NOT EXISTS categories (
				name TEXT PRIMARY KEY
			);
			CREATE TABLE IF NOT EXISTS category_followers (
				category TEXT NOT NULL REFERENCES categories(name) ON DELETE CASCADE,
				username TEXT NOT NULL,
				PRIMARY KEY (category, username)
			);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s tables: %w", step.name, err)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// requireOneRow turns "0 rows affected" into NotFound.
func requireOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

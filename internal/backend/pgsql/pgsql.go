// Package pgsql implements backend.Backend over a PostgreSQL dictionaries
// schema, using database/sql with the lib/pq driver and sqlx for the
// slice-scanning query helpers.
package pgsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/vsemionov/wordbase/internal/backend"
)

// Config holds the connection parameters for a Backend, mirroring the
// original db/pgsql.py configure() defaults.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string
}

// DefaultConfig returns the defaults applied to zero-valued fields by
// NewBackend: host "localhost", port 5432, user "nobody", no password,
// database "wordbase", schema "public".
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "nobody",
		Database: "wordbase",
		Schema:   "public",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.User == "" {
		c.User = d.User
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Schema == "" {
		c.Schema = d.Schema
	}
	return c
}

// Backend is a backend.Backend implementation over PostgreSQL. Open is
// lazy-safe to call more than once: it is idempotent, re-dialling only
// after Close.
type Backend struct {
	cfg Config
	db  *sqlx.DB
}

// NewBackend returns a Backend for cfg. No connection is established until
// Open; the query methods do not open one themselves and need a prior
// successful Open.
func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg.withDefaults()}
}

func (b *Backend) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		b.cfg.Host, b.cfg.Port, b.cfg.User, b.cfg.Password, b.cfg.Database)
}

// Open establishes the connection pool. Unlike psycopg2's single cursor,
// database/sql pools connections internally; Open merely registers the DSN
// and verifies connectivity with a ping.
func (b *Backend) Open(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	db, err := sqlx.Open("postgres", b.dsn())
	if err != nil {
		return backend.NewBackendError(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return backend.NewBackendError(err)
	}
	b.db = db
	return nil
}

// Close releases the connection pool. It is safe to call on an unopened
// Backend.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return backend.NewBackendError(err)
}

func (b *Backend) schema() string { return b.cfg.Schema }

type dictionaryRow struct {
	Name      string `db:"name"`
	Virtual   bool   `db:"virtual"`
	ShortDesc string `db:"short_desc"`
}

func (b *Backend) ListDictionaries(ctx context.Context) ([]backend.DictionaryInfo, error) {
	stmt := fmt.Sprintf(
		"SELECT name, (virt_id IS NOT NULL) AS virtual, short_desc FROM %s.dictionaries ORDER BY db_order;",
		b.schema())
	var rows []dictionaryRow
	if err := b.db.SelectContext(ctx, &rows, stmt); err != nil {
		return nil, backend.NewBackendError(err)
	}
	out := make([]backend.DictionaryInfo, len(rows))
	for i, r := range rows {
		out[i] = backend.DictionaryInfo{Name: r.Name, Virtual: r.Virtual, ShortDesc: r.ShortDesc}
	}
	return out, nil
}

func (b *Backend) DictionaryInfo(ctx context.Context, name string) (bool, string, error) {
	stmt := fmt.Sprintf(
		"SELECT (virt_id IS NOT NULL) AS virtual, info FROM %s.dictionaries WHERE name = $1;",
		b.schema())
	var row struct {
		Virtual bool           `db:"virtual"`
		Info    sql.NullString `db:"info"`
	}
	err := b.db.GetContext(ctx, &row, stmt, name)
	if err == sql.ErrNoRows {
		return false, "", backend.ErrInvalidDictionary
	}
	if err != nil {
		return false, "", backend.NewBackendError(err)
	}
	return row.Virtual, row.Info.String, nil
}

// ids returns (dictID, virtID) for name, as nullable ints; exactly one of
// them is non-null for a valid dictionary, mirroring _get_ids.
func (b *Backend) ids(ctx context.Context, name string) (dictID, virtID sql.NullInt64, err error) {
	stmt := fmt.Sprintf("SELECT dict_id, virt_id FROM %s.dictionaries WHERE name = $1;", b.schema())
	row := b.db.QueryRowxContext(ctx, stmt, name)
	if scanErr := row.Scan(&dictID, &virtID); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return dictID, virtID, backend.ErrInvalidDictionary
		}
		return dictID, virtID, backend.NewBackendError(scanErr)
	}
	if !dictID.Valid && !virtID.Valid {
		return dictID, virtID, backend.ErrInvalidDictionary
	}
	return dictID, virtID, nil
}

func (b *Backend) Words(ctx context.Context, name string) ([]string, error) {
	dictID, virtID, err := b.ids(ctx, name)
	if err != nil {
		return nil, err
	}
	if !dictID.Valid {
		_ = virtID
		return nil, backend.ErrVirtualDictionary
	}
	stmt := fmt.Sprintf(
		"SELECT DISTINCT word FROM %s.definitions WHERE dict_id = $1 ORDER BY word;",
		b.schema())
	var words []string
	if err := b.db.SelectContext(ctx, &words, stmt, dictID.Int64); err != nil {
		return nil, backend.NewBackendError(err)
	}
	return words, nil
}

func (b *Backend) ExpandVirtual(ctx context.Context, name string) ([]string, error) {
	dictID, virtID, err := b.ids(ctx, name)
	if err != nil {
		return nil, err
	}
	if !virtID.Valid {
		_ = dictID
		return nil, backend.ErrVirtualDictionary
	}
	stmt := fmt.Sprintf(
		`SELECT name FROM %[1]s.dictionaries
		 INNER JOIN %[1]s.virtual_dictionaries USING (dict_id)
		 WHERE %[1]s.virtual_dictionaries.virt_id = $1 ORDER BY db_order;`,
		b.schema())
	var names []string
	if err := b.db.SelectContext(ctx, &names, stmt, virtID.Int64); err != nil {
		return nil, backend.NewBackendError(err)
	}
	return names, nil
}

func (b *Backend) Definitions(ctx context.Context, name, headword string) ([]string, error) {
	stmt := fmt.Sprintf(
		`SELECT definition FROM %[1]s.definitions
		 WHERE dict_id = (SELECT dict_id FROM %[1]s.dictionaries WHERE name = $1) AND word = $2;`,
		b.schema())
	var defs []string
	if err := b.db.SelectContext(ctx, &defs, stmt, name, headword); err != nil {
		return nil, backend.NewBackendError(err)
	}
	return defs, nil
}

var _ backend.Backend = (*Backend)(nil)

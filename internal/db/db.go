package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DBPair splits SQLite access into a single-connection writer and a read-only
// pool. In WAL mode readers never wait on the writer.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

// Reader returns the read-only pool.
func (p *DBPair) Reader() *sql.DB { return p.reader }

// Writer returns the serialized write connection.
func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools.
func (p *DBPair) Close() error {
	return errors.Join(
		wrapClose("reader", p.reader.Close()),
		wrapClose("writer", p.writer.Close()),
	)
}

func wrapClose(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", name, err)
}

type poolConfig struct {
	mode    string
	maxOpen int
	maxIdle int
}

var (
	writerPool = poolConfig{mode: "rwc", maxOpen: 1, maxIdle: 1}
	readerPool = poolConfig{mode: "ro", maxOpen: 4, maxIdle: 2}
)

// columnMigration adds a column missing from databases created by older builds.
type columnMigration struct {
	table  string
	column string
	ddl    string
}

var columnMigrations = []columnMigration{
	{table: "inbox_entries", column: "representation_property", ddl: "ALTER TABLE inbox_entries ADD COLUMN representation_property TEXT"},
	{table: "discovery_runs", column: "pruned", ddl: "ALTER TABLE discovery_runs ADD COLUMN pruned INTEGER NOT NULL DEFAULT 0"},
}

// Init opens the database at dbPath, creating it and its directory when needed,
// and brings the schema up to date. The go-sqlite3 driver must be registered by
// the caller.
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	writer, err := openPool(dbPath, writerPool)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	if err := prepareSchema(writer); err != nil {
		writer.Close()
		return nil, err
	}

	// Opened after the schema exists since mode=ro cannot create the file.
	reader, err := openPool(dbPath, readerPool)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DBPair{reader: reader, writer: writer}, nil
}

func openPool(dbPath string, cfg poolConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", dbPath, cfg.mode)
	pool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.maxOpen)
	pool.SetMaxIdleConns(cfg.maxIdle)
	pool.SetConnMaxLifetime(time.Hour)
	return pool, nil
}

func prepareSchema(writer *sql.DB) error {
	if _, err := writer.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL: %w", err)
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return runMigrations(writer)
}

func runMigrations(db *sql.DB) error {
	for _, migration := range columnMigrations {
		columns, err := tableColumns(db, migration.table)
		if err != nil {
			return err
		}
		if columns[migration.column] {
			continue
		}
		if _, err := db.Exec(migration.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", migration.table, migration.column, err)
		}
	}
	return nil
}

// tableColumns returns the column names of table.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

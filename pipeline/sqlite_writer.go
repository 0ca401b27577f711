package pipeline

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-resolve-collections/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
create table if not exists resolved_records (
	id integer primary key autoincrement,
	todays_date text not null,
	scan_address text not null,
	collection_name text not null,
	collection text not null,
	asset_number text not null,
	best_offer text not null,
	premium text not null,
	recorded_at text not null default current_timestamp
);
create index if not exists resolved_records_scan_address on resolved_records (scan_address);
`

// SQLiteWriter archives records into a sqlite table. Rows are only ever
// inserted.
type SQLiteWriter struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteWriter opens (or creates) the archive at filename.
func NewSQLiteWriter(filename string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// Write inserts records in a single transaction.
func (sw *SQLiteWriter) Write(records []*models.ResolvedRecord) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	stmt, err := tx.Prepare(`insert into resolved_records
		(todays_date, scan_address, collection_name, collection, asset_number, best_offer, premium)
		values (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare sqlite insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.TodaysDate, r.ScanAddress, r.CollectionName, r.Collection, r.AssetNumber, r.BestOffer, r.Premium); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sqlite record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

// Close closes the database.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate pings the database.
func (sw *SQLiteWriter) Validate() error {
	if err := sw.db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite archive: %w", err)
	}
	return nil
}

package storage

import (
	"database/sql"
	"fmt"
	"time"

	"trading-relay/src/helpers"
	"trading-relay/src/logger"
	"trading-relay/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

// SQLiteAuditStore appends log entries and trade executions to a local
// SQLite file.
type SQLiteAuditStore struct {
	Path   string
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteAuditStore(path string, log *logger.Logger) *SQLiteAuditStore {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SQLiteAuditStore{Path: path, Logger: log}
}

// -----------------------------------------------------------------------------

func (d *SQLiteAuditStore) Initialize() error {
	// Open DB
	db, err := sql.Open("sqlite", d.Path)
	if err != nil {
		return helpers.NewStorageError("open sqlite "+d.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return helpers.NewStorageError("ping sqlite "+d.Path, err)
	}
	// one writer; the audit writer is already serialized
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteAuditStore) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	queries := []string{`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			severity TEXT NOT NULL,
			subsystem TEXT,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS audit_logs_ts ON audit_logs (ts);`,
		`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			event TEXT NOT NULL,
			contract_id INTEGER,
			symbol TEXT,
			direction TEXT,
			stake REAL,
			price REAL,
			profit REAL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS trades_ts ON trades (ts);`,
	}
	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return helpers.NewStorageError("create audit tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteAuditStore) SaveLogEntry(e models.MLogEntry) error {
	_, err := d.DB.Exec(`
		INSERT INTO audit_logs (id, ts, severity, subsystem, message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Timestamp.UnixMilli(), string(e.Severity), e.Subsystem, e.Message)
	if err != nil {
		return helpers.NewStorageError("save log entry", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteAuditStore) SaveTrade(r models.MTradeRecord) error {
	_, err := d.DB.Exec(`
		INSERT INTO trades (id, ts, event, contract_id, symbol, direction, stake, price, profit, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Time.UnixMilli(), r.Event, r.ContractID, r.Symbol, r.Direction, r.Stake, r.Price, r.Profit, r.Detail)
	if err != nil {
		return helpers.NewStorageError("save trade", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// RecentTrades returns up to limit records, newest first.
func (d *SQLiteAuditStore) RecentTrades(limit int) ([]models.MTradeRecord, error) {
	rows, err := d.DB.Query(`
		SELECT id, ts, event, contract_id, symbol, direction, stake, price, profit, detail
		FROM trades ORDER BY ts DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, helpers.NewStorageError("query trades", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteAuditStore) CleanupOldData(cutoff time.Time) error {
	ms := cutoff.UTC().UnixMilli()
	d.Logger.Info("Cleaning up audit data older than %s", cutoff.UTC().Format(time.RFC3339))

	for _, table := range []string{"audit_logs", "trades"} {
		if _, err := d.DB.Exec(fmt.Sprintf("DELETE FROM %s WHERE ts < ?", table), ms); err != nil {
			return helpers.NewStorageError("cleanup "+table, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteAuditStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"trading-relay/src/helpers"
	"trading-relay/src/logger"
	"trading-relay/src/models"

	_ "github.com/lib/pq"
)

var schemaUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// -----------------------------------------------------------------------------

// PostgresAuditStore writes the audit trail into its own schema.
type PostgresAuditStore struct {
	DSN    string
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresAuditStore derives the schema from the application name.
func NewPostgresAuditStore(dsn, appName string, log *logger.Logger) *PostgresAuditStore {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &PostgresAuditStore{DSN: dsn, Schema: SchemaName(appName), Logger: log}
}

// SchemaName lowercases name and replaces anything outside [a-z0-9_].
func SchemaName(name string) string {
	s := schemaUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "trading_relay"
	}
	return s
}

// -----------------------------------------------------------------------------

func (d *PostgresAuditStore) Initialize() error {
	db, err := sql.Open("postgres", d.DSN)
	if err != nil {
		return helpers.NewStorageError("open postgres", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return helpers.NewStorageError("ping postgres", err)
	}
	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return helpers.NewStorageError("create schema "+d.Schema, err)
	}
	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresAuditStore initialized successfully (Schema: %s)", d.Schema)
	return nil
}

func (d *PostgresAuditStore) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, d.Schema, name)
}

// -----------------------------------------------------------------------------

func (d *PostgresAuditStore) createTables() error {
	queries := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				ts TIMESTAMPTZ NOT NULL,
				severity TEXT NOT NULL,
				subsystem TEXT,
				message TEXT NOT NULL
			);`, d.table("audit_logs")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS audit_logs_ts ON %s (ts);`, d.table("audit_logs")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				ts TIMESTAMPTZ NOT NULL,
				event TEXT NOT NULL,
				contract_id BIGINT,
				symbol TEXT,
				direction TEXT,
				stake DOUBLE PRECISION,
				price DOUBLE PRECISION,
				profit DOUBLE PRECISION,
				detail TEXT
			);`, d.table("trades")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS trades_ts ON %s (ts);`, d.table("trades")),
	}
	for _, q := range queries {
		if _, err := d.DB.Exec(q); err != nil {
			return helpers.NewStorageError("create audit tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresAuditStore) SaveLogEntry(e models.MLogEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, ts, severity, subsystem, message)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, d.table("audit_logs"))
	if _, err := d.DB.Exec(query, e.ID, e.Timestamp.UTC(), string(e.Severity), e.Subsystem, e.Message); err != nil {
		return helpers.NewStorageError("save log entry", err)
	}
	return nil
}

func (d *PostgresAuditStore) SaveTrade(r models.MTradeRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, ts, event, contract_id, symbol, direction, stake, price, profit, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, d.table("trades"))
	_, err := d.DB.Exec(query, r.ID, r.Time.UTC(), r.Event, r.ContractID, r.Symbol, r.Direction, r.Stake, r.Price, r.Profit, r.Detail)
	if err != nil {
		return helpers.NewStorageError("save trade", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// RecentTrades returns up to limit records, newest first.
func (d *PostgresAuditStore) RecentTrades(limit int) ([]models.MTradeRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, (EXTRACT(EPOCH FROM ts) * 1000)::BIGINT, event, contract_id, symbol, direction, stake, price, profit, detail
		FROM %s ORDER BY ts DESC, id DESC LIMIT $1
	`, d.table("trades"))
	rows, err := d.DB.Query(query, limit)
	if err != nil {
		return nil, helpers.NewStorageError("query trades", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (d *PostgresAuditStore) CleanupOldData(cutoff time.Time) error {
	d.Logger.Info("Cleaning up audit data older than %s", cutoff.UTC().Format(time.RFC3339))
	for _, name := range []string{"audit_logs", "trades"} {
		if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, d.table(name)), cutoff.UTC()); err != nil {
			return helpers.NewStorageError("cleanup "+name, err)
		}
	}
	return nil
}

func (d *PostgresAuditStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

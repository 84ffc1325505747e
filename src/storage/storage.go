package storage

import (
	"database/sql"
	"strings"
	"time"

	"trading-relay/src/config"
	"trading-relay/src/helpers"
	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
)

// NewAuditStore builds the store selected by storage.db_type. It returns
// nil, nil when auditing is disabled.
func NewAuditStore(cfg *config.Config, log *logger.Logger) (interfaces.IAuditStore, error) {
	switch strings.ToLower(cfg.Storage.DBType) {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLiteAuditStore(cfg.Storage.DBPath, log), nil
	case "postgres":
		return NewPostgresAuditStore(cfg.Storage.DBConnectionString, cfg.Name, log), nil
	default:
		return nil, helpers.NewConfigurationError("unknown storage.db_type %q", cfg.Storage.DBType)
	}
}

// scanTrades reads rows whose ts column is unix milliseconds.
func scanTrades(rows *sql.Rows) ([]models.MTradeRecord, error) {
	var out []models.MTradeRecord
	for rows.Next() {
		var (
			r         models.MTradeRecord
			ms        int64
			contract  sql.NullInt64
			symbol    sql.NullString
			direction sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&r.ID, &ms, &r.Event, &contract, &symbol, &direction, &r.Stake, &r.Price, &r.Profit, &detail); err != nil {
			return nil, helpers.NewStorageError("scan trade", err)
		}
		r.Time = time.UnixMilli(ms).UTC()
		r.ContractID = contract.Int64
		r.Symbol = symbol.String
		r.Direction = direction.String
		r.Detail = detail.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewStorageError("iterate trades", err)
	}
	return out, nil
}

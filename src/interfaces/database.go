package interfaces

import (
	"time"

	"trading-relay/src/models"
)

// -----------------------------------------------------------------------------
// IAuditStore defines the contract for the append-only audit trail.
// -----------------------------------------------------------------------------

type IAuditStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveLogEntry appends one activity log entry.
	SaveLogEntry(entry models.MLogEntry) error

	// -----------------------------------------------------------------------------

	// SaveTrade appends one trade execution record.
	SaveTrade(record models.MTradeRecord) error

	// -----------------------------------------------------------------------------

	// RecentTrades returns up to limit records, newest first.
	RecentTrades(limit int) ([]models.MTradeRecord, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes rows older than cutoff.
	CleanupOldData(cutoff time.Time) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}

package models

import "time"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// MLogEntry is one line of the user-visible activity log.
type MLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"type"`
	Message   string    `json:"message"`
	Subsystem string    `json:"subsystem"`
}

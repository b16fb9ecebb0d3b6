// Package models contains domain types for the serial hub.
package models

import "time"

// Direction indicates whether an entry was transmitted or received.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Entry represents a single timestamped log line in a port's buffer.
// Entries are immutable once created.
type Entry struct {
	Direction Direction `json:"direction"`
	Payload   string    `json:"payload"`   // canonical hex bytes, e.g. "DE AD BE EF"
	Annotated string    `json:"annotated"` // payload plus matched rule comments
	Timestamp time.Time `json:"timestamp"`
}

// Display renders an entry the way the desktop log view shows it.
func (e Entry) Display() string {
	return e.Timestamp.Format("2006-01-02 15:04:05.000") + " - " + e.Annotated
}

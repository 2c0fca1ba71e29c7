package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Event is the kind of a log entry. The recursion markers exist so the
// audit trail of a graph anonymisation can be reconstructed with correct
// nesting.
type Event string

const (
	EventDelete            Event = "delete"
	EventAnonymise         Event = "anonymise"
	EventRecursiveStart    Event = "anonymisation recursion start"
	EventRecursiveEnd      Event = "anonymisation recursion end"
	EventAlreadyAnonymised Event = "anonymisation abandoned, already done"
)

// Entry is one append-only audit record. Entries are never mutated except
// to attach an error message to the most recent entry for a target.
type Entry struct {
	ID           uuid.UUID
	Event        Event
	EntityType   string
	TargetPK     string
	ActingUser   string
	ErrorMessage string
	LogTime      time.Time
}

// New builds an entry for a target, stamped now.
func New(event Event, entityType, targetPK, actingUser string) Entry {
	return Entry{
		ID:         uuid.New(),
		Event:      event,
		EntityType: entityType,
		TargetPK:   targetPK,
		ActingUser: actingUser,
		LogTime:    time.Now(),
	}
}

// Summary renders the entry as a single human-readable line.
func (e Entry) Summary() string {
	line := e.LogTime.Format("2006-01-02 15:04:05") + ": " + string(e.Event) +
		" performed on " + e.EntityType + " " + e.TargetPK + " [" + e.ActingUser + "]"
	if e.ErrorMessage != "" {
		line += " error: " + e.ErrorMessage
	}
	return line
}

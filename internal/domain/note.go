package domain

import "time"

// NoteType differentiates free-form notes from engine generated ones.
type NoteType string

const (
	NoteTypeGeneral        NoteType = "general"
	NoteTypeStatusChange   NoteType = "status_change"
	NoteTypeAssignment     NoteType = "assignment"
	NoteTypePriorityChange NoteType = "priority_change"
	NoteTypeSystem         NoteType = "system"
)

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool {
	switch t {
	case NoteTypeGeneral, NoteTypeStatusChange, NoteTypeAssignment, NoteTypePriorityChange, NoteTypeSystem:
		return true
	}
	return false
}

// Note is an append-only comment attached to a work item.
type Note struct {
	ID                int64
	WorkItemID        string
	Type              NoteType
	Text              string
	Internal          bool
	ExternallyVisible bool
	CreatedBy         string
	CreatedAt         time.Time
}

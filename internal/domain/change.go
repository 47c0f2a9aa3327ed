package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChangeOp is the index mutation requested by a change event.
type ChangeOp string

const (
	OpUpsert ChangeOp = "upsert"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent tells the synchronizer that one record changed. Cause is set on
// cascade events and names the record whose write triggered them. Version is
// the emission time in nanoseconds and only feeds lag reporting. Document
// versions come from the record read at apply time.
type ChangeEvent struct {
	EventID uuid.UUID  `json:"event_id"`
	Type    EntityType `json:"type"`
	ID      uuid.UUID  `json:"id"`
	Op      ChangeOp   `json:"op"`
	Version int64      `json:"version"`
	Cause   *EntityRef `json:"cause,omitempty"`
}

// NewChangeEvent stamps a new event with a fresh id and the current time as version.
func NewChangeEvent(ref EntityRef, op ChangeOp) ChangeEvent {
	return ChangeEvent{
		EventID: uuid.New(),
		Type:    ref.Type,
		ID:      ref.ID,
		Op:      op,
		Version: time.Now().UnixNano(),
	}
}

func (e ChangeEvent) Ref() EntityRef { return EntityRef{Type: e.Type, ID: e.ID} }

// Key is the partitioning key; every event for one record shares it.
func (e ChangeEvent) Key() string { return e.Ref().String() }

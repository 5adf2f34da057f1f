package schema

import "time"

// EventType enumerates the data-change notifications the engine consumes.
type EventType string

const (
	EventEntityCreated   EventType = "entity_created"
	EventEntityUpdated   EventType = "entity_updated"
	EventRelationCreated EventType = "relation_created"
	EventManual          EventType = "manual"
	EventScheduled       EventType = "scheduled"
)

// Entity is the post-write snapshot the entity store hands to the engine.
type Entity struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Name      string         `json:"name,omitempty"`
	Content   string         `json:"content,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Doc returns the entity as a plain JSON-style document, the shape
// legacy filter paths and template lookups walk.
func (e *Entity) Doc() map[string]any {
	tags := make([]any, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = t
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"id":         e.ID,
		"type":       e.Type,
		"name":       e.Name,
		"content":    e.Content,
		"tags":       tags,
		"metadata":   meta,
		"created_at": e.CreatedAt.Format(time.RFC3339),
		"updated_at": e.UpdatedAt.Format(time.RFC3339),
	}
}

// Relation is the post-write snapshot of a link between two entities.
type Relation struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"sourceId"`
	TargetID     string         `json:"targetId"`
	RelationType string         `json:"relationType"`
	Strength     float64        `json:"strength,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Doc returns the relation as a plain JSON-style document.
func (r *Relation) Doc() map[string]any {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"id":            r.ID,
		"source_id":     r.SourceID,
		"target_id":     r.TargetID,
		"relation_type": r.RelationType,
		"strength":      r.Strength,
		"metadata":      meta,
	}
}

// ChangeEvent is a notification of a data mutation or a synthetic
// scheduled/manual firing. Ephemeral: consumed by the dispatcher,
// snapshotted onto runs, never stored on its own.
type ChangeEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"eventType"`
	Entities   []Entity       `json:"entities,omitempty"`
	Relation   *Relation      `json:"relation,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"` // caller-supplied, manual triggers only
	OccurredAt time.Time      `json:"occurredAt"`

	// TargetWorkflowID narrows dispatch to a single workflow. Set by the
	// manual trigger path and by the scheduler's synthetic events.
	TargetWorkflowID string `json:"targetWorkflowId,omitempty"`
}

package template

import (
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// Context holds the data available to placeholder resolution for one
// run: the triggering entity and relation, the manual-trigger payload,
// and a fixed evaluation time so resolution stays deterministic.
type Context struct {
	Entity   *schema.Entity
	Relation *schema.Relation
	Payload  map[string]any
	Now      time.Time
}

// FromEvent builds a resolution context for one entity of a change event.
func FromEvent(ev schema.ChangeEvent, entity *schema.Entity) *Context {
	now := ev.OccurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &Context{
		Entity:   entity,
		Relation: ev.Relation,
		Payload:  ev.Payload,
		Now:      now,
	}
}

// Data returns the namespace map placeholders and conditions resolve
// against: entity.*, relation.*, payload.*, datetime.*.
func (c *Context) Data() map[string]any {
	data := map[string]any{
		"entity":   map[string]any{},
		"relation": map[string]any{},
		"payload":  map[string]any{},
		"datetime": map[string]any{
			"now":   c.Now.Format(time.RFC3339),
			"today": c.Now.Format("2006-01-02"),
		},
	}
	if c.Entity != nil {
		data["entity"] = c.Entity.Doc()
	}
	if c.Relation != nil {
		data["relation"] = c.Relation.Doc()
	}
	if c.Payload != nil {
		data["payload"] = c.Payload
	}
	return data
}

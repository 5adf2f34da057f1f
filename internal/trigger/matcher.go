// Package trigger normalizes workflow triggers into a single canonical
// form at registration time and evaluates change events against them.
// Matching is pure: no side effects, no stored state.
package trigger

import (
	"reflect"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/robfig/cron/v3"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// cronParser accepts standard 5-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// legacyFilter is one dotted-key condition compiled to a jq query.
type legacyFilter struct {
	key      string
	code     *gojq.Code
	expected any
}

// Compiled is the canonical internal trigger form. The legacy and direct
// shapes both normalize into it so matching has a single code path.
type Compiled struct {
	entityType string
	content    string
	name       string
	tags       []string
	metadata   map[string]any

	eventType schema.EventType
	filters   []legacyFilter

	schedule     cron.Schedule
	scheduleExpr string
}

// Compile validates a trigger and produces its canonical form.
// Rejected: mixing direct and legacy fields, unparseable cron
// expressions, unparseable filter keys, and triggers with no matchable
// condition and no schedule (an empty trigger would match nothing).
func Compile(t schema.Trigger) (*Compiled, error) {
	if t.HasDirect() && t.HasLegacy() {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"trigger mixes direct fields with legacy eventType/filter; use one form")
	}
	if !t.HasDirect() && !t.HasLegacy() && t.Schedule == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"trigger specifies no condition and no schedule; it would never fire")
	}

	c := &Compiled{
		entityType: t.EntityType,
		content:    t.Content,
		name:       t.Name,
		tags:       append([]string(nil), t.Tags...),
		metadata:   t.Metadata,
		eventType:  schema.EventType(t.EventType),
	}

	if t.Schedule != "" {
		sched, err := cronParser.Parse(t.Schedule)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"invalid cron expression %q: %s", t.Schedule, err.Error()).WithCause(err)
		}
		c.schedule = sched
		c.scheduleExpr = t.Schedule
	}

	for key, expected := range t.Filter {
		query, err := gojq.Parse("." + key)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"invalid filter key %q: %s", key, err.Error()).WithCause(err)
		}
		code, err := gojq.Compile(query,
			gojq.WithEnvironLoader(func() []string { return nil }),
		)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"cannot compile filter key %q: %s", key, err.Error()).WithCause(err)
		}
		c.filters = append(c.filters, legacyFilter{key: key, code: code, expected: expected})
	}

	return c, nil
}

// Scheduled reports whether the trigger carries a cron schedule.
func (c *Compiled) Scheduled() bool { return c.schedule != nil }

// Schedule returns the parsed cron schedule, or nil.
func (c *Compiled) Schedule() cron.Schedule { return c.schedule }

// ScheduleExpr returns the raw cron expression.
func (c *Compiled) ScheduleExpr() string { return c.scheduleExpr }

// Matches evaluates one entity of a change event against the trigger.
// An event with N entities yields N independent checks. A filter path
// that cannot be resolved is a non-match, never a fault.
func (c *Compiled) Matches(ev schema.ChangeEvent, entity *schema.Entity) bool {
	switch ev.Type {
	case schema.EventManual:
		// The manual path targets a specific workflow and always matches,
		// passing the caller payload through as the event context.
		return true
	case schema.EventScheduled:
		return c.schedule != nil
	}

	// Entity/relation events never fire schedule-only triggers.
	if !c.hasDirect() && len(c.filters) == 0 && c.eventType == "" {
		return false
	}

	if c.eventType != "" || len(c.filters) > 0 {
		return c.matchesLegacy(ev, entity)
	}
	return c.matchesDirect(entity)
}

func (c *Compiled) hasDirect() bool {
	return c.entityType != "" || c.content != "" || c.name != "" ||
		len(c.tags) > 0 || len(c.metadata) > 0
}

// matchesDirect ANDs every specified direct-form field against the
// entity snapshot. Absent entity fields never match; there are no
// implicit wildcards.
func (c *Compiled) matchesDirect(entity *schema.Entity) bool {
	if entity == nil {
		return false
	}
	if c.entityType != "" && entity.Type != c.entityType {
		return false
	}
	if c.content != "" && !strings.Contains(entity.Content, c.content) {
		return false
	}
	if c.name != "" && !strings.Contains(entity.Name, c.name) {
		return false
	}
	if len(c.tags) > 0 && !intersects(c.tags, entity.Tags) {
		return false
	}
	for key, expected := range c.metadata {
		actual, ok := entity.Metadata[key]
		if !ok || !looseEqual(actual, expected) {
			return false
		}
	}
	return true
}

// matchesLegacy evaluates eventType plus dotted filter paths against
// the entity document, e.g. entity.type or entity.metadata.priority.
func (c *Compiled) matchesLegacy(ev schema.ChangeEvent, entity *schema.Entity) bool {
	if c.eventType != "" && ev.Type != c.eventType {
		return false
	}
	if len(c.filters) == 0 {
		return true
	}
	if entity == nil {
		return false
	}

	doc := map[string]any{"entity": entity.Doc()}
	if ev.Relation != nil {
		doc["relation"] = ev.Relation.Doc()
	}

	for _, f := range c.filters {
		actual, ok := runFilter(f.code, doc)
		if !ok || actual == nil {
			return false
		}
		if !filterValueMatches(actual, f.expected) {
			return false
		}
	}
	return true
}

// runFilter executes a compiled jq path query, returning the first
// output. Evaluation errors count as unresolved (non-match).
func runFilter(code *gojq.Code, doc map[string]any) (any, bool) {
	iter := code.Run(doc)
	val, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if _, isErr := val.(error); isErr {
		return nil, false
	}
	return val, true
}

// filterValueMatches compares a resolved filter value to the expected
// one. A list expectation matches on non-empty intersection with a list
// value; scalars compare by loose equality.
func filterValueMatches(actual, expected any) bool {
	if expectedList, ok := expected.([]any); ok {
		actualList, ok := actual.([]any)
		if !ok {
			return false
		}
		for _, want := range expectedList {
			for _, have := range actualList {
				if looseEqual(have, want) {
					return true
				}
			}
		}
		return false
	}
	return looseEqual(actual, expected)
}

// intersects reports whether the two tag sets share any element.
func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// looseEqual compares values with JSON-style numeric coercion, since
// decoded filters carry float64 while entity metadata may hold ints.
// Non-numeric values compare deeply: metadata and filter entries may
// hold objects or arrays, which == cannot compare.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if _, bok := asFloat(b); bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

package suggest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// minSampleSize is the observation floor: a pattern seen fewer times
// produces no suggestion.
const minSampleSize = 3

// confidenceSaturation is the sample count at which confidence stops
// growing with more observations.
const confidenceSaturation = 10

// pattern is one mined regularity before it becomes a suggestion.
type pattern struct {
	Type       schema.PatternType
	Strength   float64 // 0..1, how pronounced the pattern is
	SampleSize int
	Impact     string
	Rationale  string
	Proposed   schema.WorkflowDefinition
}

// confidence scales strength by sample size: rare patterns score low
// even when pronounced.
func (p pattern) confidence() float64 {
	factor := float64(p.SampleSize) / confidenceSaturation
	if factor > 1 {
		factor = 1
	}
	c := p.Strength * factor
	if c > 1 {
		c = 1
	}
	return c
}

// mineCreationFrequency finds entity types created often enough that
// tagging or follow-up automation pays off.
func mineCreationFrequency(entities []*schema.Entity) []pattern {
	counts := make(map[string]int)
	for _, e := range entities {
		if e.Type != "" {
			counts[e.Type]++
		}
	}

	var patterns []pattern
	for entityType, count := range counts {
		if count < minSampleSize || entityType == "task" {
			continue
		}
		strength := float64(count) / float64(len(entities))
		patterns = append(patterns, pattern{
			Type:       schema.PatternCreationFrequency,
			Strength:   0.5 + strength/2,
			SampleSize: count,
			Impact:     fmt.Sprintf("saves one manual step per %s created", entityType),
			Rationale:  fmt.Sprintf("%d %s entities created recently; new ones could be processed automatically", count, entityType),
			Proposed: schema.WorkflowDefinition{
				Name:        fmt.Sprintf("Follow up on new %s entities", entityType),
				Description: fmt.Sprintf("Creates a review task whenever a %s entity is added.", entityType),
				Enabled:     true,
				Trigger:     schema.Trigger{EntityType: entityType},
				Actions: []schema.Action{{
					Type: schema.ActionCreateTask,
					Params: map[string]any{
						"title":    fmt.Sprintf("Review new %s: {{ entity.name }}", entityType),
						"content":  "Created from {{ entity.id }} on {{ datetime.today }}",
						"priority": "low",
					},
				}},
			},
		})
	}
	return patterns
}

// mineCompletionRate looks at open versus done tasks; a large open
// backlog suggests a recurring reminder.
func mineCompletionRate(entities []*schema.Entity) []pattern {
	var open, done int
	for _, e := range entities {
		if e.Type != "task" {
			continue
		}
		status, _ := e.Metadata["status"].(string)
		switch status {
		case "done", "completed":
			done++
		default:
			open++
		}
	}
	total := open + done
	if total < minSampleSize || open == 0 {
		return nil
	}

	openRate := float64(open) / float64(total)
	if openRate < 0.5 {
		return nil
	}

	return []pattern{{
		Type:       schema.PatternCompletionRate,
		Strength:   openRate,
		SampleSize: total,
		Impact:     fmt.Sprintf("%d open tasks surfaced daily instead of going stale", open),
		Rationale:  fmt.Sprintf("%d of %d recent tasks are still open; a daily digest keeps them visible", open, total),
		Proposed: schema.WorkflowDefinition{
			Name:        "Daily open-task digest",
			Description: "Posts a daily notification summarizing open tasks.",
			Enabled:     true,
			Trigger:     schema.Trigger{Schedule: "0 9 * * *"},
			Actions: []schema.Action{{
				Type: schema.ActionNotify,
				Params: map[string]any{
					"message": "Daily reminder for {{ datetime.today }}: review your open tasks.",
					"channel": "console",
				},
			}},
		},
	}}
}

// mineTemporal clusters creation times by hour of day; a dominant hour
// suggests a scheduled preparation workflow.
func mineTemporal(entities []*schema.Entity) []pattern {
	if len(entities) < minSampleSize {
		return nil
	}
	byHour := make(map[int]int)
	for _, e := range entities {
		byHour[e.CreatedAt.Hour()]++
	}

	bestHour, bestCount := -1, 0
	for hour, count := range byHour {
		if count > bestCount {
			bestHour, bestCount = hour, count
		}
	}
	if bestCount < minSampleSize {
		return nil
	}

	share := float64(bestCount) / float64(len(entities))
	if share < 0.3 {
		return nil
	}

	return []pattern{{
		Type:       schema.PatternTemporal,
		Strength:   share,
		SampleSize: bestCount,
		Impact:     fmt.Sprintf("prepares your workspace before the %02d:00 activity spike", bestHour),
		Rationale:  fmt.Sprintf("%d of %d recent entries were created around %02d:00", bestCount, len(entities), bestHour),
		Proposed: schema.WorkflowDefinition{
			Name:        fmt.Sprintf("Prepare for %02d:00 activity", bestHour),
			Description: "Runs shortly before the hour when you usually capture new entries.",
			Enabled:     true,
			Trigger:     schema.Trigger{Schedule: fmt.Sprintf("45 %d * * *", (bestHour+23)%24)},
			Actions: []schema.Action{{
				Type: schema.ActionNotify,
				Params: map[string]any{
					"message": fmt.Sprintf("Heads up: your usual %02d:00 capture window is coming up.", bestHour),
					"channel": "console",
				},
			}},
		},
	}}
}

// stopwords excluded from keyword mining.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"from": {}, "have": {}, "will": {}, "about": {}, "into": {}, "your": {},
	"are": {}, "was": {}, "were": {}, "been": {}, "they": {}, "them": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "would": {},
	"should": {}, "could": {}, "there": {}, "their": {}, "then": {}, "than": {},
	"some": {}, "just": {}, "over": {}, "also": {}, "after": {}, "before": {},
}

// mineKeywords finds recurring content words worth a content trigger.
func mineKeywords(entities []*schema.Entity) []pattern {
	counts := make(map[string]int)
	for _, e := range entities {
		seen := make(map[string]struct{})
		for _, word := range strings.Fields(strings.ToLower(e.Name + " " + e.Content)) {
			word = strings.Trim(word, ".,;:!?()[]\"'")
			if len(word) < 4 {
				continue
			}
			if _, stop := stopwords[word]; stop {
				continue
			}
			// Count each word once per entity.
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			counts[word]++
		}
	}

	type kw struct {
		word  string
		count int
	}
	var candidates []kw
	for word, count := range counts {
		if count >= minSampleSize {
			candidates = append(candidates, kw{word, count})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].word < candidates[j].word
	})
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}

	var patterns []pattern
	for _, c := range candidates {
		share := float64(c.count) / float64(len(entities))
		patterns = append(patterns, pattern{
			Type:       schema.PatternKeyword,
			Strength:   0.4 + share/2,
			SampleSize: c.count,
			Impact:     fmt.Sprintf("entries mentioning %q get tracked automatically", c.word),
			Rationale:  fmt.Sprintf("%q appears in %d recent entries", c.word, c.count),
			Proposed: schema.WorkflowDefinition{
				Name:        fmt.Sprintf("Track mentions of %q", c.word),
				Description: fmt.Sprintf("Creates a task when new content mentions %q.", c.word),
				Enabled:     true,
				Trigger:     schema.Trigger{Content: c.word},
				Actions: []schema.Action{{
					Type: schema.ActionCreateTask,
					Params: map[string]any{
						"title":    fmt.Sprintf("Follow up: %s in {{ entity.name }}", c.word),
						"content":  "Mentioned in {{ entity.id }}",
						"priority": "low",
					},
				}},
			},
		})
	}
	return patterns
}

// seededPatterns are the starter proposals offered before enough
// history exists to mine anything.
func seededPatterns() []pattern {
	return []pattern{
		{
			Type:       schema.PatternCreationFrequency,
			Strength:   0.6,
			SampleSize: confidenceSaturation,
			Impact:     "every meeting gets a follow-up task without manual entry",
			Rationale:  "meetings commonly need follow-ups; this is a popular starter automation",
			Proposed: schema.WorkflowDefinition{
				Name:        "Meeting follow-up tasks",
				Description: "Creates a follow-up task whenever a meeting entity is saved.",
				Enabled:     true,
				Trigger:     schema.Trigger{EntityType: "meeting"},
				Actions: []schema.Action{{
					Type: schema.ActionCreateTask,
					Params: map[string]any{
						"title":    "Follow up: {{ entity.name }}",
						"content":  "Review notes from {{ entity.name }} ({{ datetime.today }})",
						"priority": "medium",
					},
				}},
			},
		},
		{
			Type:       schema.PatternTemporal,
			Strength:   0.5,
			SampleSize: confidenceSaturation,
			Impact:     "a weekly review prompt lands every Friday afternoon",
			Rationale:  "weekly reviews are a common productivity baseline",
			Proposed: schema.WorkflowDefinition{
				Name:        "Weekly review reminder",
				Description: "Reminds you to review the week every Friday at 16:00.",
				Enabled:     true,
				Trigger:     schema.Trigger{Schedule: "0 16 * * 5"},
				Actions: []schema.Action{{
					Type: schema.ActionNotify,
					Params: map[string]any{
						"message": "Time for your weekly review ({{ datetime.today }}).",
						"channel": "console",
					},
				}},
			},
		},
	}
}

package schema

import "time"

// PatternType names the four families of mined activity patterns.
type PatternType string

const (
	PatternCreationFrequency PatternType = "entity_creation_frequency"
	PatternCompletionRate    PatternType = "completion_rate"
	PatternTemporal          PatternType = "temporal"
	PatternKeyword           PatternType = "keyword"
)

// SuggestionStatus tracks a suggestion through review.
type SuggestionStatus string

const (
	SuggestionProposed  SuggestionStatus = "proposed"
	SuggestionApproved  SuggestionStatus = "approved"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// WorkflowSuggestion is a system-proposed, not-yet-active workflow
// inferred from historical activity. Approval materializes the embedded
// draft through the registry.
type WorkflowSuggestion struct {
	ID             string             `json:"suggestionId"`
	PatternType    PatternType        `json:"patternType"`
	Confidence     float64            `json:"confidence"` // 0..1
	ImpactEstimate string             `json:"impactEstimate"`
	Rationale      string             `json:"rationale,omitempty"`
	Proposed       WorkflowDefinition `json:"proposedDefinition"`
	Status         SuggestionStatus   `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Package plan describes what a run is trying to reach and extract.
package plan

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/relscout/internal/state"
)

// Goal is the closed set of things a run can be asked for.
type Goal string

const (
	GoalLatestRelease Goal = "latest_release"
	GoalCode          Goal = "code"
	GoalCustom        Goal = "custom"
)

// ExtractionMode selects the extraction strategy for a goal.
type ExtractionMode string

const (
	ModeStructured ExtractionMode = "structured"
	ModeFlexible   ExtractionMode = "flexible"
)

// Behavior is the per-goal entry of the dispatch table.
type Behavior struct {
	Terminal state.Category
	Mode     ExtractionMode
}

var behaviors = map[Goal]Behavior{
	GoalLatestRelease: {Terminal: state.TargetSection, Mode: ModeStructured},
	GoalCode:          {Terminal: state.TargetEntity, Mode: ModeFlexible},
	GoalCustom:        {Terminal: state.TargetEntity, Mode: ModeFlexible},
}

// ParseGoal validates a goal string.
func ParseGoal(s string) (Goal, error) {
	g := Goal(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := behaviors[g]; !ok {
		return "", fmt.Errorf("unknown goal '%s'. Supported: [%s, %s, %s]", s, GoalLatestRelease, GoalCode, GoalCustom)
	}
	return g, nil
}

// Behavior returns the dispatch entry for g. Goals are validated on
// construction so every Goal held by a Plan has an entry.
func (g Goal) Behavior() Behavior {
	return behaviors[g]
}

// DefaultFields are the release attributes extracted when none are requested.
var DefaultFields = []string{"version", "tag", "author", "published_at", "notes", "assets"}

// Plan is the immutable description of one run.
type Plan struct {
	Goal             Goal     `json:"goal"`
	Target           string   `json:"target"`
	SearchQuery      string   `json:"search_query"`
	RequiredFields   []string `json:"required_fields"`
	RequiredEntities []string `json:"required_entities"`
	RawPrompt        string   `json:"raw_prompt,omitempty"`
}

// New builds a Plan for target ("owner/name") and goal. The search query is
// the name part of the target.
func New(goal Goal, target, rawPrompt string, fields []string) (Plan, error) {
	if _, ok := behaviors[goal]; !ok {
		return Plan{}, fmt.Errorf("unknown goal '%s'", goal)
	}
	target = strings.Trim(strings.TrimSpace(target), "/")
	if target == "" {
		return Plan{}, fmt.Errorf("target is required")
	}

	entities := []string{target}
	if goal.Behavior().Terminal == state.TargetSection {
		entities = append(entities, "Releases")
	}

	p := Plan{
		Goal:             goal,
		Target:           target,
		RequiredFields:   normalizeFields(fields),
		RequiredEntities: entities,
		RawPrompt:        strings.TrimSpace(rawPrompt),
	}
	p.SearchQuery = p.Name()
	return p, nil
}

// Name returns the entity name without its owner.
func (p Plan) Name() string {
	if i := strings.LastIndex(p.Target, "/"); i != -1 {
		return p.Target[i+1:]
	}
	return p.Target
}

func normalizeFields(fields []string) []string {
	var clean []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			clean = append(clean, f)
		}
	}
	if len(clean) == 0 {
		return append([]string(nil), DefaultFields...)
	}
	return clean
}

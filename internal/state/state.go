// Package state defines the coarse page categories the navigator reasons about
// and the pure URL/title resolver that produces them without a model.
package state

// Category is the coarse kind of page currently displayed.
type Category string

const (
	Home          Category = "home"
	SearchResults Category = "search_results"
	TargetEntity  Category = "target_entity"
	TargetSection Category = "target_section"
	Unknown       Category = "unknown"
)

// ParseCategory maps a model-reported label onto a Category. Labels for the
// GitHub-specific pages (repo_page, releases_page) are accepted as aliases.
func ParseCategory(label string) Category {
	switch label {
	case string(Home):
		return Home
	case string(SearchResults):
		return SearchResults
	case string(TargetEntity), "repo_page":
		return TargetEntity
	case string(TargetSection), "releases_page":
		return TargetSection
	default:
		return Unknown
	}
}

// HighSpecificity reports whether a category can only be produced by a URL
// that has already advanced past the landing page.
func (c Category) HighSpecificity() bool {
	return c == SearchResults || c == TargetEntity || c == TargetSection
}

// Provenance records which signal produced a PageState.
type Provenance string

const (
	FromVision    Provenance = "vision"
	FromHeuristic Provenance = "heuristic"
	// FromOverride marks a definitive heuristic that replaced a disagreeing vision reading.
	FromOverride Provenance = "override"
)

// PageState is the reconciled belief about the current page.
type PageState struct {
	Category   Category   `json:"category"`
	Confidence float64    `json:"confidence"`
	Provenance Provenance `json:"provenance"`
}

// Initial is the state carried into the first step.
var Initial = PageState{Category: Unknown, Confidence: 0, Provenance: FromHeuristic}

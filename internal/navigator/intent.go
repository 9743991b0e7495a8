package navigator

import (
	"github.com/xkilldash9x/relscout/internal/plan"
	"github.com/xkilldash9x/relscout/internal/state"
	"github.com/xkilldash9x/relscout/internal/vision"
)

// IntentKind tags the ActionIntent variant.
type IntentKind string

const (
	IntentSearch    IntentKind = "search"
	IntentClickRole IntentKind = "click_role"
	IntentClickText IntentKind = "click_text"
	IntentScroll    IntentKind = "scroll_and_capture"
	IntentDone      IntentKind = "done"
	IntentNoop      IntentKind = "noop"
)

// ActionIntent is what the loop decided to do on one step.
type ActionIntent struct {
	Kind  IntentKind `json:"kind"`
	Query string     `json:"query,omitempty"`
	Role  string     `json:"role,omitempty"`
	Text  string     `json:"text,omitempty"`
}

func Search(query string) ActionIntent { return ActionIntent{Kind: IntentSearch, Query: query} }
func ClickRole(role, text string) ActionIntent {
	return ActionIntent{Kind: IntentClickRole, Role: role, Text: text}
}
func ClickText(text string) ActionIntent { return ActionIntent{Kind: IntentClickText, Text: text} }
func ScrollAndCapture() ActionIntent     { return ActionIntent{Kind: IntentScroll} }
func Done() ActionIntent                 { return ActionIntent{Kind: IntentDone} }
func Noop() ActionIntent                 { return ActionIntent{Kind: IntentNoop} }

// sectionLink is the link text leading from an entity page to its section.
const sectionLink = "Releases"

// policy is one row of the decision table.
type policy struct {
	// fallback is the action taken when no suggestion is adopted.
	fallback func(p plan.Plan) ActionIntent
	// accepts lists the suggestion kinds this category will adopt from vision.
	accepts map[vision.SuggestionKind]bool
}

var policies = map[state.Category]policy{
	state.Home: {
		fallback: func(p plan.Plan) ActionIntent { return Search(p.SearchQuery) },
		accepts:  map[vision.SuggestionKind]bool{vision.SuggestSearch: true, vision.SuggestScroll: true},
	},
	state.SearchResults: {
		fallback: func(p plan.Plan) ActionIntent { return ClickRole("link", p.Target) },
		accepts:  map[vision.SuggestionKind]bool{vision.SuggestClick: true, vision.SuggestScroll: true},
	},
	state.TargetEntity: {
		fallback: func(p plan.Plan) ActionIntent {
			if p.Goal.Behavior().Terminal == state.TargetSection {
				return ClickText(sectionLink)
			}
			return Noop()
		},
		accepts: map[vision.SuggestionKind]bool{vision.SuggestClick: true, vision.SuggestScroll: true},
	},
	state.TargetSection: {
		fallback: func(plan.Plan) ActionIntent { return Noop() },
		accepts:  map[vision.SuggestionKind]bool{vision.SuggestScroll: true},
	},
}

// Decide maps the reconciled state and the model's suggestion to an intent.
// Suggestions are adopted only from a vision-provenance state and only when
// the category's row accepts that kind. Adopted clicks still target what the
// plan names, never free text from the model.
func Decide(p plan.Plan, st state.PageState, sug vision.Suggestion) ActionIntent {
	row, ok := policies[st.Category]
	if !ok {
		return Noop()
	}
	if st.Provenance == state.FromVision && row.accepts[sug.Kind] {
		switch sug.Kind {
		case vision.SuggestScroll:
			return ScrollAndCapture()
		case vision.SuggestSearch:
			if sug.Target != "" {
				return Search(sug.Target)
			}
		}
	}
	return row.fallback(p)
}

package navigator

import (
	"github.com/xkilldash9x/relscout/internal/state"
	"github.com/xkilldash9x/relscout/internal/vision"
)

// Reconcile fuses the URL heuristic with the model's reading.
//
// A definitive heuristic on a high-specificity category overrides a
// disagreeing model. A missing, unsure or Unknown model reading defers to the
// heuristic. Otherwise the model's category and suggestion are used.
func Reconcile(heur state.Resolution, cls *vision.Classification, minConfidence float64) (state.PageState, vision.Suggestion) {
	none := vision.Suggestion{Kind: vision.SuggestNone}

	if cls != nil && heur.Definitive && heur.Category.HighSpecificity() && heur.Category != cls.Category {
		return state.PageState{Category: heur.Category, Confidence: 1, Provenance: state.FromOverride}, none
	}

	if cls == nil || cls.Confidence < minConfidence || cls.Category == state.Unknown {
		conf := 0.0
		if heur.Definitive {
			conf = 1
		}
		return state.PageState{Category: heur.Category, Confidence: conf, Provenance: state.FromHeuristic}, none
	}

	return state.PageState{Category: cls.Category, Confidence: cls.Confidence, Provenance: state.FromVision}, cls.Suggestion
}

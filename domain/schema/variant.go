package schema

import (
	"fmt"

	"github.com/volplane/volplane/domain/document"
)

// resolveOneOf requires the value to validate against exactly one
// candidate. When the union declares a discriminant property the
// candidate is picked by its literal and validated directly, so its
// violations read as ordinary structural findings. Otherwise every
// candidate is tried: no match records a CodeVariant violation carrying
// the per-candidate rejection reasons; more than one match is a registry
// defect, since candidates are required to be mutually exclusive.
func (w *walker) resolveOneOf(def *Definition, v document.Value, path document.Path) {
	if def.Discriminant != "" {
		if obj, ok := v.(map[string]any); ok {
			if lit, ok := obj[def.Discriminant].(string); ok {
				if cand, ok := def.byDiscValue[lit]; ok {
					w.walk(cand, v, path)
					return
				}
			}
		}
	}

	matched := 0
	candidates := make([][]Violation, len(def.OneOf))
	for i, cand := range def.OneOf {
		sub := &walker{}
		sub.walk(cand, v, path)
		if sub.defect != nil {
			w.defect = sub.defect
			return
		}
		if len(sub.violations) == 0 {
			matched++
		}
		candidates[i] = sub.violations
	}
	switch matched {
	case 1:
		return
	case 0:
		w.violations = append(w.violations, Violation{
			Path:       path,
			Code:       CodeVariant,
			Message:    fmt.Sprintf("value matches none of %d variants", len(def.OneOf)),
			Candidates: candidates,
		})
	default:
		w.defect = fmt.Errorf("%w: value at %s satisfies %d candidates", ErrAmbiguousVariant, path, matched)
	}
}

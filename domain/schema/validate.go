package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/volplane/volplane/domain/document"
)

// Validate checks a decoded document against a named schema. It returns
// the normalized value on success. On failure it returns a
// *StructuralError carrying every violation found in the pass, or a
// *VariantError when the sole finding is a failed oneOf resolution. Any
// other error is a registry defect.
//
// Validation is a pure function of the compiled registry and the value;
// it is safe to call concurrently.
func (r *Registry) Validate(name string, v document.Value) (document.Value, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	compiled := r.compiled
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	if !compiled {
		return nil, fmt.Errorf("schema: registry not compiled")
	}

	w := &walker{}
	w.walk(def, v, document.Path{})
	if w.defect != nil {
		return nil, w.defect
	}
	if len(w.violations) > 0 {
		if len(w.violations) == 1 && w.violations[0].Code == CodeVariant {
			only := w.violations[0]
			return nil, &VariantError{Schema: name, Path: only.Path, Candidates: only.Candidates}
		}
		return nil, &StructuralError{Schema: name, Violations: w.violations}
	}
	return v, nil
}

// ValidateJSON decodes raw JSON and validates it in one step.
func (r *Registry) ValidateJSON(name string, raw []byte) (document.Value, error) {
	v, err := document.Decode(raw)
	if err != nil {
		return nil, &StructuralError{Schema: name, Violations: []Violation{{
			Path:    document.Path{},
			Code:    CodeType,
			Message: err.Error(),
		}}}
	}
	return r.Validate(name, v)
}

// walker accumulates violations across one validation pass. A defect
// aborts the pass; violations never do.
type walker struct {
	violations []Violation
	defect     error
}

func (w *walker) add(path document.Path, code Code, format string, args ...any) {
	w.violations = append(w.violations, Violation{
		Path:    path,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (w *walker) walk(def *Definition, v document.Value, path document.Path) {
	if w.defect != nil {
		return
	}

	if len(def.Types) > 0 {
		if !typeAllowed(def.Types, v) {
			w.add(path, CodeType, "expected %s, got %s", typeList(def.Types), jsonType(v))
			return
		}
		if v == nil {
			// Null accepted by the union; no further constraints apply.
			return
		}
	}

	if len(def.Enum) > 0 {
		w.checkEnum(def, v, path)
	}
	if len(def.OneOf) > 0 {
		w.resolveOneOf(def, v, path)
	}

	switch val := v.(type) {
	case string:
		w.checkString(def, val, path)
	case json.Number:
		w.checkNumber(def, val, path)
	case map[string]any:
		w.checkObject(def, val, path)
	case []any:
		w.checkArray(def, val, path)
	}
}

func (w *walker) checkEnum(def *Definition, v document.Value, path document.Path) {
	for _, lit := range def.Enum {
		if document.Equal(lit, v) {
			return
		}
	}
	w.add(path, CodeEnum, "value is not one of the permitted literals")
}

// checkString measures length in runes, matching how patterns count
// characters, so multi-byte text is not penalized.
func (w *walker) checkString(def *Definition, s string, path document.Path) {
	length := utf8.RuneCountInString(s)
	if def.MinLength != nil && length < *def.MinLength {
		w.add(path, CodeMinLength, "length %d is below minimum %d", length, *def.MinLength)
	}
	if def.MaxLength != nil && length > *def.MaxLength {
		w.add(path, CodeMaxLength, "length %d exceeds maximum %d", length, *def.MaxLength)
	}
	if def.pattern != nil && !def.pattern.MatchString(s) {
		w.add(path, CodePattern, "value does not match pattern %s", def.Pattern)
	}
}

// checkNumber applies bounds and multipleOf. Integer-valued numbers are
// compared with int64 arithmetic so multipleOf is exact.
func (w *walker) checkNumber(def *Definition, n json.Number, path document.Path) {
	if def.Minimum == nil && def.Maximum == nil && def.MultipleOf == nil {
		return
	}
	i, err := n.Int64()
	if err != nil {
		// A fractional value cannot satisfy an integral multipleOf, and
		// bounds on it compare through float64.
		f, ferr := n.Float64()
		if ferr != nil {
			w.add(path, CodeType, "number %s is out of range", n)
			return
		}
		if def.Minimum != nil && f < float64(*def.Minimum) {
			w.add(path, CodeMinimum, "%s is below minimum %d", n, *def.Minimum)
		}
		if def.Maximum != nil && f > float64(*def.Maximum) {
			w.add(path, CodeMaximum, "%s exceeds maximum %d", n, *def.Maximum)
		}
		if def.MultipleOf != nil {
			w.add(path, CodeMultipleOf, "%s is not a multiple of %d", n, *def.MultipleOf)
		}
		return
	}
	if def.Minimum != nil && i < *def.Minimum {
		w.add(path, CodeMinimum, "%d is below minimum %d", i, *def.Minimum)
	}
	if def.Maximum != nil && i > *def.Maximum {
		w.add(path, CodeMaximum, "%d exceeds maximum %d", i, *def.Maximum)
	}
	if def.MultipleOf != nil && i%*def.MultipleOf != 0 {
		w.add(path, CodeMultipleOf, "%d is not a multiple of %d", i, *def.MultipleOf)
	}
}

func (w *walker) checkObject(def *Definition, obj map[string]any, path document.Path) {
	for _, req := range def.Required {
		if _, ok := obj[req]; !ok {
			w.add(path, CodeRequired, "missing required property %q", req)
		}
	}
	if def.MaxProperties != nil && len(obj) > *def.MaxProperties {
		w.add(path, CodeMaxProperties, "%d properties exceed maximum %d", len(obj), *def.MaxProperties)
	}

	// Deterministic violation order.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		val := obj[k]
		child := path.Property(k)
		declared := false
		if prop, ok := def.Properties[k]; ok {
			declared = true
			w.walk(prop, val, child)
		}
		for _, pp := range def.patternProps {
			if pp.re.MatchString(k) {
				declared = true
				w.walk(pp.def, val, child)
			}
		}
		if !declared && def.AdditionalProperties != nil && !*def.AdditionalProperties {
			w.add(child, CodeUnknownField, "property %q is not recognized", k)
		}
	}
}

func (w *walker) checkArray(def *Definition, arr []any, path document.Path) {
	if def.MinItems != nil && len(arr) < *def.MinItems {
		w.add(path, CodeMinItems, "%d items is below minimum %d", len(arr), *def.MinItems)
	}
	if def.MaxItems != nil && len(arr) > *def.MaxItems {
		w.add(path, CodeMaxItems, "%d items exceeds maximum %d", len(arr), *def.MaxItems)
	}
	if def.Items != nil {
		for i, item := range arr {
			w.walk(def.Items, item, path.Index(i))
		}
	}
	if def.UniqueItems {
		for i := 1; i < len(arr); i++ {
			for j := 0; j < i; j++ {
				if document.Equal(arr[i], arr[j]) {
					w.add(path.Index(i), CodeUniqueItems, "item duplicates item %d", j)
					break
				}
			}
		}
	}
}

func typeAllowed(types []Type, v document.Value) bool {
	for _, t := range types {
		switch t {
		case TypeNull:
			if v == nil {
				return true
			}
		case TypeObject:
			if _, ok := v.(map[string]any); ok {
				return true
			}
		case TypeArray:
			if _, ok := v.([]any); ok {
				return true
			}
		case TypeString:
			if _, ok := v.(string); ok {
				return true
			}
		case TypeBoolean:
			if _, ok := v.(bool); ok {
				return true
			}
		case TypeNumber:
			if _, ok := v.(json.Number); ok {
				return true
			}
		case TypeInteger:
			if n, ok := v.(json.Number); ok {
				if _, err := n.Int64(); err == nil {
					return true
				}
			}
		}
	}
	return false
}

func jsonType(v document.Value) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func typeList(types []Type) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += " or "
		}
		out += string(t)
	}
	return out
}

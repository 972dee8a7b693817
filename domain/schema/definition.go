package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/volplane/volplane/domain/document"
)

// Type names a JSON type a definition accepts.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
)

// Definition is a compiled-form schema node: the constraint set a value
// must satisfy. Definitions are authored as composite literals and then
// compiled by the Registry, which resolves Ref indirections, flattens
// AllOf compositions and compiles patterns. A zero-constraint Definition
// accepts any value.
type Definition struct {
	// Ref names another registered definition ("#/definitions/<name>" or
	// a bare name). A pure reference carries no other constraints; the
	// Registry replaces it with the target at compile time.
	Ref string

	// AllOf merges the constraint sets of every branch; all must hold.
	// Flattened into this definition at compile time.
	AllOf []*Definition

	// Types restricts the JSON type. Empty accepts any type. A union
	// such as [number, null] accepts either member.
	Types []Type

	// String constraints.
	Pattern   string
	MinLength *int
	MaxLength *int

	// Number constraints. Bounds are integral; MultipleOf is checked
	// exactly on the integer value, never through float remainders.
	Minimum    *int64
	Maximum    *int64
	MultipleOf *int64

	// Object constraints.
	Required             []string
	Properties           map[string]*Definition
	PatternProperties    map[string]*Definition
	AdditionalProperties *bool // nil or true = open; false = closed
	MaxProperties        *int

	// Array constraints.
	Items       *Definition
	MinItems    *int
	MaxItems    *int
	UniqueItems bool

	// Enum restricts the value to one of the listed literals.
	Enum []document.Value

	// OneOf requires the value to match exactly one candidate. When
	// Discriminant names a property, resolution dispatches on that
	// property's enum literal instead of trying every candidate.
	OneOf        []*Definition
	Discriminant string

	pattern      *regexp.Regexp
	patternProps []patternProperty
	byDiscValue  map[string]*Definition
	compiled     bool
}

type patternProperty struct {
	re  *regexp.Regexp
	def *Definition
}

// isRef reports whether the definition is a pure reference.
func (d *Definition) isRef() bool {
	return d.Ref != ""
}

// compilePatterns compiles the regex constraints of a single node.
func (d *Definition) compilePatterns() error {
	if d.Pattern != "" {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return fmt.Errorf("compile pattern %q: %w", d.Pattern, err)
		}
		d.pattern = re
	}
	if len(d.PatternProperties) > 0 {
		// Deterministic match order regardless of map iteration.
		patterns := make([]string, 0, len(d.PatternProperties))
		for p := range d.PatternProperties {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		d.patternProps = d.patternProps[:0]
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("compile pattern property %q: %w", p, err)
			}
			d.patternProps = append(d.patternProps, patternProperty{re: re, def: d.PatternProperties[p]})
		}
	}
	return nil
}

// merge folds src's constraints into d as part of AllOf flattening. Where
// both sides constrain the same dimension the stricter bound wins; where
// strictness is not defined (types, patterns, enums, items) a conflict is
// a registry defect.
func (d *Definition) merge(src *Definition) error {
	if src.isRef() || len(src.AllOf) > 0 {
		return fmt.Errorf("merge of unresolved definition")
	}
	if len(src.Types) > 0 {
		if len(d.Types) > 0 && !sameTypes(d.Types, src.Types) {
			return fmt.Errorf("allOf branches declare conflicting types")
		}
		d.Types = src.Types
	}
	if src.Pattern != "" {
		if d.Pattern != "" && d.Pattern != src.Pattern {
			return fmt.Errorf("allOf branches declare conflicting patterns")
		}
		d.Pattern = src.Pattern
	}
	d.MinLength = maxIntPtr(d.MinLength, src.MinLength)
	d.MaxLength = minIntPtr(d.MaxLength, src.MaxLength)
	d.Minimum = maxInt64Ptr(d.Minimum, src.Minimum)
	d.Maximum = minInt64Ptr(d.Maximum, src.Maximum)
	if src.MultipleOf != nil {
		if d.MultipleOf != nil && *d.MultipleOf != *src.MultipleOf {
			return fmt.Errorf("allOf branches declare conflicting multipleOf")
		}
		d.MultipleOf = src.MultipleOf
	}
	d.Required = unionStrings(d.Required, src.Required)
	for name, def := range src.Properties {
		if existing, ok := d.Properties[name]; ok && existing != def {
			return fmt.Errorf("allOf branches both declare property %q", name)
		}
		if d.Properties == nil {
			d.Properties = make(map[string]*Definition)
		}
		d.Properties[name] = def
	}
	for p, def := range src.PatternProperties {
		if existing, ok := d.PatternProperties[p]; ok && existing != def {
			return fmt.Errorf("allOf branches both declare pattern property %q", p)
		}
		if d.PatternProperties == nil {
			d.PatternProperties = make(map[string]*Definition)
		}
		d.PatternProperties[p] = def
	}
	if src.AdditionalProperties != nil {
		if d.AdditionalProperties == nil || !*src.AdditionalProperties {
			d.AdditionalProperties = src.AdditionalProperties
		}
	}
	d.MaxProperties = minIntPtr(d.MaxProperties, src.MaxProperties)
	if src.Items != nil {
		if d.Items != nil && d.Items != src.Items {
			return fmt.Errorf("allOf branches both declare items")
		}
		d.Items = src.Items
	}
	d.MinItems = maxIntPtr(d.MinItems, src.MinItems)
	d.MaxItems = minIntPtr(d.MaxItems, src.MaxItems)
	d.UniqueItems = d.UniqueItems || src.UniqueItems
	if len(src.Enum) > 0 {
		if len(d.Enum) > 0 {
			return fmt.Errorf("allOf branches both declare enum")
		}
		d.Enum = src.Enum
	}
	if len(src.OneOf) > 0 {
		if len(d.OneOf) > 0 {
			return fmt.Errorf("allOf branches both declare oneOf")
		}
		d.OneOf = src.OneOf
		d.Discriminant = src.Discriminant
	}
	return nil
}

func sameTypes(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[Type]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func maxIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a >= *b {
		return a
	}
	return b
}

func minIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a <= *b {
		return a
	}
	return b
}

func maxInt64Ptr(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil || *a >= *b {
		return a
	}
	return b
}

func minInt64Ptr(a, b *int64) *int64 {
	if a == nil {
		return b
	}
	if b == nil || *a <= *b {
		return a
	}
	return b
}

package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/volplane/volplane/domain/document"
)

// Registry defects. These indicate schema-authoring bugs, surface at
// registration/compile time, and are never presented as user-correctable
// validation failures.
var (
	ErrUnknownReference = errors.New("schema: unknown reference")
	ErrCyclicReference  = errors.New("schema: cyclic reference")
	ErrAmbiguousVariant = errors.New("schema: ambiguous oneOf candidates")
	ErrDuplicateName    = errors.New("schema: name already registered")
	ErrUnknownSchema    = errors.New("schema: unknown schema name")
)

// Code classifies a single structural violation.
type Code string

const (
	CodeType          Code = "type"
	CodePattern       Code = "pattern"
	CodeMinLength     Code = "min_length"
	CodeMaxLength     Code = "max_length"
	CodeMinimum       Code = "minimum"
	CodeMaximum       Code = "maximum"
	CodeMultipleOf    Code = "multiple_of"
	CodeRequired      Code = "required"
	CodeUnknownField  Code = "unknown_field"
	CodeMaxProperties Code = "max_properties"
	CodeMinItems      Code = "min_items"
	CodeMaxItems      Code = "max_items"
	CodeUniqueItems   Code = "unique_items"
	CodeEnum          Code = "enum"
	CodeVariant       Code = "variant"
)

// Violation is a single structural finding, tagged with the document path
// it was observed at. For CodeVariant, Candidates holds the violations
// produced against every oneOf candidate tried, in declaration order.
type Violation struct {
	Path       document.Path
	Code       Code
	Message    string
	Candidates [][]Violation
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Path, v.Code, v.Message)
}

// StructuralError reports every structural violation found in one
// validation pass. The document may be corrected and resubmitted; nothing
// was mutated on its behalf.
type StructuralError struct {
	Schema     string
	Violations []Violation
}

func (e *StructuralError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("document invalid against %q: %s", e.Schema, strings.Join(msgs, "; "))
}

// VariantError reports a oneOf resolution failure: the value matched no
// candidate, and Candidates carries the full rejection reasons for each
// one tried.
type VariantError struct {
	Schema     string
	Path       document.Path
	Candidates [][]Violation
}

func (e *VariantError) Error() string {
	return fmt.Sprintf("value at %s matches no %q variant (%d candidates tried)",
		e.Path, e.Schema, len(e.Candidates))
}

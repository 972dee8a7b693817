// Package schema implements the validation core that gates cluster
// desired-state: a registry of named definitions, a structural validator
// that reports every violation in one pass, and a discriminated-union
// resolver for oneOf variants.
package schema

import (
	"fmt"
	"strings"
	"sync"
)

// RefPrefix is the stable path prefix internal references use. Reference
// strings are part of the persisted contract.
const RefPrefix = "#/definitions/"

const (
	stateUnvisited = iota
	stateVisiting
	stateCompiled
)

// Registry is an indirection table of named definitions. Names are
// registered first, then Compile resolves every reference, flattens
// allOf compositions and verifies variant exclusivity. Defects found
// during Compile are schema-authoring bugs and fatal; they are never
// reported as document validation failures.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]*Definition
	state    map[string]int
	compiled bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		defs:  make(map[string]*Definition),
		state: make(map[string]int),
	}
}

// Register adds a named definition. Registration is rejected once the
// registry has been compiled.
func (r *Registry) Register(name string, def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return fmt.Errorf("schema: registry sealed, cannot register %q", name)
	}
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.defs[name] = def
	return nil
}

// Resolve returns the compiled definition a reference names. The
// reference may be a "#/definitions/<name>" path or a bare name.
func (r *Registry) Resolve(ref string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[refName(ref)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, ref)
	}
	return def, nil
}

// Compile resolves references, flattens allOf compositions, compiles
// patterns and verifies oneOf exclusivity for every registered
// definition. Any failure is a registry defect; the registry must not be
// used for validation afterwards.
func (r *Registry) Compile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.compiled {
		return nil
	}
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	for _, name := range names {
		if _, err := r.compileNamed(name); err != nil {
			return err
		}
	}
	r.compiled = true
	return nil
}

// compileNamed compiles one named definition, detecting reference cycles
// through the visit state.
func (r *Registry) compileNamed(name string) (*Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, name)
	}
	switch r.state[name] {
	case stateCompiled:
		return r.defs[name], nil
	case stateVisiting:
		return nil, fmt.Errorf("%w: through %q", ErrCyclicReference, name)
	}
	r.state[name] = stateVisiting

	resolved, err := r.compileNode(def)
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", name, err)
	}
	r.defs[name] = resolved
	r.state[name] = stateCompiled
	return resolved, nil
}

// compileNode resolves one definition node. Pure references collapse to
// the (compiled) target pointer, so shared sub-schemas stay shared and
// cycles are a lookup-time error rather than an ownership problem.
func (r *Registry) compileNode(d *Definition) (*Definition, error) {
	if d.compiled {
		return d, nil
	}
	if d.isRef() {
		return r.compileNamed(refName(d.Ref))
	}
	if len(d.AllOf) > 0 {
		flat, err := r.flattenAllOf(d)
		if err != nil {
			return nil, err
		}
		d = flat
	}

	for name, prop := range d.Properties {
		resolved, err := r.compileNode(prop)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		d.Properties[name] = resolved
	}
	for pat, prop := range d.PatternProperties {
		resolved, err := r.compileNode(prop)
		if err != nil {
			return nil, fmt.Errorf("pattern property %q: %w", pat, err)
		}
		d.PatternProperties[pat] = resolved
	}
	if d.Items != nil {
		resolved, err := r.compileNode(d.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		d.Items = resolved
	}
	for i, cand := range d.OneOf {
		resolved, err := r.compileNode(cand)
		if err != nil {
			return nil, fmt.Errorf("oneOf candidate %d: %w", i, err)
		}
		d.OneOf[i] = resolved
	}
	if err := d.compilePatterns(); err != nil {
		return nil, err
	}
	if len(d.OneOf) > 0 {
		if err := r.indexVariants(d); err != nil {
			return nil, err
		}
	}
	d.compiled = true
	return d, nil
}

// flattenAllOf merges every allOf branch into a single constraint set.
func (r *Registry) flattenAllOf(d *Definition) (*Definition, error) {
	flat := d.clone()
	flat.AllOf = nil
	for i, branch := range d.AllOf {
		resolved, err := r.compileNode(branch)
		if err != nil {
			return nil, fmt.Errorf("allOf branch %d: %w", i, err)
		}
		if err := flat.merge(resolved); err != nil {
			return nil, fmt.Errorf("allOf branch %d: %w", i, err)
		}
	}
	return flat, nil
}

// clone copies the node shallowly but with fresh constraint maps, so
// flattening never mutates a shared target definition.
func (d *Definition) clone() *Definition {
	out := *d
	out.compiled = false
	if d.Properties != nil {
		out.Properties = make(map[string]*Definition, len(d.Properties))
		for k, v := range d.Properties {
			out.Properties[k] = v
		}
	}
	if d.PatternProperties != nil {
		out.PatternProperties = make(map[string]*Definition, len(d.PatternProperties))
		for k, v := range d.PatternProperties {
			out.PatternProperties[k] = v
		}
	}
	out.Required = append([]string(nil), d.Required...)
	return &out
}

// indexVariants builds the discriminant dispatch table and verifies that
// candidates are mutually exclusive on the discriminant literal.
func (r *Registry) indexVariants(d *Definition) error {
	if d.Discriminant == "" {
		return nil
	}
	d.byDiscValue = make(map[string]*Definition, len(d.OneOf))
	for i, cand := range d.OneOf {
		prop, ok := cand.Properties[d.Discriminant]
		if !ok || len(prop.Enum) == 0 {
			return fmt.Errorf("oneOf candidate %d lacks an enum on discriminant %q", i, d.Discriminant)
		}
		for _, lit := range prop.Enum {
			s, ok := lit.(string)
			if !ok {
				return fmt.Errorf("oneOf candidate %d: discriminant %q enum literal is not a string", i, d.Discriminant)
			}
			if _, dup := d.byDiscValue[s]; dup {
				return fmt.Errorf("%w: discriminant %q value %q claimed twice", ErrAmbiguousVariant, d.Discriminant, s)
			}
			d.byDiscValue[s] = cand
		}
	}
	return nil
}

func refName(ref string) string {
	return strings.TrimPrefix(ref, RefPrefix)
}

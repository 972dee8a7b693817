// Package document provides the normalized JSON value model used by the
// schema validator and entity builders. Values are plain Go structures
// (map[string]any, []any, string, bool, json.Number, nil) decoded with
// number preservation so that integer bounds and multiples can be checked
// exactly rather than through float64 approximation.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a normalized JSON value: one of map[string]any, []any,
// string, bool, json.Number or nil.
type Value = any

// Decode parses raw JSON into a normalized Value.
// Numbers are kept as json.Number.
func Decode(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v Value
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	// Reject trailing garbage after the first value.
	if dec.More() {
		return nil, fmt.Errorf("decode document: trailing data after value")
	}
	return v, nil
}

// Encode renders a Value as canonical JSON: object keys sorted, no
// insignificant whitespace. encoding/json sorts map keys, which is all
// the canonicalization the committed configuration contract requires.
func Encode(v Value) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// Int converts a decoded number to int64, reporting whether the value is
// an integer-valued number at all.
func Int(v Value) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// Number builds a Value for an integer, for use by entity serializers.
func Number(i int64) Value {
	return json.Number(strconv.FormatInt(i, 10))
}

// Float builds a Value for a non-integral number.
func Float(f float64) Value {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Equal reports deep structural equality of two normalized values.
// Numbers compare by numeric value, so 1 and 1.0 are equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && numberEqual(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

func numberEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	ai, aerr := a.Int64()
	bi, berr := b.Int64()
	if aerr == nil && berr == nil {
		return ai == bi
	}
	af, aerr := a.Float64()
	bf, berr := b.Float64()
	return aerr == nil && berr == nil && af == bf
}

// Path locates a value inside a document as the ordered list of property
// names and array indices from the root. The zero Path is the root.
type Path []string

// Property extends the path with an object property step.
func (p Path) Property(name string) Path {
	return append(p[:len(p):len(p)], name)
}

// Index extends the path with an array index step.
func (p Path) Index(i int) Path {
	return append(p[:len(p):len(p)], strconv.Itoa(i))
}

// String renders the path as /step/step; the root path renders as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var buf bytes.Buffer
	for _, step := range p {
		buf.WriteByte('/')
		buf.WriteString(step)
	}
	return buf.String()
}

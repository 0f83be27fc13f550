// Package asset implements the declarative, inheritance-aware asset
// loading pipeline of §4.7: codecs built from a field schema instead
// of runtime reflection, topological inheritance resolution, stable
// integer indices for indexed lookup tables, and an after_decode hook
// for interning string references to adjacent assets.
package asset

import "fmt"

// FieldType tags a FieldSpec's expected decoded shape. It exists so a
// schema can be introspected generically (for diagnostics or a future
// generic validator) without reflecting on Go struct tags.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
	FieldStringList
	// FieldRef marks a string value that after_decode is expected to
	// resolve into an integer index of another asset type.
	FieldRef
)

// FieldSpec is one declarative field entry in a Codec's schema: name,
// type, an optional default and validator, and Get/Set closures that
// stand in for reflection-based field access. This is the "vector of
// (field_name, type_code, validator, getter, setter) entries" the
// schema needs in place of a BuilderCodec.
type FieldSpec[T any] struct {
	Name     string
	Type     FieldType
	Required bool
	Default  any
	Validate func(value any) error
	Get      func(target *T) any
	Set      func(target *T, value any) error
}

// Codec decodes one asset type's raw (already YAML/JSON-unmarshalled)
// field map into a T, honoring parent inheritance and an optional
// after_decode hook.
type Codec[T any] struct {
	Fields []FieldSpec[T]
	// New constructs a zero-value T before fields are applied.
	New func() T
	// AfterDecode runs once every asset of every registered type has
	// been decoded (§4.7 step 5). Typical work: resolve a FieldRef
	// string into another bucket's integer index.
	AfterDecode func(reg *Registry, key string, value *T) error
}

// Decode builds a T from raw, inheriting any field raw omits from
// parent's already-resolved value (nil if key has no parent).
func (c Codec[T]) Decode(raw map[string]any, parent *T) (T, error) {
	value := c.New()
	for _, f := range c.Fields {
		rawValue, present := raw[f.Name]
		switch {
		case present:
			if f.Validate != nil {
				if err := f.Validate(rawValue); err != nil {
					return value, fmt.Errorf("asset: field %q: %w", f.Name, err)
				}
			}
			if err := f.Set(&value, rawValue); err != nil {
				return value, fmt.Errorf("asset: field %q: %w", f.Name, err)
			}
		case parent != nil:
			if err := f.Set(&value, f.Get(parent)); err != nil {
				return value, fmt.Errorf("asset: field %q: inherit from parent: %w", f.Name, err)
			}
		case f.Default != nil:
			if err := f.Set(&value, f.Default); err != nil {
				return value, fmt.Errorf("asset: field %q: default: %w", f.Name, err)
			}
		case f.Required:
			return value, fmt.Errorf("asset: required field %q missing and asset has no parent to inherit from", f.Name)
		}
	}
	return value, nil
}

package zarr

import (
	"fmt"
	"strings"
)

// Field declares one field of a tagged union variant. Exactly one field
// per variant is the tag; its type must be a single string literal.
type Field struct {
	Name string
	// Tag marks the field as the discriminator
	Tag bool
	// Literals lists the values the field may take. A tag field must list
	// exactly one.
	Literals []string
}

// TagField declares name as the discriminator fixed to value
func TagField(name, value string) Field {
	return Field{Name: name, Tag: true, Literals: []string{value}}
}

// Variant is one alternative of a tagged union
type Variant[T any] struct {
	// Name identifies the variant in error messages
	Name   string
	Fields []Field
	Decode Decoder[T]
}

// UnionDecoder selects a variant by discriminator value and decodes with
// it. The discriminator table is built once, when the union is declared.
type UnionDecoder[T any] struct {
	name     string
	tagField string
	variants map[string]Variant[T]
	err      error
}

// Union builds a decoder for the sum of variants. Invalid declarations
// (a variant with zero or several tag fields, variants that disagree on
// the tag field name, a tag that is not a single literal, or two variants
// claiming the same tag value) are reported by Err and by every Decode
// call.
func Union[T any](name string, variants ...Variant[T]) *UnionDecoder[T] {
	u := &UnionDecoder[T]{name: name, variants: make(map[string]Variant[T], len(variants))}
	u.err = u.build(variants)
	return u
}

func (u *UnionDecoder[T]) build(variants []Variant[T]) error {
	if len(variants) == 0 {
		return u.declError("no variants declared")
	}
	for _, variant := range variants {
		var tags []Field
		for _, f := range variant.Fields {
			if f.Tag {
				tags = append(tags, f)
			}
		}
		if len(tags) != 1 {
			return u.declError("variant %s declares %d tag fields, want exactly 1", variant.Name, len(tags))
		}
		tag := tags[0]
		if u.tagField == "" {
			u.tagField = tag.Name
		} else if u.tagField != tag.Name {
			return u.declError("variant %s uses tag field %q, other variants use %q", variant.Name, tag.Name, u.tagField)
		}
		if len(tag.Literals) != 1 {
			return u.declError("tag field %q of variant %s must be a single literal, has %d values", tag.Name, variant.Name, len(tag.Literals))
		}
		value := tag.Literals[0]
		if prev, ok := u.variants[value]; ok {
			return u.declError("variants %s and %s both claim tag %q", prev.Name, variant.Name, value)
		}
		u.variants[value] = variant
	}
	return nil
}

func (u *UnionDecoder[T]) declError(format string, args ...any) error {
	return &DecodeError{Type: u.name, Reason: "invalid union declaration: " + fmt.Sprintf(format, args...)}
}

// Err reports a malformed union declaration
func (u *UnionDecoder[T]) Err() error { return u.err }

// TagField returns the discriminator field name shared by all variants
func (u *UnionDecoder[T]) TagField() string { return u.tagField }

// Tags lists the known discriminator values
func (u *UnionDecoder[T]) Tags() []string { return sortedKeys(u.variants) }

// Decode resolves the variant named by v's discriminator and decodes v
// with it. There is no default variant: a missing or unknown tag fails.
func (u *UnionDecoder[T]) Decode(v any) (T, error) {
	var zero T
	if u.err != nil {
		return zero, u.err
	}
	m, err := asMapping(u.name, v)
	if err != nil {
		return zero, err
	}
	raw, ok := m[u.tagField]
	if !ok {
		return zero, mismatch(u.name, v, "missing discriminator field %q", u.tagField)
	}
	tag, ok := raw.(string)
	if !ok {
		return zero, mismatch(u.name, raw, "discriminator field %q must be a string", u.tagField)
	}
	variant, ok := u.variants[tag]
	if !ok {
		return zero, mismatch(u.name, raw, "unknown %s %q, expected one of (%s)", u.tagField, tag, strings.Join(u.Tags(), ", "))
	}
	return variant.Decode(v)
}

// Decoder adapts the union for use as a field decoder
func (u *UnionDecoder[T]) Decoder() Decoder[T] { return u.Decode }

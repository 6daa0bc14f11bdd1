// Package fieldkey implements the immutable hierarchical column path used to
// address columns and lookup chains (Sample.Study.Label).
package fieldkey

import (
	"strings"

	"golang.org/x/text/cases"
)

// FieldKey is an immutable ordered path of names. The zero value is the empty
// (root) key. FieldKeys are comparable with == on their exact spelling; use
// Equal or Key for the case-insensitive identity used during resolution.
type FieldKey struct {
	enc string
}

const sep = "/"

// FromParts builds a key from path components. Empty components are kept.
func FromParts(parts ...string) FieldKey {
	if len(parts) == 0 {
		return FieldKey{}
	}
	enc := make([]string, len(parts))
	for i, p := range parts {
		enc[i] = encodePart(p)
	}
	return FieldKey{enc: strings.Join(enc, sep)}
}

// FromString splits a dotted path ("Sample.Study.Label").
func FromString(s string) FieldKey {
	if s == "" {
		return FieldKey{}
	}
	return FromParts(strings.Split(s, ".")...)
}

// Decode parses the "/"-separated encoded form produced by Encode.
func Decode(s string) FieldKey {
	if s == "" {
		return FieldKey{}
	}
	return FieldKey{enc: s}
}

// Child returns a key one level below k.
func (k FieldKey) Child(name string) FieldKey {
	if k.enc == "" {
		return FromParts(name)
	}
	return FieldKey{enc: k.enc + sep + encodePart(name)}
}

func (k FieldKey) IsEmpty() bool { return k.enc == "" }

// Len is the number of path components.
func (k FieldKey) Len() int {
	if k.enc == "" {
		return 0
	}
	return strings.Count(k.enc, sep) + 1
}

// Parts returns a fresh copy of the path components.
func (k FieldKey) Parts() []string {
	if k.enc == "" {
		return nil
	}
	raw := strings.Split(k.enc, sep)
	for i, p := range raw {
		raw[i] = decodePart(p)
	}
	return raw
}

// Name is the last component.
func (k FieldKey) Name() string {
	if k.enc == "" {
		return ""
	}
	i := strings.LastIndex(k.enc, sep)
	return decodePart(k.enc[i+1:])
}

// Parent drops the last component. The parent of a one-part key is empty.
func (k FieldKey) Parent() FieldKey {
	i := strings.LastIndex(k.enc, sep)
	if i < 0 {
		return FieldKey{}
	}
	return FieldKey{enc: k.enc[:i]}
}

// Root is the first component.
func (k FieldKey) Root() string {
	if k.enc == "" {
		return ""
	}
	first, _, _ := strings.Cut(k.enc, sep)
	return decodePart(first)
}

// Rest drops the first component.
func (k FieldKey) Rest() FieldKey {
	_, rest, ok := strings.Cut(k.enc, sep)
	if !ok {
		return FieldKey{}
	}
	return FieldKey{enc: rest}
}

// Equal compares paths ignoring case.
func (k FieldKey) Equal(o FieldKey) bool {
	return k.Key() == o.Key()
}

// Key is the case-folded encoded path, suitable as a map key.
func (k FieldKey) Key() string {
	return Fold(k.enc)
}

// Compare orders keys component by component, case-insensitively.
func (k FieldKey) Compare(o FieldKey) int {
	a, b := k.Parts(), o.Parts()
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(Fold(a[i]), Fold(b[i])); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// Encode returns the "/"-separated form with "$S" and "$D" escapes.
func (k FieldKey) Encode() string { return k.enc }

// String returns the dotted display form.
func (k FieldKey) String() string {
	return strings.Join(k.Parts(), ".")
}

// Fold case-folds an identifier.
func Fold(s string) string {
	return cases.Fold().String(s)
}

var (
	encoder = strings.NewReplacer("$", "$D", "/", "$S")
	decoder = strings.NewReplacer("$S", "/", "$D", "$")
)

func encodePart(s string) string { return encoder.Replace(s) }
func decodePart(s string) string { return decoder.Replace(s) }

// Package buffer implements the typed binary buffer that flows between
// workflow tasks: a sealed, reference-counted byte region tagged with the
// numeric kind its bytes should be interpreted as.
package buffer

import "fmt"

// Tag identifies the element type backing a Buffer's bytes, mirroring the
// eleven typed-array kinds a task descriptor can declare as its output.
type Tag string

const (
	Float32      Tag = "float32"
	Float64      Tag = "float64"
	Int8         Tag = "int8"
	Int16        Tag = "int16"
	Int32        Tag = "int32"
	Uint8        Tag = "uint8"
	Uint8Clamped Tag = "uint8_clamped"
	Uint16       Tag = "uint16"
	Uint32       Tag = "uint32"
	BigInt64     Tag = "bigint64"
	BigUint64    Tag = "biguint64"
)

// elementSizes gives the width in bytes of a single element for each tag.
var elementSizes = map[Tag]int{
	Float32:      4,
	Float64:      8,
	Int8:         1,
	Int16:        2,
	Int32:        4,
	Uint8:        1,
	Uint8Clamped: 1,
	Uint16:       2,
	Uint32:       4,
	BigInt64:     8,
	BigUint64:    8,
}

var signedTags = map[Tag]bool{
	Float32:  true,
	Float64:  true,
	Int8:     true,
	Int16:    true,
	Int32:    true,
	BigInt64: true,
}

// TagFromString validates s against the known tag vocabulary.
func TagFromString(s string) (Tag, error) {
	t := Tag(s)
	if _, ok := elementSizes[t]; !ok {
		return "", fmt.Errorf("buffer: unknown tag %q", s)
	}
	return t, nil
}

// ElementSize returns the width in bytes of one element of this tag.
func (t Tag) ElementSize() (int, error) {
	n, ok := elementSizes[t]
	if !ok {
		return 0, fmt.Errorf("buffer: unknown tag %q", string(t))
	}
	return n, nil
}

// Signed reports whether elements of this tag carry a sign bit.
func (t Tag) Signed() bool {
	return signedTags[t]
}

// Valid reports whether t is one of the eleven known tags.
func (t Tag) Valid() bool {
	_, ok := elementSizes[t]
	return ok
}

// ValidateLength checks that n bytes divide evenly into whole elements of t.
func ValidateLength(t Tag, n int) error {
	width, err := t.ElementSize()
	if err != nil {
		return err
	}
	if n%width != 0 {
		return fmt.Errorf("buffer: length %d is not a multiple of element width %d for tag %q", n, width, string(t))
	}
	return nil
}

package pix

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ByteOrder is the byte order of multi-byte pixel values in every buffer.
var ByteOrder = binary.BigEndian

// PixelType is the storage type of a single pixel value.
type PixelType uint8

const (
	Uint8 PixelType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

var typeBytes = map[PixelType]int{
	Uint8:   1,
	Int8:    1,
	Uint16:  2,
	Int16:   2,
	Uint32:  4,
	Int32:   4,
	Uint64:  8,
	Int64:   8,
	Float32: 4,
	Float64: 8,
}

var typeNames = map[PixelType]string{
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Uint64:  "uint64",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

// Valid returns true if t is a known pixel type.
func (t PixelType) Valid() bool {
	_, found := typeBytes[t]
	return found
}

// BytesPerPixel returns the byte depth of one value, or 0 for unknown types.
func (t PixelType) BytesPerPixel() int {
	return typeBytes[t]
}

func (t PixelType) String() string {
	if name, found := typeNames[t]; found {
		return name
	}
	return fmt.Sprintf("unknown pixel type %d", uint8(t))
}

// ParsePixelType returns the type with the given name, e.g., "uint16".
func ParsePixelType(s string) (PixelType, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel type %q", s)
}

// MarshalText implements encoding.TextMarshaler so JSON and TOML use type names.
func (t PixelType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", t)
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *PixelType) UnmarshalText(b []byte) error {
	parsed, err := ParsePixelType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value returns the first pixel value in b as a float64.
func (t PixelType) Value(b []byte) float64 {
	switch t {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Uint16:
		return float64(ByteOrder.Uint16(b))
	case Int16:
		return float64(int16(ByteOrder.Uint16(b)))
	case Uint32:
		return float64(ByteOrder.Uint32(b))
	case Int32:
		return float64(int32(ByteOrder.Uint32(b)))
	case Uint64:
		return float64(ByteOrder.Uint64(b))
	case Int64:
		return float64(int64(ByteOrder.Uint64(b)))
	case Float32:
		return float64(math.Float32frombits(ByteOrder.Uint32(b)))
	case Float64:
		return math.Float64frombits(ByteOrder.Uint64(b))
	}
	return 0
}

// PutValue stores v into b, rounding to the nearest integer for integral types.
func (t PixelType) PutValue(b []byte, v float64) {
	if t != Float32 && t != Float64 {
		v = math.Round(v)
	}
	switch t {
	case Uint8:
		b[0] = uint8(v)
	case Int8:
		b[0] = uint8(int8(v))
	case Uint16:
		ByteOrder.PutUint16(b, uint16(v))
	case Int16:
		ByteOrder.PutUint16(b, uint16(int16(v)))
	case Uint32:
		ByteOrder.PutUint32(b, uint32(v))
	case Int32:
		ByteOrder.PutUint32(b, uint32(int32(v)))
	case Uint64:
		ByteOrder.PutUint64(b, uint64(v))
	case Int64:
		ByteOrder.PutUint64(b, uint64(int64(v)))
	case Float32:
		ByteOrder.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		ByteOrder.PutUint64(b, math.Float64bits(v))
	}
}

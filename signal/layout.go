// Package signal implements the bit-exact codec between named signal values
// and fixed-width CAN frame payloads. Layouts describe where each signal
// lives inside a frame; the codec clamps, packs, and unpacks values against
// those layouts.
package signal

import (
	"encoding/json"
	"fmt"

	"github.com/c360/canbridge/errors"
)

// MaxIdentifier is the highest standard (11-bit) CAN identifier.
const MaxIdentifier = 0x7FF

// FrameSize is the fixed payload width carried on the wire.
const FrameSize = 8

// Kind identifies the value type of a signal field.
type Kind int

// Signal kinds.
const (
	KindBool Kind = iota
	KindUint8
	KindUint16
	KindInt8
	KindInt16
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the kind names produced by String.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "bool":
		*k = KindBool
	case "uint8":
		*k = KindUint8
	case "uint16":
		*k = KindUint16
	case "int8":
		*k = KindInt8
	case "int16":
		*k = KindInt16
	default:
		return fmt.Errorf("unknown signal kind %q", name)
	}
	return nil
}

// signed reports whether the kind carries a sign bit.
func (k Kind) signed() bool {
	return k == KindInt8 || k == KindInt16
}

// width returns the natural bit width of the kind.
func (k Kind) width() uint {
	switch k {
	case KindBool:
		return 1
	case KindUint8, KindInt8:
		return 8
	case KindUint16, KindInt16:
		return 16
	default:
		return 0
	}
}

// SignalLayout describes one signal's position and conversion inside a frame.
// StartBit is absolute within the payload: bit i of byte b is b*8+i, with
// LSB-first numbering per byte. Sixteen-bit kinds are byte-aligned and
// composed big-endian across two bytes. Immutable once loaded.
type SignalLayout struct {
	Name     string  `json:"name"`
	StartBit uint    `json:"startBit"`
	BitWidth uint    `json:"bitWidth"`
	Kind     Kind    `json:"kind"`
	Scale    float64 `json:"scale,omitempty"`
	Offset   float64 `json:"offset,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
}

// scale returns the effective scale factor (zero means identity).
func (s *SignalLayout) scale() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

// endBit returns the exclusive end of the signal's bit range.
func (s *SignalLayout) endBit() uint {
	return s.StartBit + s.BitWidth
}

// validate checks internal consistency of a single signal layout.
func (s *SignalLayout) validate() error {
	if s.Name == "" {
		return fmt.Errorf("signal with empty name")
	}
	if s.BitWidth == 0 || s.BitWidth > 64 {
		return fmt.Errorf("signal %s: bit width %d out of range", s.Name, s.BitWidth)
	}
	if s.Kind == KindBool && s.BitWidth != 1 {
		return fmt.Errorf("signal %s: bool signals are 1-bit fields", s.Name)
	}
	if w := s.Kind.width(); w >= 16 {
		// Wide fields are byte-aligned big-endian pairs.
		if s.BitWidth != w {
			return fmt.Errorf("signal %s: kind %s requires width %d", s.Name, s.Kind, w)
		}
		if s.StartBit%8 != 0 {
			return fmt.Errorf("signal %s: kind %s must be byte-aligned", s.Name, s.Kind)
		}
	}
	return nil
}

// FrameLayout describes the full bit layout of one frame identifier.
// Immutable once loaded; shared read-only across the pipeline.
type FrameLayout struct {
	Identifier uint32         `json:"identifier"`
	Name       string         `json:"name,omitempty"`
	ByteLength uint8          `json:"byteLength"`
	Signals    []SignalLayout `json:"signals"`
}

// Validate checks that the layout is internally consistent: identifier in
// standard range, byte length at most 8, every signal inside the frame, and
// no two signals with overlapping bit ranges.
func (f *FrameLayout) Validate() error {
	if f.Identifier > MaxIdentifier {
		return errors.WrapInvalid(
			fmt.Errorf("identifier 0x%X exceeds 0x%X", f.Identifier, MaxIdentifier),
			"FrameLayout", "Validate", "identifier range")
	}
	if f.ByteLength > FrameSize {
		return errors.WrapInvalid(
			fmt.Errorf("byte length %d exceeds %d", f.ByteLength, FrameSize),
			"FrameLayout", "Validate", "byte length range")
	}

	totalBits := uint(f.ByteLength) * 8
	for i := range f.Signals {
		s := &f.Signals[i]
		if err := s.validate(); err != nil {
			return errors.WrapInvalid(err, "FrameLayout", "Validate", "signal layout")
		}
		if s.endBit() > totalBits {
			return errors.WrapInvalid(
				fmt.Errorf("signal %s: bits [%d,%d) exceed frame's %d bits",
					s.Name, s.StartBit, s.endBit(), totalBits),
				"FrameLayout", "Validate", "signal bounds")
		}
		for j := 0; j < i; j++ {
			o := &f.Signals[j]
			if s.StartBit < o.endBit() && o.StartBit < s.endBit() {
				return errors.WrapInvalid(
					fmt.Errorf("signals %s and %s overlap", o.Name, s.Name),
					"FrameLayout", "Validate", "overlap check")
			}
		}
	}
	return nil
}

// SignalByName returns the layout of a named signal, if present.
func (f *FrameLayout) SignalByName(name string) (*SignalLayout, bool) {
	for i := range f.Signals {
		if f.Signals[i].Name == name {
			return &f.Signals[i], true
		}
	}
	return nil, false
}

// Frame is one fixed-width CAN payload plus its timing metadata. Immutable;
// passed by value through the pipeline.
type Frame struct {
	Identifier      uint32
	Payload         [FrameSize]byte
	DeclaredLength  uint8
	SourceTimestamp float64 // seconds since epoch
	SimTime         float64 // simulation seconds
}

// DecodedSignal is one named, typed value extracted from a frame.
type DecodedSignal struct {
	Name  string
	Value float64
	Bool  bool
	Kind  Kind
	Unit  string
	Min   float64
	Max   float64
}

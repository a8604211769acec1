package signal

import "math"

// Encode packs the named values into a fixed-width payload according to the
// layout. Values are converted to raw form with raw = round((v-Offset)/Scale)
// and clamped to the representable range of their field; out-of-range input
// never fails, it clamps silently. Signals absent from values stay zero.
func Encode(layout *FrameLayout, values map[string]float64) [FrameSize]byte {
	var word uint64
	var payload [FrameSize]byte

	for i := range layout.Signals {
		s := &layout.Signals[i]
		v, ok := values[s.Name]
		if !ok {
			continue
		}

		if s.Min < s.Max {
			v = clampFloat(v, s.Min, s.Max)
		}

		raw := int64(math.Round((v - s.Offset) / s.scale()))
		raw = clampRaw(raw, s.BitWidth, s.Kind.signed())

		if s.Kind.width() == 16 {
			// Byte-aligned big-endian pair: high byte first.
			b := s.StartBit / 8
			u := rawToUnsigned(raw, 16)
			payload[b] = byte(u >> 8)
			payload[b+1] = byte(u)
			continue
		}

		word = setBits(word, s.StartBit, s.BitWidth, rawToUnsigned(raw, s.BitWidth))
	}

	// Merge the bit-packed word over the byte-aligned wide fields.
	packed := wordToPayload(word)
	for i := 0; i < FrameSize; i++ {
		payload[i] |= packed[i]
	}
	return payload
}

// Decode extracts every signal whose bit range lies fully within the declared
// length and converts it to physical form with physical = raw*Scale + Offset.
// Signals partially or fully beyond the declared length are omitted, never
// zero-filled: a short frame must not yield misleading values for absent
// signals.
func Decode(layout *FrameLayout, payload [FrameSize]byte, declaredLength uint8) []DecodedSignal {
	if declaredLength > FrameSize {
		declaredLength = FrameSize
	}
	validBits := uint(declaredLength) * 8

	word := payloadToWord(payload)
	out := make([]DecodedSignal, 0, len(layout.Signals))

	for i := range layout.Signals {
		s := &layout.Signals[i]
		if s.endBit() > validBits {
			continue
		}

		var raw int64
		if s.Kind.width() == 16 {
			b := s.StartBit / 8
			u := uint64(payload[b])<<8 | uint64(payload[b+1])
			raw = unsignedToRaw(u, 16, s.Kind.signed())
		} else {
			u := getBits(word, s.StartBit, s.BitWidth)
			raw = unsignedToRaw(u, s.BitWidth, s.Kind.signed())
		}

		out = append(out, DecodedSignal{
			Name:  s.Name,
			Value: float64(raw)*s.scale() + s.Offset,
			Bool:  raw != 0,
			Kind:  s.Kind,
			Unit:  s.Unit,
			Min:   s.Min,
			Max:   s.Max,
		})
	}
	return out
}

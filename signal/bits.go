package signal

// Bit-level packing helpers. The payload is viewed as a 64-bit word with
// byte b contributing bits [b*8, b*8+8), LSB-first within each byte.

func payloadToWord(payload [FrameSize]byte) uint64 {
	var w uint64
	for i := 0; i < FrameSize; i++ {
		w |= uint64(payload[i]) << (8 * i)
	}
	return w
}

func wordToPayload(w uint64) [FrameSize]byte {
	var payload [FrameSize]byte
	for i := 0; i < FrameSize; i++ {
		payload[i] = byte(w >> (8 * i))
	}
	return payload
}

func getBits(word uint64, startBit, bitLen uint) uint64 {
	if bitLen == 0 || bitLen > 64 {
		return 0
	}
	if bitLen == 64 {
		return word >> startBit
	}
	mask := uint64(1)<<bitLen - 1
	return (word >> startBit) & mask
}

func setBits(word uint64, startBit, bitLen uint, value uint64) uint64 {
	if bitLen == 0 || bitLen > 64 {
		return word
	}
	mask := uint64(1)<<bitLen - 1
	word &^= mask << startBit
	word |= (value & mask) << startBit
	return word
}

// unsignedToRaw interprets a bitLen-wide unsigned field as a two's-complement
// signed value when signed is set.
func unsignedToRaw(u uint64, bitLen uint, signed bool) int64 {
	if !signed {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if u&signBit == 0 {
		return int64(u)
	}
	full := uint64(1)<<bitLen - 1
	return -int64((^u + 1) & full)
}

// rawToUnsigned produces the two's-complement wire representation of raw
// within a bitLen-wide field.
func rawToUnsigned(raw int64, bitLen uint) uint64 {
	if raw >= 0 {
		return uint64(raw)
	}
	full := uint64(1)<<bitLen - 1
	return (^uint64(-raw) + 1) & full
}

// clampRaw bounds raw to the representable range of a bitLen-wide field.
func clampRaw(raw int64, bitLen uint, signed bool) int64 {
	if bitLen == 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		max := int64(1)<<bitLen - 1
		if raw < 0 {
			return 0
		}
		if raw > max {
			return max
		}
		return raw
	}
	min := -int64(1) << (bitLen - 1)
	max := int64(1)<<(bitLen-1) - 1
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package sigtable

import "github.com/c360/canbridge/signal"

// BuiltinLightControl returns the declarative layout of the light control
// frame: lamp flags packed into byte 0, light level in byte 1, vehicle
// speed in byte 2, ambient light as a big-endian 16-bit value in bytes 3-4.
func BuiltinLightControl() *signal.FrameLayout {
	return &signal.FrameLayout{
		Identifier: LightControlID,
		Name:       "LIGHT_CONTROL",
		ByteLength: signal.FrameSize,
		Signals: []signal.SignalLayout{
			{Name: "headLamp", StartBit: 0, BitWidth: 1, Kind: signal.KindBool},
			{Name: "tailLamp", StartBit: 1, BitWidth: 1, Kind: signal.KindBool},
			{Name: "brakeLamp", StartBit: 2, BitWidth: 1, Kind: signal.KindBool},
			{Name: "indicatorLeft", StartBit: 3, BitWidth: 1, Kind: signal.KindBool},
			{Name: "indicatorRight", StartBit: 4, BitWidth: 1, Kind: signal.KindBool},
			{Name: "lightLevel", StartBit: 8, BitWidth: 8, Kind: signal.KindUint8, Unit: "%", Min: 0, Max: 255},
			{Name: "vehicleSpeed", StartBit: 16, BitWidth: 8, Kind: signal.KindUint8, Unit: "km/h", Min: 0, Max: 255},
			{Name: "ambient", StartBit: 24, BitWidth: 16, Kind: signal.KindUint16, Unit: "lx", Min: 0, Max: 65535},
		},
	}
}

// fallbackLightControl is the layout behind the decode path of last resort.
// It is the builtin layout itself, so the fallback cannot drift from the
// declarative decode.
var fallbackLightControl = BuiltinLightControl()

// decodeLightControlFallback decodes the light control frame when no
// declarative layout covers 0x100.
func decodeLightControlFallback(payload [signal.FrameSize]byte, declaredLength uint8) []signal.DecodedSignal {
	return signal.Decode(fallbackLightControl, payload, declaredLength)
}

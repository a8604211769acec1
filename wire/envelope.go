// Package wire defines the newline-delimited JSON frame envelope exchanged
// between virtual ECUs and the zone gateway, plus the stream framer that
// reassembles envelopes from arbitrary read chunks.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/signal"
)

// Envelope is one frame on the wire. Payload is kept exactly as received so
// validation can reject envelopes whose payload is not the full frame size;
// PayloadArray gives the fixed-size view used after validation.
type Envelope struct {
	Identifier          uint32
	DeclaredLength      uint8
	Payload             []byte
	ProducedAtWallClock float64
	ProducedAtSimTime   float64
	SchemaTag           string

	missing []string
}

// wireEnvelope uses pointer fields so absent keys are distinguishable from
// zero values when unmarshalling.
type wireEnvelope struct {
	Identifier          *uint32  `json:"identifier"`
	Payload             *[]int   `json:"payload"`
	DeclaredLength      *uint8   `json:"declaredLength"`
	ProducedAtWallClock *float64 `json:"producedAtWallClock"`
	ProducedAtSimTime   *float64 `json:"producedAtSimTime"`
	SchemaTag           string   `json:"schemaTag,omitempty"`
}

// MissingFields reports which required wire fields were absent when this
// envelope was decoded. Empty for envelopes built in-process.
func (e *Envelope) MissingFields() []string {
	return e.missing
}

// PayloadArray returns the payload zero-padded to the frame size. Callers
// must have validated the envelope first; oversized payloads are truncated.
func (e *Envelope) PayloadArray() [signal.FrameSize]byte {
	var out [signal.FrameSize]byte
	copy(out[:], e.Payload)
	return out
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	payload := make([]int, len(e.Payload))
	for i, b := range e.Payload {
		payload[i] = int(b)
	}
	w := wireEnvelope{
		Identifier:          &e.Identifier,
		Payload:             &payload,
		DeclaredLength:      &e.DeclaredLength,
		ProducedAtWallClock: &e.ProducedAtWallClock,
		ProducedAtSimTime:   &e.ProducedAtSimTime,
		SchemaTag:           e.SchemaTag,
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(errors.ErrMalformedMessage, "wire.Envelope", "UnmarshalJSON", err.Error())
	}

	e.missing = nil
	if w.Identifier == nil {
		e.missing = append(e.missing, "identifier")
	} else {
		e.Identifier = *w.Identifier
	}
	if w.Payload == nil {
		e.missing = append(e.missing, "payload")
	} else {
		e.Payload = make([]byte, len(*w.Payload))
		for i, v := range *w.Payload {
			if v < 0 || v > 255 {
				return errors.WrapInvalid(errors.ErrMalformedMessage, "wire.Envelope", "UnmarshalJSON",
					fmt.Sprintf("payload byte %d out of range: %d", i, v))
			}
			e.Payload[i] = byte(v)
		}
	}
	if w.DeclaredLength == nil {
		e.missing = append(e.missing, "declaredLength")
	} else {
		e.DeclaredLength = *w.DeclaredLength
	}
	if w.ProducedAtWallClock != nil {
		e.ProducedAtWallClock = *w.ProducedAtWallClock
	}
	if w.ProducedAtSimTime != nil {
		e.ProducedAtSimTime = *w.ProducedAtSimTime
	}
	e.SchemaTag = w.SchemaTag
	return nil
}

// Encode serializes the envelope followed by the message delimiter.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "wire.Envelope", "Encode", "marshal envelope")
	}
	return append(data, '\n'), nil
}

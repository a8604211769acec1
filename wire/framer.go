package wire

import (
	"bytes"
	"fmt"

	"github.com/c360/canbridge/errors"
)

// maxResidual bounds how much of an unterminated message the framer will
// hold before giving up on the stream position.
const maxResidual = 64 * 1024

// Framer reassembles newline-delimited envelopes from arbitrary read chunks.
// Bytes after the last delimiter are retained until the next Feed call, so a
// message split across reads decodes once it completes. Not safe for
// concurrent use; each connection owns its own framer.
type Framer struct {
	residual []byte
}

// NewFramer returns a framer with an empty residual buffer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends data to the stream and decodes every complete message it now
// contains. Malformed messages are reported in errs at their stream position
// without disturbing the messages around them.
func (f *Framer) Feed(data []byte) (envelopes []*Envelope, errs []error) {
	f.residual = append(f.residual, data...)

	for {
		idx := bytes.IndexByte(f.residual, '\n')
		if idx < 0 {
			break
		}
		line := f.residual[:idx]
		f.residual = f.residual[idx+1:]

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		env := &Envelope{}
		if err := env.UnmarshalJSON(line); err != nil {
			errs = append(errs, err)
			continue
		}
		envelopes = append(envelopes, env)
	}

	if len(f.residual) > maxResidual {
		f.residual = nil
		errs = append(errs, errors.WrapInvalid(errors.ErrMalformedMessage, "wire.Framer", "Feed",
			fmt.Sprintf("unterminated message exceeded %d bytes", maxResidual)))
	}
	return envelopes, errs
}

// Pending reports how many bytes of an incomplete message are buffered.
func (f *Framer) Pending() int {
	return len(f.residual)
}

// Reset discards any buffered partial message.
func (f *Framer) Reset() {
	f.residual = nil
}

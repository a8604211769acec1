// Package validate gates frame envelopes before they enter the pipeline.
// Rules run in a fixed order and the first failure wins, so a frame with
// several defects is always reported under the same reason.
package validate

import (
	"fmt"
	"log/slog"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/signal"
	"github.com/c360/canbridge/wire"
)

// Rejection reasons, also used as the drop-counter label.
const (
	ReasonMissingFields   = "missing_fields"
	ReasonIdentifierRange = "identifier_range"
	ReasonDeclaredLength  = "declared_length"
	ReasonPayloadSize     = "payload_size"
)

// Result carries the outcome of validating one envelope.
type Result struct {
	Valid  bool
	Reason string
	Err    error
}

// Validator checks envelopes against the frame constraints. A nil metrics
// registry disables counting; validation behavior is unchanged.
type Validator struct {
	logger  *slog.Logger
	metrics *metric.Registry
}

// ValidatorDeps holds the validator's dependencies.
type ValidatorDeps struct {
	Logger  *slog.Logger
	Metrics *metric.Registry
}

// NewValidator creates a validator. Logger falls back to slog.Default.
func NewValidator(deps ValidatorDeps) *Validator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		logger:  logger.With("component", "validate.Validator"),
		metrics: deps.Metrics,
	}
}

// Validate runs the rule chain on env. The returned result names the first
// failed rule; the drop counter is incremented under that reason.
func (v *Validator) Validate(env *wire.Envelope) Result {
	if v.metrics != nil {
		v.metrics.Core.FramesReceived.Inc()
	}

	for _, rule := range rules {
		if err := rule.check(env); err != nil {
			if v.metrics != nil {
				v.metrics.Core.ValidationDropped.WithLabelValues(rule.reason).Inc()
			}
			v.logger.Debug("frame rejected",
				"reason", rule.reason,
				"identifier", env.Identifier,
				"error", err)
			return Result{Reason: rule.reason, Err: err}
		}
	}

	if v.metrics != nil {
		v.metrics.Core.FramesValidated.Inc()
	}
	return Result{Valid: true}
}

type rule struct {
	reason string
	check  func(*wire.Envelope) error
}

var rules = []rule{
	{ReasonMissingFields, checkRequiredFields},
	{ReasonIdentifierRange, checkIdentifierRange},
	{ReasonDeclaredLength, checkDeclaredLength},
	{ReasonPayloadSize, checkPayloadSize},
}

func checkRequiredFields(env *wire.Envelope) error {
	if missing := env.MissingFields(); len(missing) > 0 {
		return errors.WrapInvalid(errors.ErrMissingFields, "validate.Validator", "Validate",
			fmt.Sprintf("required fields absent: %v", missing))
	}
	return nil
}

func checkIdentifierRange(env *wire.Envelope) error {
	if env.Identifier > signal.MaxIdentifier {
		return errors.WrapInvalid(errors.ErrIdentifierRange, "validate.Validator", "Validate",
			fmt.Sprintf("identifier 0x%X exceeds 0x%X", env.Identifier, signal.MaxIdentifier))
	}
	return nil
}

func checkDeclaredLength(env *wire.Envelope) error {
	if env.DeclaredLength > signal.FrameSize {
		return errors.WrapInvalid(errors.ErrDeclaredLength, "validate.Validator", "Validate",
			fmt.Sprintf("declared length %d exceeds %d", env.DeclaredLength, signal.FrameSize))
	}
	return nil
}

func checkPayloadSize(env *wire.Envelope) error {
	if len(env.Payload) != signal.FrameSize {
		return errors.WrapInvalid(errors.ErrPayloadSize, "validate.Validator", "Validate",
			fmt.Sprintf("payload has %d bytes, want %d", len(env.Payload), signal.FrameSize))
	}
	return nil
}

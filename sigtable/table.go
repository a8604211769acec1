// Package sigtable resolves frame identifiers to signal layouts and decodes
// validated frames into named signals. Layouts come from a JSON resource
// file layered over the built-in set; a fallback decoder for the light
// control frame covers the case where no declarative layout is available.
package sigtable

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/signal"
	"github.com/c360/canbridge/wire"
)

// LightControlID is the frame identifier of the light control message.
const LightControlID = 0x100

// DecodeSource records which path produced a decode result.
type DecodeSource int

// Decode paths.
const (
	SourceDeclarative DecodeSource = iota
	SourceFallback
	SourceFailed
)

func (s DecodeSource) String() string {
	switch s {
	case SourceDeclarative:
		return "declarative"
	case SourceFallback:
		return "fallback"
	case SourceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DecodeResult is the outcome of decoding one envelope.
type DecodeResult struct {
	Identifier uint32
	LayoutName string
	Signals    []signal.DecodedSignal
	Source     DecodeSource
	Err        error
}

// Table maps frame identifiers to layouts. Lookups are read-mostly; the
// table is immutable after construction apart from the unknown-id log
// suppression set.
type Table struct {
	layouts map[uint32]*signal.FrameLayout
	logger  *slog.Logger
	metrics *metric.Registry

	mu            sync.Mutex
	loggedUnknown map[uint32]struct{}
}

// TableDeps holds the table's dependencies. ResourcePath is optional; when
// empty only the built-in layouts are available. SkipBuiltin drops the
// built-in set so the resource file stands alone.
type TableDeps struct {
	ResourcePath string
	SkipBuiltin  bool
	Logger       *slog.Logger
	Metrics      *metric.Registry
}

// NewTable builds a table from the built-in layouts plus the optional
// resource file. Resource layouts override built-ins with the same
// identifier; a layout that fails validation rejects the whole file. A
// missing or malformed resource file is not fatal while the built-ins
// remain: the load error is logged and the table serves the built-in set.
// The error surfaces only with SkipBuiltin, where a failed load leaves
// nothing to serve beyond the light control fallback.
func NewTable(deps TableDeps) (*Table, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Table{
		layouts:       make(map[uint32]*signal.FrameLayout),
		logger:        logger.With("component", "sigtable.Table"),
		metrics:       deps.Metrics,
		loggedUnknown: make(map[uint32]struct{}),
	}

	if !deps.SkipBuiltin {
		builtin := BuiltinLightControl()
		t.layouts[builtin.Identifier] = builtin
	}

	if deps.ResourcePath != "" {
		if err := t.loadResource(deps.ResourcePath); err != nil {
			if len(t.layouts) == 0 {
				return nil, err
			}
			t.logger.Warn("layout resource unavailable, serving built-in layouts",
				"path", deps.ResourcePath, "error", err)
		}
	}
	return t, nil
}

// loadResource reads a JSON array of frame layouts and layers it over the
// current table.
func (t *Table) loadResource(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapTransient(errors.ErrResourceLoad, "sigtable.Table", "loadResource", err.Error())
	}

	var layouts []*signal.FrameLayout
	if err := json.Unmarshal(data, &layouts); err != nil {
		return errors.WrapInvalid(errors.ErrResourceLoad, "sigtable.Table", "loadResource",
			fmt.Sprintf("parse %s: %v", path, err))
	}

	staged := make(map[uint32]*signal.FrameLayout, len(layouts))
	for _, layout := range layouts {
		if err := layout.Validate(); err != nil {
			return errors.WrapInvalid(err, "sigtable.Table", "loadResource",
				fmt.Sprintf("layout %q in %s", layout.Name, path))
		}
		staged[layout.Identifier] = layout
	}
	for id, layout := range staged {
		t.layouts[id] = layout
	}

	t.logger.Info("signal table loaded", "path", path, "layouts", len(layouts))
	return nil
}

// Layout returns the layout for an identifier.
func (t *Table) Layout(identifier uint32) (*signal.FrameLayout, bool) {
	layout, ok := t.layouts[identifier]
	return layout, ok
}

// Identifiers returns every identifier the table knows.
func (t *Table) Identifiers() []uint32 {
	ids := make([]uint32, 0, len(t.layouts))
	for id := range t.layouts {
		ids = append(ids, id)
	}
	return ids
}

// Decode resolves the envelope's layout and extracts its signals. An
// identifier without a layout falls back to the manual light control
// decoder when it matches; anything else fails once-per-identifier loudly,
// then quietly.
func (t *Table) Decode(env *wire.Envelope) DecodeResult {
	result := DecodeResult{Identifier: env.Identifier}

	layout, ok := t.layouts[env.Identifier]
	if ok {
		result.LayoutName = layout.Name
		result.Signals = signal.Decode(layout, env.PayloadArray(), env.DeclaredLength)
		result.Source = SourceDeclarative
		if t.metrics != nil {
			t.metrics.Core.FramesDecoded.Inc()
		}
		return result
	}

	if env.Identifier == LightControlID {
		result.LayoutName = "LIGHT_CONTROL"
		result.Signals = decodeLightControlFallback(env.PayloadArray(), env.DeclaredLength)
		result.Source = SourceFallback
		if t.metrics != nil {
			t.metrics.Core.FramesDecoded.Inc()
			t.metrics.Core.DecodeFallbacks.Inc()
		}
		return result
	}

	result.Source = SourceFailed
	result.Err = errors.WrapInvalid(errors.ErrUnknownIdentifier, "sigtable.Table", "Decode",
		fmt.Sprintf("identifier 0x%X", env.Identifier))
	if t.metrics != nil {
		t.metrics.Core.UnknownIdentifiers.Inc()
	}
	t.logUnknownOnce(env.Identifier)
	return result
}

// logUnknownOnce warns the first time an identifier is seen, so a chatty
// unknown sender cannot flood the log.
func (t *Table) logUnknownOnce(identifier uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.loggedUnknown[identifier]; seen {
		return
	}
	t.loggedUnknown[identifier] = struct{}{}
	t.logger.Warn("no layout for identifier, frames will be dropped",
		"identifier", fmt.Sprintf("0x%X", identifier))
}

// Package vssmap projects decoded frame signals onto Vehicle Signal
// Specification paths. Each (identifier, signal) pair maps to one VSS path
// with an optional linear transform; signals without a mapping are dropped.
package vssmap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/signal"
)

// VSS data types used by this mapper.
const (
	TypeBoolean = "boolean"
	TypeFloat   = "float"
)

// Entry maps one frame signal to a VSS path. Scale and Offset apply as
// value*Scale+Offset when HasTransform is set; boolean signals pass through
// untransformed.
type Entry struct {
	Identifier   uint32  `json:"identifier"`
	Signal       string  `json:"signal"`
	Path         string  `json:"path"`
	DataType     string  `json:"dataType"`
	Scale        float64 `json:"scale,omitempty"`
	Offset       float64 `json:"offset,omitempty"`
	HasTransform bool    `json:"hasTransform,omitempty"`
}

// Sample is one mapped VSS data point.
type Sample struct {
	Path      string
	DataType  string
	Value     float64
	Bool      bool
	Unit      string
	Timestamp float64
}

type key struct {
	identifier uint32
	signal     string
}

// Mapper holds the mapping table. Immutable after construction.
type Mapper struct {
	entries map[key]Entry
	logger  *slog.Logger
	metrics *metric.Registry
}

// MapperDeps holds the mapper's dependencies. ResourcePath optionally
// layers a JSON mapping file over the built-in light control mappings.
type MapperDeps struct {
	ResourcePath string
	SkipBuiltin  bool
	Logger       *slog.Logger
	Metrics      *metric.Registry
}

// NewMapper builds a mapper from the built-in entries plus the optional
// resource file. Resource entries override built-ins for the same
// (identifier, signal) pair. A missing or malformed resource file is not
// fatal while the built-ins remain: the load error is logged and the
// mapper serves the built-in set. Only a mapper with no entries at all is
// an error.
func NewMapper(deps MapperDeps) (*Mapper, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mapper{
		entries: make(map[key]Entry),
		logger:  logger.With("component", "vssmap.Mapper"),
		metrics: deps.Metrics,
	}

	if !deps.SkipBuiltin {
		for _, e := range builtinEntries() {
			m.entries[key{e.Identifier, e.Signal}] = e
		}
	}

	if deps.ResourcePath != "" {
		if err := m.loadResource(deps.ResourcePath); err != nil {
			if len(m.entries) == 0 {
				return nil, err
			}
			m.logger.Warn("mapping resource unavailable, serving built-in mappings",
				"path", deps.ResourcePath, "error", err)
		}
	}
	if len(m.entries) == 0 {
		return nil, errors.WrapInvalid(errors.ErrResourceLoad, "vssmap.Mapper", "NewMapper",
			"no mappings available")
	}
	return m, nil
}

func (m *Mapper) loadResource(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapTransient(errors.ErrResourceLoad, "vssmap.Mapper", "loadResource", err.Error())
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.WrapInvalid(errors.ErrResourceLoad, "vssmap.Mapper", "loadResource",
			fmt.Sprintf("parse %s: %v", path, err))
	}

	staged := make(map[key]Entry, len(entries))
	for _, e := range entries {
		if e.Path == "" || e.Signal == "" {
			return errors.WrapInvalid(errors.ErrResourceLoad, "vssmap.Mapper", "loadResource",
				fmt.Sprintf("entry for identifier 0x%X missing path or signal", e.Identifier))
		}
		if e.DataType == "" {
			e.DataType = TypeFloat
		}
		staged[key{e.Identifier, e.Signal}] = e
	}
	for k, e := range staged {
		m.entries[k] = e
	}

	m.logger.Info("vss mapping loaded", "path", path, "entries", len(entries))
	return nil
}

// Len reports how many mappings are loaded.
func (m *Mapper) Len() int {
	return len(m.entries)
}

// Map projects one decoded signal onto its VSS path. The second return is
// false when no mapping exists for the pair.
func (m *Mapper) Map(identifier uint32, sig signal.DecodedSignal, timestamp float64) (Sample, bool) {
	entry, ok := m.entries[key{identifier, sig.Name}]
	if !ok {
		return Sample{}, false
	}

	sample := Sample{
		Path:      entry.Path,
		DataType:  entry.DataType,
		Unit:      sig.Unit,
		Timestamp: timestamp,
	}

	if entry.DataType == TypeBoolean {
		sample.Bool = sig.Bool
		if sig.Bool {
			sample.Value = 1
		}
	} else {
		v := sig.Value
		if entry.HasTransform {
			v = v*entry.Scale + entry.Offset
		}
		sample.Value = v
	}

	if m.metrics != nil {
		m.metrics.Core.SamplesMapped.Inc()
	}
	return sample, true
}

// MapAll projects every mappable signal from a decode result.
func (m *Mapper) MapAll(identifier uint32, signals []signal.DecodedSignal, timestamp float64) []Sample {
	samples := make([]Sample, 0, len(signals))
	for _, sig := range signals {
		if sample, ok := m.Map(identifier, sig, timestamp); ok {
			samples = append(samples, sample)
		}
	}
	return samples
}

// builtinEntries covers the light control frame.
func builtinEntries() []Entry {
	const lightControl = 0x100
	return []Entry{
		{Identifier: lightControl, Signal: "headLamp", Path: "Vehicle.Body.Lights.IsHighBeamOn", DataType: TypeBoolean},
		{Identifier: lightControl, Signal: "tailLamp", Path: "Vehicle.Body.Lights.IsTailLightOn", DataType: TypeBoolean},
		{Identifier: lightControl, Signal: "brakeLamp", Path: "Vehicle.Body.Lights.IsBrakeLightOn", DataType: TypeBoolean},
		{Identifier: lightControl, Signal: "indicatorLeft", Path: "Vehicle.Body.Lights.IsLeftIndicatorOn", DataType: TypeBoolean},
		{Identifier: lightControl, Signal: "indicatorRight", Path: "Vehicle.Body.Lights.IsRightIndicatorOn", DataType: TypeBoolean},
		{Identifier: lightControl, Signal: "lightLevel", Path: "Vehicle.Body.Lights.AmbientLight", DataType: TypeFloat},
		{Identifier: lightControl, Signal: "vehicleSpeed", Path: "Vehicle.Speed", DataType: TypeFloat},
	}
}

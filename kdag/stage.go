package kdag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/birdayz/wallaroo/ktransport"
	"github.com/fxamacker/cbor/v2"
)

// StageKind represents the kind of stage in a chain.
type StageKind int

const (
	StageSource StageKind = iota + 1
	StageComputation
	StageKeyBy
	StageSink
	StageMultiSink
	StageMerge
)

func (k StageKind) String() string {
	switch k {
	case StageSource:
		return "source"
	case StageComputation:
		return "to"
	case StageKeyBy:
		return "key_by"
	case StageSink:
		return "to_sink"
	case StageMultiSink:
		return "to_sinks"
	case StageMerge:
		return "merge"
	default:
		return "unknown"
	}
}

func (k StageKind) valid() bool {
	return k >= StageSource && k <= StageMerge
}

// Stage is one immutable step of a chain. Functions are referenced by their
// registry name; the stage itself carries no code.
type Stage struct {
	kind       StageKind
	name       string
	stateful   bool
	multi      bool
	transports []ktransport.Transport
}

// SourceStage starts a chain reading from t.
func SourceStage(name string, t ktransport.Transport) Stage {
	return Stage{kind: StageSource, name: name, transports: []ktransport.Transport{t.Clone()}}
}

// ComputationStage applies the named computation.
func ComputationStage(name string, stateful, multi bool) Stage {
	return Stage{kind: StageComputation, name: name, stateful: stateful, multi: multi}
}

// KeyByStage partitions the stream with the named key extractor.
func KeyByStage(name string) Stage {
	return Stage{kind: StageKeyBy, name: name}
}

// SinkStage terminates a chain, writing to t.
func SinkStage(t ktransport.Transport) Stage {
	return Stage{kind: StageSink, transports: []ktransport.Transport{t.Clone()}}
}

// MultiSinkStage terminates a chain, writing every output to all of ts.
func MultiSinkStage(ts ...ktransport.Transport) Stage {
	cloned := make([]ktransport.Transport, len(ts))
	for i, t := range ts {
		cloned[i] = t.Clone()
	}
	return Stage{kind: StageMultiSink, transports: cloned}
}

// MergeStage heads a chain that joins two upstream chains.
func MergeStage() Stage {
	return Stage{kind: StageMerge}
}

func (s Stage) Kind() StageKind { return s.kind }
func (s Stage) Name() string    { return s.name }
func (s Stage) Stateful() bool  { return s.stateful }
func (s Stage) Multi() bool     { return s.multi }

// Transports returns a copy of the stage's transports. Sources and sinks have
// one, multi-sinks one per destination, all other stages none.
func (s Stage) Transports() []ktransport.Transport {
	out := make([]ktransport.Transport, len(s.transports))
	for i, t := range s.transports {
		out[i] = t.Clone()
	}
	return out
}

// Terminal reports whether no stage may follow s.
func (s Stage) Terminal() bool {
	return s.kind == StageSink || s.kind == StageMultiSink
}

// Head reports whether s may only appear first in a chain.
func (s Stage) Head() bool {
	return s.kind == StageSource || s.kind == StageMerge
}

// Equal reports whether s and o are the same stage.
func (s Stage) Equal(o Stage) bool {
	return s.kind == o.kind &&
		s.name == o.name &&
		s.stateful == o.stateful &&
		s.multi == o.multi &&
		slices.EqualFunc(s.transports, o.transports, ktransport.Transport.Equal)
}

func (s Stage) String() string {
	switch s.kind {
	case StageSource:
		return fmt.Sprintf("source(%s, %s)", s.name, s.transports[0])
	case StageComputation:
		var flags []string
		if s.stateful {
			flags = append(flags, "state")
		}
		if s.multi {
			flags = append(flags, "multi")
		}
		if len(flags) > 0 {
			return fmt.Sprintf("to(%s, %s)", s.name, strings.Join(flags, ","))
		}
		return fmt.Sprintf("to(%s)", s.name)
	case StageKeyBy:
		return fmt.Sprintf("key_by(%s)", s.name)
	case StageSink:
		return fmt.Sprintf("to_sink(%s)", s.transports[0])
	case StageMultiSink:
		parts := make([]string, len(s.transports))
		for i, t := range s.transports {
			parts[i] = t.String()
		}
		return fmt.Sprintf("to_sinks(%s)", strings.Join(parts, ", "))
	case StageMerge:
		return "merge"
	default:
		return fmt.Sprintf("unknown(%d)", int(s.kind))
	}
}

// validate checks the stage's own fields.
func (s Stage) validate() error {
	if !s.kind.valid() {
		return fmt.Errorf("%w: stage kind %d", ErrUnknownStage, int(s.kind))
	}
	switch s.kind {
	case StageSource, StageSink:
		if len(s.transports) != 1 {
			return fmt.Errorf("%w: %s stage needs exactly one transport, has %d", ErrInvalidTopology, s.kind, len(s.transports))
		}
	case StageMultiSink:
		if len(s.transports) == 0 {
			return fmt.Errorf("%w: to_sinks stage has no transports", ErrInvalidTopology)
		}
	default:
		if len(s.transports) != 0 {
			return fmt.Errorf("%w: %s stage cannot carry transports", ErrInvalidTopology, s.kind)
		}
	}
	switch s.kind {
	case StageSource, StageComputation, StageKeyBy:
		if s.name == "" {
			return fmt.Errorf("%w: %s stage has no name", ErrInvalidTopology, s.kind)
		}
	}
	for _, t := range s.transports {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s stage: %w", s.kind, err)
		}
	}
	return nil
}

type stageWire struct {
	_          struct{} `cbor:",toarray"`
	Kind       string
	Name       string
	Stateful   bool
	Multi      bool
	Transports []ktransport.Transport
}

// MarshalCBOR encodes s as [kind, name, stateful, multi, transports].
func (s Stage) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(stageWire{
		Kind:       s.kind.String(),
		Name:       s.name,
		Stateful:   s.stateful,
		Multi:      s.multi,
		Transports: s.transports,
	})
}

// UnmarshalCBOR decodes a stage written by MarshalCBOR.
func (s *Stage) UnmarshalCBOR(data []byte) error {
	var w stageWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := parseStageKind(w.Kind)
	if err != nil {
		return err
	}
	*s = Stage{kind: kind, name: w.Name, stateful: w.Stateful, multi: w.Multi, transports: w.Transports}
	return nil
}

func parseStageKind(s string) (StageKind, error) {
	for k := StageSource; k <= StageMerge; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, s)
}

package rate

import (
	"fmt"

	"liquefier/internal/loader"
)

type CorrectionKind string

const (
	CorrectionIdentity CorrectionKind = "identity"
	CorrectionAffine   CorrectionKind = "affine"
)

// Correction is the empirical fix applied to a channel's rate:
// identity, or y/Divisor + Offset.
type Correction struct {
	Kind    CorrectionKind
	Divisor float64
	Offset  float64
}

func Identity() Correction {
	return Correction{Kind: CorrectionIdentity}
}

func Affine(divisor, offset float64) Correction {
	return Correction{Kind: CorrectionAffine, Divisor: divisor, Offset: offset}
}

func (c Correction) Apply(y float64) float64 {
	switch c.Kind {
	case CorrectionAffine:
		return y/c.Divisor + c.Offset
	default:
		return y
	}
}

func (c Correction) Validate() error {
	switch c.Kind {
	case "", CorrectionIdentity:
		return nil
	case CorrectionAffine:
		if c.Divisor == 0 {
			return fmt.Errorf("affine correction with zero divisor")
		}
		return nil
	default:
		return fmt.Errorf("unknown correction kind %q", c.Kind)
	}
}

// Channel is one sensor column of the history store.
type Channel struct {
	Table      string
	Column     string
	Label      string
	Factor     float64
	Correction Correction
}

func (c Channel) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Column
}

// ChannelSet is the static channel configuration. It is built once at startup
// and only read afterwards.
type ChannelSet struct {
	Levels []Channel
	Flows  []Channel
	// FlowDivisor turns flow meter readings into liquid litres per minute.
	FlowDivisor float64
}

const DefaultFlowDivisor = 745

func (s ChannelSet) LevelSpecs() []loader.Spec {
	return specs(s.Levels)
}

func (s ChannelSet) FlowSpecs() []loader.Spec {
	return specs(s.Flows)
}

func specs(chs []Channel) []loader.Spec {
	var out []loader.Spec
	pos := make(map[string]int)
	for _, ch := range chs {
		i, ok := pos[ch.Table]
		if !ok {
			i = len(out)
			pos[ch.Table] = i
			out = append(out, loader.Spec{Table: ch.Table})
		}
		out[i].Columns = append(out[i].Columns, ch.Column)
	}
	return out
}

// Lookup finds a channel by column or label.
func (s ChannelSet) Lookup(name string) (Channel, bool) {
	for _, chs := range [][]Channel{s.Levels, s.Flows} {
		for _, ch := range chs {
			if ch.Column == name || ch.Label == name {
				return ch, true
			}
		}
	}
	return Channel{}, false
}

func (s ChannelSet) labels() map[string]string {
	names := make(map[string]string, len(s.Levels)+len(s.Flows))
	for _, chs := range [][]Channel{s.Levels, s.Flows} {
		for _, ch := range chs {
			names[ch.Column] = ch.Name()
		}
	}
	return names
}

func (s ChannelSet) flowDivisor() float64 {
	if s.FlowDivisor == 0 {
		return DefaultFlowDivisor
	}
	return s.FlowDivisor
}

func (s ChannelSet) Validate() error {
	seen := make(map[string]bool)
	for _, chs := range [][]Channel{s.Levels, s.Flows} {
		for _, ch := range chs {
			if ch.Table == "" || ch.Column == "" {
				return fmt.Errorf("channel %q needs a table and a column", ch.Name())
			}
			if seen[ch.Column] {
				return fmt.Errorf("channel column %s defined twice", ch.Column)
			}
			seen[ch.Column] = true
			if err := ch.Correction.Validate(); err != nil {
				return fmt.Errorf("channel %s: %w", ch.Column, err)
			}
		}
	}
	names := make(map[string]string)
	for _, chs := range [][]Channel{s.Levels, s.Flows} {
		for _, ch := range chs {
			name := ch.Name()
			if other, ok := names[name]; ok {
				return fmt.Errorf("channels %s and %s share the label %q", other, ch.Column, name)
			}
			if name != ch.Column && seen[name] {
				return fmt.Errorf("label %q of channel %s is another channel's column", name, ch.Column)
			}
			names[name] = ch.Column
		}
	}
	for _, ch := range s.Levels {
		if ch.Factor <= 0 {
			return fmt.Errorf("level channel %s needs a positive conversion factor", ch.Column)
		}
	}
	if s.FlowDivisor < 0 {
		return fmt.Errorf("flow divisor must be positive")
	}
	return nil
}

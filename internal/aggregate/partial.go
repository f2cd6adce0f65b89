// Package aggregate computes the per-day metrics table from a cleaned event
// table. Each event category is rolled up independently with grouped partial
// aggregates, then the sub-aggregates are outer-joined onto the DAU date axis.
package aggregate

import "fmt"

// AggregateType represents the kind of partial aggregate.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggAvg
	AggDistinct
)

// Partial holds one partial aggregate computed from a chunk of rows. Partials
// from different chunks merge into a single exact result, which is what lets
// the aggregator fan out over the immutable cleaned table.
type Partial struct {
	Type     AggregateType
	Count    int64
	Sum      float64
	Distinct map[string]struct{}
}

// NewPartial creates an empty partial aggregate of the given type.
func NewPartial(t AggregateType) *Partial {
	p := &Partial{Type: t}
	if t == AggDistinct {
		p.Distinct = make(map[string]struct{})
	}
	return p
}

// AddRow counts one row. Valid for AggCount.
func (p *Partial) AddRow() {
	p.Count++
}

// AddValue accumulates one non-null numeric value. Valid for AggSum and
// AggAvg; null values must simply not be added.
func (p *Partial) AddValue(v float64) {
	p.Sum += v
	p.Count++
}

// AddID accumulates one id for distinct counting. Valid for AggDistinct.
func (p *Partial) AddID(id string) {
	p.Distinct[id] = struct{}{}
}

// Merge folds src into p. Both must have the same type.
func (p *Partial) Merge(src *Partial) {
	if src == nil {
		return
	}
	if p.Type != src.Type {
		panic(fmt.Sprintf("aggregate: merging mismatched partial types %d and %d", p.Type, src.Type))
	}
	switch p.Type {
	case AggCount:
		p.Count += src.Count
	case AggSum, AggAvg:
		p.Sum += src.Sum
		p.Count += src.Count
	case AggDistinct:
		for id := range src.Distinct {
			p.Distinct[id] = struct{}{}
		}
	}
}

// CountResult returns the row count (AggCount) or distinct count (AggDistinct).
func (p *Partial) CountResult() int64 {
	if p.Type == AggDistinct {
		return int64(len(p.Distinct))
	}
	return p.Count
}

// SumResult returns the accumulated sum.
func (p *Partial) SumResult() float64 {
	return p.Sum
}

// AvgResult returns the mean of the accumulated values, or 0 when no value
// was accumulated.
func (p *Partial) AvgResult() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.Sum / float64(p.Count)
}

// Ratio returns num/den scaled by scale, or 0 when the denominator is zero.
// Every derived metric in the output goes through this guard.
func Ratio(num, den, scale float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * scale
}

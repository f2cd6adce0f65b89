package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartial_Count(t *testing.T) {
	a := NewPartial(AggCount)
	b := NewPartial(AggCount)
	for i := 0; i < 3; i++ {
		a.AddRow()
	}
	b.AddRow()

	a.Merge(b)
	assert.Equal(t, int64(4), a.CountResult())
}

func TestPartial_Sum(t *testing.T) {
	a := NewPartial(AggSum)
	a.AddValue(1.5)
	a.AddValue(2.5)

	b := NewPartial(AggSum)
	b.AddValue(6)

	a.Merge(b)
	assert.Equal(t, 10.0, a.SumResult())
}

func TestPartial_Avg(t *testing.T) {
	a := NewPartial(AggAvg)
	a.AddValue(10)
	a.AddValue(20)

	b := NewPartial(AggAvg)
	b.AddValue(60)

	a.Merge(b)
	assert.Equal(t, 30.0, a.AvgResult())
}

func TestPartial_AvgEmpty(t *testing.T) {
	assert.Equal(t, 0.0, NewPartial(AggAvg).AvgResult())
}

func TestPartial_Distinct(t *testing.T) {
	a := NewPartial(AggDistinct)
	a.AddID("p1")
	a.AddID("p2")
	a.AddID("p1")

	b := NewPartial(AggDistinct)
	b.AddID("p2")
	b.AddID("p3")

	a.Merge(b)
	assert.Equal(t, int64(3), a.CountResult())
}

func TestPartial_MergeNil(t *testing.T) {
	a := NewPartial(AggCount)
	a.AddRow()
	a.Merge(nil)
	assert.Equal(t, int64(1), a.CountResult())
}

func TestPartial_MergeMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPartial(AggCount).Merge(NewPartial(AggSum))
	})
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 25.0, Ratio(5, 20, 100))
	assert.Equal(t, 2.5, Ratio(5, 2, 1))
	assert.Equal(t, 0.0, Ratio(5, 0, 100))
	assert.Equal(t, 0.0, Ratio(0, 0, 100))
}

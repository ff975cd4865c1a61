package randengine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/ptlsim/utils/randengine"
)

func TestSameSeedSameSequence(t *testing.T) {
	a := randengine.New(42)
	b := randengine.New(42)
	assert.Equal(t, a.UniformN(0, 0.2, 8), b.UniformN(0, 0.2, 8))
	assert.Equal(t, a.Exponential(0.5), b.Exponential(0.5))

	c := randengine.New(43)
	assert.NotEqual(t, randengine.New(42).UniformN(0, 1, 4), c.UniformN(0, 1, 4))
}

func TestUniformRange(t *testing.T) {
	e := randengine.New(1)
	for _, v := range e.UniformN(0, 0.2, 1000) {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 0.2)
	}
}

func TestExponential(t *testing.T) {
	e := randengine.New(7)
	assert.True(t, math.IsInf(e.Exponential(0), 1))
	sum := 0.
	n := 20000
	for i := 0; i < n; i++ {
		sum += e.Exponential(2)
	}
	assert.InDelta(t, 0.5, sum/float64(n), 0.02)
}

func TestDiscreteDistribution(t *testing.T) {
	e := randengine.New(3)
	counts := make([]int, 3)
	for i := 0; i < 10000; i++ {
		counts[e.DiscreteDistribution([]float64{0, 1, 3})]++
	}
	assert.Equal(t, 0, counts[0])
	assert.InDelta(t, 0.75, float64(counts[2])/10000, 0.03)
}

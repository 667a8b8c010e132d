package randengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lanesim/utils/randengine"
)

func TestHeadway(t *testing.T) {
	e := randengine.New(7)
	const n = 20000
	sum := 0.
	for i := 0; i < n; i++ {
		h := e.Headway(0.5)
		assert.GreaterOrEqual(t, h, 0.)
		sum += h
	}
	// 均值为1/rate
	assert.InDelta(t, 2, sum/n, 0.1)
	assert.Panics(t, func() { e.Headway(0) })
}

func TestSameSeedSameSequence(t *testing.T) {
	a, b := randengine.New(42), randengine.New(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Headway(1), b.Headway(1))
	}
	bufA, bufB := make([]byte, 16), make([]byte, 16)
	_, err := a.Read(bufA)
	assert.NoError(t, err)
	_, err = b.Read(bufB)
	assert.NoError(t, err)
	assert.Equal(t, bufA, bufB)
}

package floats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftmax(t *testing.T) {
	t.Run("sums to one", func(t *testing.T) {
		out := Softmax([]float64{1, 2, 3})
		var sum float64
		for _, p := range out {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, DistTolerance)
		assert.True(t, out[2] > out[1] && out[1] > out[0])
	})

	t.Run("stable for large logits", func(t *testing.T) {
		out := Softmax([]float64{1000, 1001})
		assert.False(t, math.IsNaN(out[0]))
		assert.InDelta(t, 1.0, out[0]+out[1], DistTolerance)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, Softmax(nil))
	})
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, -1, ArgMax(nil))
	assert.Equal(t, 2, ArgMax([]float64{0.1, 0.2, 0.7}))
	// 并列时取靠前者
	assert.Equal(t, 0, ArgMax([]float64{0.5, 0.5}))
}

func TestDot(t *testing.T) {
	v, err := Dot([]float64{1, 2}, []float64{3, 4})
	assert.NoError(t, err)
	assert.InDelta(t, 11.0, v, 1e-12)

	_, err = Dot([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestIsDistribution(t *testing.T) {
	assert.True(t, IsDistribution([]float64{0.25, 0.25, 0.5}))
	assert.False(t, IsDistribution([]float64{0.6, 0.6}))
	assert.False(t, IsDistribution([]float64{-0.1, 1.1}))
	assert.False(t, IsDistribution(nil))
}

func TestClip(t *testing.T) {
	assert.Equal(t, 1.0, Clip(5, 0, 1))
	assert.Equal(t, 0.0, Clip(-5, 0, 1))
	assert.Equal(t, 0.5, Clip(0.5, 0, 1))
}

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validFeedback() *Feedback {
	return &Feedback{
		NRounds:  2,
		NActions: 3,
		Context:  [][]float64{{1, 2}, {3, 4}},
		Action:   []int{0, 2},
		Reward:   []float64{1, 0},
		Pscore:   []float64{0.5, 0.2},
	}
}

func TestFeedbackValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validFeedback().Validate())
	})

	t.Run("nil", func(t *testing.T) {
		var fb *Feedback
		assert.Error(t, fb.Validate())
	})

	t.Run("action out of range", func(t *testing.T) {
		fb := validFeedback()
		fb.Action[1] = 3
		assert.Error(t, fb.Validate())
	})

	t.Run("zero pscore", func(t *testing.T) {
		fb := validFeedback()
		fb.Pscore[0] = 0
		assert.Error(t, fb.Validate())
	})

	t.Run("ragged context", func(t *testing.T) {
		fb := validFeedback()
		fb.Context[1] = []float64{1}
		assert.Error(t, fb.Validate())
	})

	t.Run("expected reward shape", func(t *testing.T) {
		fb := validFeedback()
		fb.ExpectedReward = [][]float64{{0.1, 0.2}}
		assert.Error(t, fb.Validate())
	})

	t.Run("length mismatch", func(t *testing.T) {
		fb := validFeedback()
		fb.Reward = fb.Reward[:1]
		assert.Error(t, fb.Validate())
	})
}

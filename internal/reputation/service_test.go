package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentindex/gateway/internal/core"
)

func feedback(scores ...int) []core.Feedback {
	out := make([]core.Feedback, 0, len(scores))
	for _, s := range scores {
		out = append(out, core.Feedback{Score: s})
	}
	return out
}

func TestAggregateBuckets(t *testing.T) {
	r := Aggregate("1:1", feedback(0, 33, 34, 66, 67, 100))

	assert.Equal(t, 6, r.FeedbackCount)
	assert.Equal(t, 2, r.LowCount)    // 0, 33
	assert.Equal(t, 2, r.MediumCount) // 34, 66
	assert.Equal(t, 2, r.HighCount)   // 67, 100
	assert.Equal(t, r.FeedbackCount, r.LowCount+r.MediumCount+r.HighCount)
}

func TestAggregateMeanRoundsToTwoDecimals(t *testing.T) {
	r := Aggregate("1:1", feedback(50, 50, 51))
	assert.Equal(t, 50.33, r.AverageScore)
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate("1:1", nil)
	assert.Zero(t, r.FeedbackCount)
	assert.Zero(t, r.AverageScore)
}

func TestAggregateSingle(t *testing.T) {
	r := Aggregate("1:1", feedback(100))
	assert.Equal(t, 1, r.FeedbackCount)
	assert.Equal(t, 100.0, r.AverageScore)
	assert.Equal(t, 1, r.HighCount)
}

package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompetitionRanksSkipOnTie(t *testing.T) {
	ranks := CompetitionRanks([]Scored{
		{StudentID: "d", Value: 70},
		{StudentID: "b", Value: 80},
		{StudentID: "a", Value: 90},
		{StudentID: "c", Value: 80},
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 2, "d": 4}, ranks)
}

func TestCompetitionRanksComparesExactValues(t *testing.T) {
	ranks := CompetitionRanks([]Scored{
		{StudentID: "a", Value: 80.004},
		{StudentID: "b", Value: 80.001},
		{StudentID: "c", Value: 60},
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, ranks)
}

func TestCompetitionRanksIgnoresSummationNoise(t *testing.T) {
	ranks := CompetitionRanks([]Scored{
		{StudentID: "a", Value: 0.1 + 0.2},
		{StudentID: "b", Value: 0.3},
		{StudentID: "c", Value: 0.2},
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 3}, ranks)
}

func TestCompetitionRanksEmpty(t *testing.T) {
	assert.Empty(t, CompetitionRanks(nil))
}

func TestMean(t *testing.T) {
	assert.Nil(t, Mean(nil))
	avg := Mean([]float64{81, 75, 70})
	if assert.NotNil(t, avg) {
		assert.InDelta(t, 75.333333, *avg, 1e-6)
	}
}

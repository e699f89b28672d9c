package grading

import (
	"math"
	"sort"
)

// tieTolerance absorbs float summation noise only; any real score difference
// breaks a tie.
const tieTolerance = 1e-9

// Scored pairs a student with a metric value used for ranking.
type Scored struct {
	StudentID string
	Value     float64
}

// CompetitionRanks assigns standard competition ranks ("1,2,2,4") in
// descending order of value. Ties share a rank and the next distinct value
// skips ahead by the number of tied students. Values are compared unrounded.
func CompetitionRanks(items []Scored) map[string]int {
	sorted := make([]Scored, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].StudentID < sorted[j].StudentID
	})

	ranks := make(map[string]int, len(sorted))
	rank := 0
	for i, item := range sorted {
		if i == 0 || math.Abs(item.Value-sorted[i-1].Value) > tieTolerance {
			rank = i + 1
		}
		ranks[item.StudentID] = rank
	}
	return ranks
}

// Mean averages values without rounding, returning nil for an empty input.
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return &avg
}

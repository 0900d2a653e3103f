package reduce

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the per-feature statistics used for reduction.
type Summary struct {
	BlankAverage  float64
	SampleAverage float64
	SampleMax     float64
	SampleStdev   float64
	SampleCV      float64 // percent, two decimals
	FoldChange    float64 // sample max / blank average
	PoolAverage   float64
	PoolStdev     float64
	PoolCV        float64 // percent, two decimals
}

// Column names of the statistics appended to reduced outputs, in the
// order of Summary.Values.
var SummaryColumns = []string{
	"Blank Average",
	"Sample Average",
	"Sample Max",
	"Fold 2",
	"Sample stdev",
	"Sample %CV",
	"Pool stdev",
	"Pool %CV",
}

// Values returns the statistics in SummaryColumns order.
func (s Summary) Values() []float64 {
	return []float64{
		s.BlankAverage,
		s.SampleAverage,
		s.SampleMax,
		s.FoldChange,
		s.SampleStdev,
		s.SampleCV,
		s.PoolStdev,
		s.PoolCV,
	}
}

// Summarize computes the statistics of one feature from its blank,
// sample and pool heights. Blank and sample heights must not be empty;
// the caller checks the groups once before processing rows.
func Summarize(blanks, samples, pools []float64) Summary {
	var s Summary
	s.BlankAverage = stat.Mean(blanks, nil)
	s.SampleAverage, s.SampleStdev = meanStdDev(samples)
	s.SampleMax = floats.Max(samples)
	s.SampleCV = cv(s.SampleStdev, s.SampleAverage)
	s.FoldChange = FoldChange(s.SampleMax, s.BlankAverage)
	if len(pools) > 0 {
		s.PoolAverage, s.PoolStdev = meanStdDev(pools)
		s.PoolCV = cv(s.PoolStdev, s.PoolAverage)
	}
	return s
}

// FoldChange is sampleMax / blankAverage. A zero blank average gives +Inf
// for a positive sample max and 0 otherwise.
func FoldChange(sampleMax, blankAverage float64) float64 {
	if blankAverage == 0 {
		if sampleMax > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return sampleMax / blankAverage
}

// meanStdDev returns the mean and the sample (n-1) standard deviation.
// Fewer than two values have a standard deviation of 0.
func meanStdDev(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

// cv is the coefficient of variation in percent, rounded to two decimals.
func cv(stdev, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return math.Round(stdev/mean*100*100) / 100
}

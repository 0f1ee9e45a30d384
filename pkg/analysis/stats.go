package analysis

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoValues = errors.New("no values")

// SummaryPercentiles are written, in order, before the minimum and maximum by WriteSummaryFile.
var SummaryPercentiles = []float64{5, 25, 50, 75, 95}

type Statistics struct {
	Count   int
	Minimum float64
	Maximum float64
	Median  float64
	Average float64
	StdDev  float64

	// Spread is (max - min) / (max + min), the variance measure used for compute times.
	Spread float64
}

func Summarize(values []float64) (Statistics, error) {
	if len(values) == 0 {
		return Statistics{}, ErrNoValues
	}

	data := stats.LoadRawData(values)
	min, err := stats.Min(data)
	if err != nil {
		return Statistics{}, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return Statistics{}, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return Statistics{}, err
	}

	average, stdDev := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		stdDev = 0
	}

	var spread float64
	if max+min != 0 {
		spread = (max - min) / (max + min)
	}

	return Statistics{
		Count:   len(values),
		Minimum: min,
		Maximum: max,
		Median:  median,
		Average: average,
		StdDev:  stdDev,
		Spread:  spread,
	}, nil
}

// PercentileSummary returns the SummaryPercentiles of values (linearly interpolated) followed by
// the minimum and maximum.
func PercentileSummary(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	summary := make([]float64, 0, len(SummaryPercentiles)+2)
	for _, percentile := range SummaryPercentiles {
		summary = append(summary, percentileOfSorted(sorted, percentile))
	}
	summary = append(summary, sorted[0], sorted[len(sorted)-1])

	return summary, nil
}

// percentileOfSorted interpolates linearly between the two closest ranks, where rank 0 is the
// minimum and rank n-1 the maximum.
func percentileOfSorted(sorted []float64, percentile float64) float64 {
	rank := percentile / 100 * float64(len(sorted)-1)
	lower, upper := int(math.Floor(rank)), int(math.Ceil(rank))
	return sorted[lower] + (rank-float64(lower))*(sorted[upper]-sorted[lower])
}

// WriteSummaryFile writes the PercentileSummary of values as one tab-separated line.
func WriteSummaryFile(values []float64, fileName string) error {
	summary, err := PercentileSummary(values)
	if err != nil {
		return fmt.Errorf("summary %s: %w", fileName, err)
	}

	fields := make([]string, len(summary))
	for i, v := range summary {
		fields[i] = fmt.Sprintf("%f", v)
	}

	return os.WriteFile(fileName, []byte(strings.Join(fields, "\t")+"\n"), 0644)
}

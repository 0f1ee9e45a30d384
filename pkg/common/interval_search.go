package common

// Interval is the half-open range (Start, End]. Value is the index of the boundary that closes it.
type Interval[T Number] struct {
	Start T
	End   T
	Value int
}

type IntervalSearch[T Number] struct {
	intervals []Interval[T]
}

// NewIntervalSearch expects ascending boundaries. Interval i spans (boundaries[i-1], boundaries[i]];
// empty intervals are dropped.
func NewIntervalSearch[T Number](boundaries []T) *IntervalSearch[T] {
	return &IntervalSearch[T]{
		intervals: constructIntervals(boundaries),
	}
}

func constructIntervals[T Number](boundaries []T) []Interval[T] {
	var result []Interval[T]

	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			continue
		}
		result = append(result, Interval[T]{Start: boundaries[i-1], End: boundaries[i], Value: i})
	}

	return result
}

func (si *IntervalSearch[T]) Len() int {
	return len(si.intervals)
}

// SearchInterval returns the interval containing val, or nil.
func (si *IntervalSearch[T]) SearchInterval(val T) *Interval[T] {
	low := 0
	high := len(si.intervals) - 1

	for low <= high {
		mid := (low + high) / 2

		if val > si.intervals[mid].Start && val <= si.intervals[mid].End {
			return &si.intervals[mid]
		} else if val <= si.intervals[mid].Start {
			high = mid - 1
		} else {
			low = mid + 1
		}
	}

	return nil
}

// Overlapping returns the intervals sharing a non-empty range with (start, end].
func (si *IntervalSearch[T]) Overlapping(start, end T) []Interval[T] {
	low, high := 0, len(si.intervals)
	for low < high {
		mid := (low + high) / 2
		if si.intervals[mid].End <= start {
			low = mid + 1
		} else {
			high = mid
		}
	}

	last := low
	for last < len(si.intervals) && si.intervals[last].Start < end {
		last++
	}

	return si.intervals[low:last]
}

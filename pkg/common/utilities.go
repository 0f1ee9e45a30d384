package common

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

func MinOf[T Number](vars ...T) T {
	min := vars[0]

	for _, i := range vars {
		if min > i {
			min = i
		}
	}

	return min
}

func MaxOf[T Number](vars ...T) T {
	max := vars[0]

	for _, i := range vars {
		if max < i {
			max = i
		}
	}

	return max
}

func SumOf[T Number](vars []T) T {
	var sum T
	for _, v := range vars {
		sum += v
	}
	return sum
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K ~int | ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func Mib2b(numMb float64) float64 {
	return numMb * BytesPerMegabyte
}

func BytesPerSecond2Mbps(bps float64) float64 {
	return bps * BitsPerByte / BitsPerMegabit
}

func Check(e error) {
	if e != nil {
		log.Fatal(e)
	}
}

// Package batch converts every unit of a document in parallel with ordered
// aggregation.
package batch

// DefaultMaxWorkers caps the worker count regardless of available cores.
const DefaultMaxWorkers = 8

// Range is a half-open interval [Start, End) of 0-based unit indexes.
type Range struct {
	Start int
	End   int
}

// Len returns the number of units in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Partition splits total units into at most workers contiguous ranges whose
// sizes differ by at most one, larger ranges first. Empty ranges are never
// returned.
func Partition(total, workers int) []Range {
	if total <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	base := total / workers
	extra := total % workers
	ranges := make([]Range, 0, workers)
	start := 0
	for w := 0; w < workers; w++ {
		size := base
		if w < extra {
			size++
		}
		ranges = append(ranges, Range{Start: start, End: start + size})
		start += size
	}
	return ranges
}

// WorkerCount returns min(parallelism, limit, units), and at least one
// worker when there is any unit.
func WorkerCount(parallelism, limit, units int) int {
	if units <= 0 {
		return 0
	}
	n := parallelism
	if limit > 0 && limit < n {
		n = limit
	}
	if units < n {
		n = units
	}
	return max(n, 1)
}

package core

import (
	"runtime"
	"sync"
)

// FindPeaks scans y for interior local maxima meeting height and
// prominence thresholds. Inputs shorter than 3 samples return no peaks.
func FindPeaks(y []float64, minHeight, minProminence float64) []Peak {
	if len(y) < 3 {
		return nil
	}

	var peaks []Peak
	for i := 1; i < len(y)-1; i++ {
		if !(y[i-1] < y[i] && y[i] > y[i+1]) {
			continue
		}
		if y[i] < minHeight {
			continue
		}

		leftMin := minOf(y[:i])
		rightMin := minOf(y[i+1:])
		prominence := y[i] - max(leftMin, rightMin)
		if prominence < minProminence {
			continue
		}

		peaks = append(peaks, Peak{Index: i, Value: y[i], Prominence: prominence})
	}
	return peaks
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// FindMax returns the index of the first occurrence of the supremum of y.
// Empty input reports ok=false.
func FindMax(y []float64) (index int, ok bool) {
	if len(y) == 0 {
		return 0, false
	}
	best := 0
	for i, v := range y {
		if v > y[best] {
			best = i
		}
	}
	return best, true
}

// Diff returns the first difference of y: len(y)-1 elements, element i
// equal to y[i+1]-y[i]. Diff is the left inverse of prefix-sum.
func Diff(y []float64) []float64 {
	if len(y) < 2 {
		return nil
	}
	d := make([]float64, len(y)-1)
	for i := range d {
		d[i] = y[i+1] - y[i]
	}
	return d
}

// FindPeaksBatch runs FindPeaks over each row independently and in
// parallel; rows share no mutable state so results are returned in the
// same order as the input rows regardless of completion order.
func FindPeaksBatch(rows [][]float64, minHeight, minProminence float64) [][]Peak {
	out := make([][]Peak, len(rows))
	if len(rows) == 0 {
		return out
	}

	workers := min(len(rows), max(1, runtime.NumCPU()))
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = FindPeaks(rows[i], minHeight, minProminence)
			}
		}()
	}
	for i := range rows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}

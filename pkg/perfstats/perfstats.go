// Package perfstats accumulates timing samples, such as the time spent running a detector on each image.
package perfstats

import "time"

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
}

// Merge adds the samples of another accumulator into this one
func (a *TimeAccumulator) Merge(b TimeAccumulator) {
	a.Samples += b.Samples
	a.Total += b.Total
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// PerSecond returns the number of samples that fit into one second, at the average rate.
// Returns 0 if there are no samples, or if the total time is zero.
func (a *TimeAccumulator) PerSecond() float64 {
	avg := a.Average()
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}

// Stopwatch measures a single interval, and adds it to an accumulator when stopped
type Stopwatch struct {
	start time.Time
}

func StartStopwatch() Stopwatch {
	return Stopwatch{start: time.Now()}
}

func (s Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// StopInto adds the elapsed time to 'acc', and returns it
func (s Stopwatch) StopInto(acc *TimeAccumulator) time.Duration {
	elapsed := s.Elapsed()
	acc.AddSample(elapsed)
	return elapsed
}

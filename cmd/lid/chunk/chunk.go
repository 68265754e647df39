package chunk

import (
	"iter"
	"math"
)

// Window is a contiguous, non-overlapping slice of a waveform together with
// its offsets in milliseconds. Offsets are derived from the number of samples
// consumed so far, so the last window of a waveform that isn't an exact
// multiple of the window size ends at the true end of the audio.
type Window struct {
	Index   int
	Samples []float32
	StartMs int64
	EndMs   int64
}

func (w Window) DurationMs() int64 {
	return w.EndMs - w.StartMs
}

// WindowSamples returns the number of samples in a full window.
func WindowSamples(sampleRate int, windowSeconds float64) int {
	return max(1, int(math.Round(windowSeconds*float64(sampleRate))))
}

// Count returns how many windows Windows would yield for numSamples samples.
func Count(numSamples, sampleRate int, windowSeconds float64) int {
	if numSamples <= 0 || sampleRate <= 0 || windowSeconds <= 0 {
		return 0
	}
	size := WindowSamples(sampleRate, windowSeconds)
	return (numSamples + size - 1) / size
}

func sampleOffsetMs(i, sampleRate int) int64 {
	return int64(i) * 1000 / int64(sampleRate)
}

// Windows lazily splits samples into consecutive windows of
// round(windowSeconds*sampleRate) samples starting at index 0. The final
// window may be shorter. The sequence can be ranged over any number of times.
func Windows(samples []float32, sampleRate int, windowSeconds float64) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if len(samples) == 0 || sampleRate <= 0 || windowSeconds <= 0 {
			return
		}

		size := WindowSamples(sampleRate, windowSeconds)
		for idx, i := 0, 0; i < len(samples); idx, i = idx+1, i+size {
			end := min(i+size, len(samples))
			w := Window{
				Index:   idx,
				Samples: samples[i:end:end],
				StartMs: sampleOffsetMs(i, sampleRate),
				EndMs:   sampleOffsetMs(end, sampleRate),
			}
			if !yield(w) {
				return
			}
		}
	}
}

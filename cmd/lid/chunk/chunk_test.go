package chunk

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleRate = 16000

func collect(samples []float32, windowSeconds float64) []Window {
	return slices.Collect(Windows(samples, sampleRate, windowSeconds))
}

func TestWindows(t *testing.T) {
	tcs := []struct {
		name          string
		numSamples    int
		windowSeconds float64
		expected      [][2]int64
	}{
		{
			name:          "empty",
			numSamples:    0,
			windowSeconds: 30,
		},
		{
			name:          "shorter than a window",
			numSamples:    sampleRate * 5,
			windowSeconds: 30,
			expected:      [][2]int64{{0, 5000}},
		},
		{
			name:          "65s in 30s windows",
			numSamples:    sampleRate * 65,
			windowSeconds: 30,
			expected:      [][2]int64{{0, 30000}, {30000, 60000}, {60000, 65000}},
		},
		{
			name:          "exact multiple",
			numSamples:    sampleRate * 60,
			windowSeconds: 30,
			expected:      [][2]int64{{0, 30000}, {30000, 60000}},
		},
		{
			name:          "fractional window",
			numSamples:    sampleRate * 2,
			windowSeconds: 0.75,
			expected:      [][2]int64{{0, 750}, {750, 1500}, {1500, 2000}},
		},
		{
			name:          "single trailing sample",
			numSamples:    sampleRate + 1,
			windowSeconds: 1,
			expected:      [][2]int64{{0, 1000}, {1000, 1000}},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			windows := collect(make([]float32, tc.numSamples), tc.windowSeconds)
			require.Len(t, windows, len(tc.expected))
			require.Equal(t, len(tc.expected), Count(tc.numSamples, sampleRate, tc.windowSeconds))

			var covered int
			for i, w := range windows {
				require.Equal(t, i, w.Index)
				require.Equal(t, tc.expected[i][0], w.StartMs)
				require.Equal(t, tc.expected[i][1], w.EndMs)
				require.NotEmpty(t, w.Samples)
				if i > 0 {
					require.Equal(t, windows[i-1].EndMs, w.StartMs)
				}
				covered += len(w.Samples)
			}
			require.Equal(t, tc.numSamples, covered)
		})
	}
}

func TestWindowsContent(t *testing.T) {
	samples := make([]float32, 10)
	for i := range samples {
		samples[i] = float32(i)
	}

	windows := slices.Collect(Windows(samples, 4, 1))
	require.Len(t, windows, 3)
	require.Equal(t, []float32{0, 1, 2, 3}, windows[0].Samples)
	require.Equal(t, []float32{4, 5, 6, 7}, windows[1].Samples)
	require.Equal(t, []float32{8, 9}, windows[2].Samples)
	require.Equal(t, int64(2500), windows[2].EndMs)
}

func TestWindowsRestartable(t *testing.T) {
	seq := Windows(make([]float32, sampleRate*65), sampleRate, 30)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Equal(t, first, second)
}

func TestWindowsEarlyStop(t *testing.T) {
	var n int
	for range Windows(make([]float32, sampleRate*65), sampleRate, 30) {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestWindowSamples(t *testing.T) {
	require.Equal(t, 480000, WindowSamples(sampleRate, 30))
	require.Equal(t, 8000, WindowSamples(sampleRate, 0.5))
	require.Equal(t, 1, WindowSamples(sampleRate, 0.00001))
	require.Equal(t, 0, Count(100, sampleRate, 0))
}

package opus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestOpusRoundTrip(t *testing.T) {
	rate := 16000
	frameSize := 20 * rate / 1000

	enc, err := NewEncoder(rate, 1)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, enc.Destroy())
	}()

	dec, err := NewDecoder(rate, 1)
	require.NoError(t, err)
	require.Equal(t, 1920, dec.MaxFrameSize())

	input := sine(frameSize*10, rate, 440)
	data := make([]byte, 1024)
	samples := make([]float32, dec.MaxFrameSize())

	var total int
	for i := 0; i+frameSize <= len(input); i += frameSize {
		n, err := enc.Encode(input[i:], data, frameSize)
		require.NoError(t, err)
		require.NotZero(t, n)

		m, err := dec.Decode(data[:n], samples)
		require.NoError(t, err)
		require.Equal(t, frameSize, m)
		total += m
	}
	require.Equal(t, len(input), total)

	require.NoError(t, dec.Destroy())
	require.EqualError(t, dec.Destroy(), "decoder is not initialized")
}

func TestOpusDecodeErrors(t *testing.T) {
	dec, err := NewDecoder(16000, 1)
	require.NoError(t, err)
	defer dec.Destroy()

	_, err = dec.Decode(nil, make([]float32, 320))
	require.EqualError(t, err, "data should not be empty")

	_, err = dec.Decode([]byte{1}, nil)
	require.EqualError(t, err, "samples should not be empty")
}

func BenchmarkOpusDecode(b *testing.B) {
	enc, err := NewEncoder(16000, 1)
	require.NoError(b, err)
	defer enc.Destroy()

	data := make([]byte, 1024)
	n, err := enc.Encode(sine(320, 16000, 440), data, 320)
	require.NoError(b, err)

	dec, err := NewDecoder(16000, 1)
	require.NoError(b, err)
	defer dec.Destroy()

	samples := make([]float32, 320)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := dec.Decode(data[:n], samples)
		require.NoError(b, err)
	}
}

package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}

	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	res := make([]float32, len(out))
	for i, s := range out {
		res[i] = float32(s)
	}

	return res, nil
}

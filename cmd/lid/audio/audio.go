package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SampleRate is the rate every waveform is converted to on load.
const SampleRate = 16000

// Waveform is mono PCM audio with samples in the [-1, 1] range.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

var errUnsupportedFormat = errors.New("unsupported format")

// Load decodes the audio stream of the file at path into a mono waveform at
// SampleRate. WAV and Ogg Opus files are decoded natively, anything else
// (including the audio track of video files) goes through ffmpeg.
func Load(ctx context.Context, path string) (Waveform, error) {
	if _, err := os.Stat(path); err != nil {
		return Waveform{}, fmt.Errorf("failed to stat audio file: %w", err)
	}

	var (
		wf  Waveform
		err error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		wf, err = loadWAV(path)
	case ".ogg", ".opus", ".oga":
		wf, err = loadOpus(path)
	default:
		err = errUnsupportedFormat
	}

	if errors.Is(err, errUnsupportedFormat) {
		slog.Debug("falling back to ffmpeg", slog.String("path", path), slog.String("reason", err.Error()))
		wf, err = loadFFmpeg(ctx, path)
	}
	if err != nil {
		return Waveform{}, err
	}

	if wf.SampleRate != SampleRate {
		start := time.Now()
		samples, err := Resample(wf.Samples, wf.SampleRate, SampleRate)
		if err != nil {
			return Waveform{}, fmt.Errorf("failed to resample audio: %w", err)
		}
		slog.Debug("resampled audio", slog.Int("from", wf.SampleRate), slog.Int("to", SampleRate),
			slog.Duration("took", time.Since(start)))
		wf = Waveform{Samples: samples, SampleRate: SampleRate}
	}

	return wf, nil
}

// downmix averages interleaved channels into a single one.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

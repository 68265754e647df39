package vad

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	windowSizeInSamples  = 512
	minSilenceDurationMs = 150
	minSpeechDurationMs  = 250
	silencePadMs         = 32
)

type Config struct {
	ModelPath  string
	SampleRate int
	Threshold  float64
}

func (c Config) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}

	if _, err := os.Stat(c.ModelPath); err != nil {
		return fmt.Errorf("invalid ModelPath: failed to stat model file: %w", err)
	}

	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("invalid SampleRate: should be 8000 or 16000")
	}

	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("invalid Threshold: should be in the range (0, 1)")
	}

	return nil
}

// Gate reports whether a window contains any speech using the Silero VAD
// model.
type Gate struct {
	cfg Config
	sd  *speech.Detector
}

func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           cfg.SampleRate,
		WindowSize:           windowSizeInSamples,
		Threshold:            float32(cfg.Threshold),
		MinSilenceDurationMs: minSilenceDurationMs,
		MinSpeechDurationMs:  minSpeechDurationMs,
		SilencePadMs:         silencePadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech detector: %w", err)
	}

	return &Gate{cfg: cfg, sd: sd}, nil
}

func (g *Gate) HasSpeech(samples []float32, sampleRate int) (bool, error) {
	if sampleRate != g.cfg.SampleRate {
		return false, fmt.Errorf("unexpected sample rate %d", sampleRate)
	}
	if len(samples) < windowSizeInSamples {
		// Too short for the model to say anything.
		return true, nil
	}

	// Every window is judged on its own.
	defer func() {
		if err := g.sd.Reset(); err != nil {
			slog.Error("failed to reset speech detector", slog.String("err", err.Error()))
		}
	}()

	segments, err := g.sd.Detect(samples)
	if err != nil {
		return false, fmt.Errorf("failed to detect speech: %w", err)
	}

	return len(segments) > 0, nil
}

func (g *Gate) Destroy() error {
	if g.sd == nil {
		return fmt.Errorf("detector is not initialized")
	}
	err := g.sd.Destroy()
	g.sd = nil
	return err
}

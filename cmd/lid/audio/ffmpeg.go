package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strings"
)

// FFmpegPath is the ffmpeg binary used for containers that aren't decoded
// natively.
var FFmpegPath = "ffmpeg"

// loadFFmpeg extracts the first audio stream of path as raw mono float32 at
// SampleRate.
func loadFFmpeg(ctx context.Context, path string) (Waveform, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-nostdin", "-v", "error",
		"-i", path,
		"-vn", "-ac", "1", "-ar", fmt.Sprintf("%d", SampleRate),
		"-f", "f32le", "-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Waveform{}, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return Waveform{
		Samples:    decodeF32LE(stdout.Bytes()),
		SampleRate: SampleRate,
	}, nil
}

func decodeF32LE(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

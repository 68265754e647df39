package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/clamsproject/spoken-lid/cmd/lid/ogg"
	"github.com/clamsproject/spoken-lid/cmd/lid/opus"
)

// Opus always decodes at 48kHz internally. Asking the decoder for SampleRate
// directly avoids resampling.
const opusPreSkipRate = 48000

func loadOpus(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	return decodeOpus(bufio.NewReader(f))
}

func decodeOpus(r io.Reader) (Waveform, error) {
	reader, hdr, err := ogg.NewReader(r)
	if err != nil {
		// Vorbis, FLAC or anything else in an Ogg container.
		return Waveform{}, fmt.Errorf("%w: %w", errUnsupportedFormat, err)
	}

	dec, err := opus.NewDecoder(SampleRate, 1)
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	defer func() {
		if err := dec.Destroy(); err != nil {
			slog.Error("failed to destroy decoder", slog.String("err", err.Error()))
		}
	}()

	var samples []float32
	pcm := make([]float32, dec.MaxFrameSize())
	for {
		pkt, err := reader.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return Waveform{}, fmt.Errorf("failed to read packet: %w", err)
		}

		n, err := dec.Decode(pkt, pcm)
		if err != nil {
			slog.Warn("failed to decode packet", slog.String("err", err.Error()))
			continue
		}
		samples = append(samples, pcm[:n]...)
	}

	preSkip := int(hdr.PreSkip) * SampleRate / opusPreSkipRate
	if preSkip >= len(samples) {
		return Waveform{SampleRate: SampleRate}, nil
	}

	return Waveform{
		Samples:    samples[preSkip:],
		SampleRate: SampleRate,
	}, nil
}

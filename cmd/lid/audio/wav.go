package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM = 1
	wavBitDepth  = 16
	wavChannels  = 1
)

func loadWAV(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Waveform{}, fmt.Errorf("%w: invalid WAV file", errUnsupportedFormat)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return Waveform{}, fmt.Errorf("%w: WAV audio format %d", errUnsupportedFormat, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to decode WAV data: %w", err)
	}

	channels := int(d.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	scale := float32(math.Pow(2, float64(d.BitDepth)-1))
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}

	return Waveform{
		Samples:    downmix(samples, channels),
		SampleRate: int(d.SampleRate),
	}, nil
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	return int16(max(-32768, min(32767, v)))
}

// EncodeWAV wraps float32 samples in an in-memory WAV (16-bit PCM, mono).
func EncodeWAV(samples []float32, rate int) []byte {
	wavHeaderLen := 44
	data := make([]byte, wavHeaderLen+len(samples)*2)
	pcm := data[wavHeaderLen:]

	copy(data[0:], "RIFF")
	binary.LittleEndian.PutUint32(data[4:], uint32(len(data)-8))
	copy(data[8:], "WAVE")
	copy(data[12:], "fmt ")
	binary.LittleEndian.PutUint32(data[16:], 16)
	binary.LittleEndian.PutUint16(data[20:], wavFormatPCM)
	binary.LittleEndian.PutUint16(data[22:], wavChannels)
	binary.LittleEndian.PutUint32(data[24:], uint32(rate))
	binary.LittleEndian.PutUint32(data[28:], uint32(rate*wavBitDepth*wavChannels/8))
	binary.LittleEndian.PutUint16(data[32:], wavBitDepth*wavChannels/8)
	binary.LittleEndian.PutUint16(data[34:], wavBitDepth)
	copy(data[36:], "data")
	binary.LittleEndian.PutUint32(data[40:], uint32(len(samples)*2))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(toInt16(s)))
	}

	return data
}

// WriteWAVFile writes samples to path as a 16-bit PCM mono WAV file.
func WriteWAVFile(path string, samples []float32, rate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close file: %w", closeErr)
		}
	}()

	enc := wav.NewEncoder(f, rate, wavBitDepth, wavChannels, wavFormatPCM)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(toInt16(s))
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: wavChannels,
			SampleRate:  rate,
		},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	return nil
}

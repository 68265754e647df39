package audio

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// TempWAV writes samples to a new temporary WAV file. The returned release
// function removes it and is safe to call more than once.
func TempWAV(dir string, samples []float32, rate int) (string, func(), error) {
	f, err := os.CreateTemp(dir, "lid-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				slog.Error("failed to remove temp file", slog.String("path", path), slog.String("err", err.Error()))
			}
		})
	}

	if err := WriteWAVFile(path, samples, rate); err != nil {
		release()
		return "", nil, err
	}

	return path, release, nil
}

package whisper

import (
	"fmt"
	"path/filepath"
)

var modelFiles = map[string]string{
	"tiny":   "ggml-tiny.bin",
	"base":   "ggml-base.bin",
	"small":  "ggml-small.bin",
	"medium": "ggml-medium.bin",
	"large":  "ggml-large-v3.bin",
	"turbo":  "ggml-large-v3-turbo.bin",
}

// ModelFile returns the path of the multilingual GGML model for the given
// size inside dir.
func ModelFile(dir, size string) (string, error) {
	name, ok := modelFiles[size]
	if !ok {
		return "", fmt.Errorf("unknown model size %q", size)
	}
	return filepath.Join(dir, name), nil
}

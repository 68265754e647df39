package voxlingua

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	tcs := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "bare codes",
			input:    "en\nfr\n\nde\n",
			expected: []string{"en", "fr", "de"},
		},
		{
			name:     "named",
			input:    "en: English\nfr: French\n",
			expected: []string{"en", "fr"},
		},
		{
			name:     "label encoder",
			input:    "'ab: Abkhazian' => 0\n'af: Afrikaans' => 1\n================\n'starting_index' => 0\n",
			expected: []string{"ab", "af"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			codes, err := parseLabels(strings.NewReader(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.expected, codes)
		})
	}
}

func TestLoadVocabulary(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		vocab, err := loadVocabulary("")
		require.NoError(t, err)
		require.Equal(t, 107, vocab.Len())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.txt")
		require.NoError(t, os.WriteFile(path, []byte("en: English\nes: Spanish\n"), 0600))
		vocab, err := loadVocabulary(path)
		require.NoError(t, err)
		require.Equal(t, []string{"en", "es"}, vocab.Codes())
	})

	t.Run("duplicates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.txt")
		require.NoError(t, os.WriteFile(path, []byte("en\nen\n"), 0600))
		_, err := loadVocabulary(path)
		require.Error(t, err)
	})
}

func TestFilterbank(t *testing.T) {
	fb := newFilterbank(sampleRate)

	samples := make([]float32, sampleRate)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}

	feats, frames := fb.extract(samples)
	require.Equal(t, 101, frames)
	require.Len(t, feats, frames*fbankNumMels)

	for m := 0; m < fbankNumMels; m++ {
		var sum float64
		for i := 0; i < frames; i++ {
			sum += float64(feats[i*fbankNumMels+m])
		}
		require.InDelta(t, 0, sum/float64(frames), 1e-3)
	}

	feats, frames = fb.extract(nil)
	require.Zero(t, frames)
	require.Empty(t, feats)

	_, frames = fb.extract([]float32{0.1})
	require.Equal(t, 1, frames)
}

func TestReflectPad(t *testing.T) {
	require.Equal(t, []float64{3, 2, 1, 2, 3, 2, 1}, reflectPad([]float32{1, 2, 3}, 2))
	require.Equal(t, []float64{1, 1, 1}, reflectPad([]float32{1}, 1))
}

func TestMelFilterBank(t *testing.T) {
	bank := melFilterBank(fbankNumMels, fbankFFTSize, sampleRate, 0, sampleRate/2)
	require.Len(t, bank, fbankNumMels)
	for _, filter := range bank {
		require.Len(t, filter, fbankFFTSize/2+1)
		for _, w := range filter {
			require.GreaterOrEqual(t, w, 0.0)
			require.LessOrEqual(t, w, 1.0)
		}
	}
}

func TestArgmax(t *testing.T) {
	require.Equal(t, -1, argmax(nil))
	require.Equal(t, 1, argmax([]float32{-3, -0.1, -2}))
}

func TestConfigIsValid(t *testing.T) {
	modelFile := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(modelFile, []byte{0}, 0600))

	tcs := []struct {
		name          string
		cfg           Config
		expectedError string
	}{
		{
			name:          "empty",
			cfg:           Config{},
			expectedError: "invalid empty config",
		},
		{
			name:          "missing model file",
			cfg:           Config{NumThreads: 1},
			expectedError: "invalid ModelFile: should not be empty",
		},
		{
			name:          "missing labels file",
			cfg:           Config{ModelFile: modelFile, LabelsFile: modelFile + ".missing", NumThreads: 1},
			expectedError: "invalid LabelsFile: failed to stat labels file: stat " + modelFile + ".missing: no such file or directory",
		},
		{
			name: "valid",
			cfg:  Config{ModelFile: modelFile, NumThreads: 1},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.IsValid()
			if tc.expectedError == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tc.expectedError)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	dir := os.Getenv("MODELS_DIR")
	if dir == "" {
		t.Skip("MODELS_DIR is not set")
	}
	modelFile := filepath.Join(dir, "voxlingua107-ecapa.onnx")
	if _, err := os.Stat(modelFile); err != nil {
		t.Skipf("model not found: %s", modelFile)
	}

	c, err := NewClassifier(Config{
		ModelFile:      modelFile,
		RuntimeLibrary: os.Getenv("ONNXRUNTIME_LIB"),
		NumThreads:     1,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, c.Destroy())
	}()

	samples := make([]float32, sampleRate*3)
	for i := range samples {
		samples[i] = float32(0.1 * math.Sin(float64(i)/7))
	}

	res, err := c.Classify(context.Background(), samples, sampleRate)
	require.NoError(t, err)
	require.Equal(t, lid.KindTensor, res.Raw.Kind)

	scores, err := lid.Normalize(res.Raw, c.Vocabulary())
	require.NoError(t, err)
	require.Len(t, scores, c.Vocabulary().Len())
	require.Equal(t, res.Label, scores[0].Label)

	_, err = c.Classify(context.Background(), samples, 8000)
	require.EqualError(t, err, "unsupported sample rate 8000")
}

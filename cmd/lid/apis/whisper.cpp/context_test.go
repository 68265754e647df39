package whisper

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	"github.com/stretchr/testify/require"
)

func getModelPath(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("MODELS_DIR")
	if dir == "" {
		t.Skip("MODELS_DIR is not set")
	}
	path, err := ModelFile(dir, "tiny")
	require.NoError(t, err)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model not found: %s", path)
	}
	return path
}

func TestModelFile(t *testing.T) {
	path, err := ModelFile("/models", "turbo")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/models", "ggml-large-v3-turbo.bin"), path)

	_, err = ModelFile("/models", "huge")
	require.EqualError(t, err, `unknown model size "huge"`)
}

func TestConfigIsValid(t *testing.T) {
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
			name:          "invalid threads",
			cfg:           Config{ModelFile: os.Args[0]},
			expectedError: "invalid NumThreads: should be in the range [1, " + strconv.Itoa(runtime.NumCPU()) + "]",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.EqualError(t, tc.cfg.IsValid(), tc.expectedError)
		})
	}
}

func TestLanguageCodes(t *testing.T) {
	codes := languageCodes()
	require.Greater(t, len(codes), 90)
	require.Equal(t, "en", codes[0])
	require.Contains(t, codes, "fr")

	vocab, err := lid.NewVocabulary(codes)
	require.NoError(t, err)
	require.Equal(t, len(codes), vocab.Len())
}

func TestPadOrTrim(t *testing.T) {
	require.Equal(t, []float32{1, 2, 0, 0}, padOrTrim([]float32{1, 2}, 4))
	require.Equal(t, []float32{1, 2}, padOrTrim([]float32{1, 2, 3}, 2))
	require.Len(t, padOrTrim(nil, 10), 10)
}

func TestClassify(t *testing.T) {
	c, err := NewContext(Config{
		ModelFile:  getModelPath(t),
		NumThreads: 1,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, c.Destroy())
	}()

	require.True(t, c.Vocabulary().Contains("en"))

	samples := make([]float32, 16000*5)
	for i := range samples {
		samples[i] = float32(0.1 * math.Sin(float64(i)/10))
	}

	res, err := c.Classify(context.Background(), samples, 16000)
	require.NoError(t, err)
	require.Equal(t, lid.KindDense, res.Raw.Kind)

	scores, err := lid.Normalize(res.Raw, c.Vocabulary())
	require.NoError(t, err)
	require.Equal(t, c.Vocabulary().Len(), len(scores))
	require.Equal(t, res.Label, scores[0].Label)

	_, err = c.Classify(context.Background(), nil, 16000)
	require.EqualError(t, err, "samples should not be empty")
}

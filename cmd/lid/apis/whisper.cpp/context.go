package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go"
)

// The language head always looks at 30 seconds of audio.
const inputSeconds = 30

type Config struct {
	// The path to the GGML model file to use.
	ModelFile string
	// The number of system threads to use for inference.
	NumThreads int
}

func (c Config) IsValid() error {
	if c == (Config{}) {
		return fmt.Errorf("invalid empty config")
	}

	if c.ModelFile == "" {
		return fmt.Errorf("invalid ModelFile: should not be empty")
	}

	if _, err := os.Stat(c.ModelFile); err != nil {
		return fmt.Errorf("invalid ModelFile: failed to stat model file: %w", err)
	}

	if numCPU := runtime.NumCPU(); c.NumThreads == 0 || c.NumThreads > numCPU {
		return fmt.Errorf("invalid NumThreads: should be in the range [1, %d]", numCPU)
	}

	return nil
}

// Context identifies languages with the language detection head of a
// multilingual whisper model.
type Context struct {
	cfg   Config
	ctx   *whisper.Context
	vocab lid.Vocabulary
	mut   sync.Mutex
}

func NewContext(cfg Config) (*Context, error) {
	var c Context

	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	c.cfg = cfg

	slog.Debug("creating whisper context", slog.Any("cfg", cfg))

	c.ctx = whisper.Whisper_init(cfg.ModelFile)
	if c.ctx == nil {
		return nil, fmt.Errorf("failed to load model file")
	}

	if c.ctx.Whisper_is_multilingual() == 0 {
		c.ctx.Whisper_free()
		return nil, fmt.Errorf("model %q is not multilingual", cfg.ModelFile)
	}

	vocab, err := lid.NewVocabulary(languageCodes())
	if err != nil {
		c.ctx.Whisper_free()
		return nil, fmt.Errorf("failed to build vocabulary: %w", err)
	}
	c.vocab = vocab

	return &c, nil
}

func (c *Context) Destroy() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.ctx == nil {
		return fmt.Errorf("context is not initialized")
	}
	c.ctx.Whisper_free()
	c.ctx = nil
	return nil
}

func (c *Context) Vocabulary() lid.Vocabulary {
	return c.vocab
}

// languageCodes returns the language table of the library, indexed by
// language id.
func languageCodes() []string {
	codes := make([]string, whisper.Whisper_lang_max_id()+1)
	for i := range codes {
		codes[i] = whisper.Whisper_lang_str(i)
	}
	return codes
}

// padOrTrim returns exactly n samples, zero padded at the end if needed.
func padOrTrim(samples []float32, n int) []float32 {
	if len(samples) == n {
		return samples
	}
	out := make([]float32, n)
	copy(out, samples)
	return out
}

func (c *Context) Classify(ctx context.Context, samples []float32, sampleRate int) (lid.Result, error) {
	if len(samples) == 0 {
		return lid.Result{}, fmt.Errorf("samples should not be empty")
	}
	if sampleRate != int(whisper.SampleRate) {
		return lid.Result{}, fmt.Errorf("unsupported sample rate %d", sampleRate)
	}
	if err := ctx.Err(); err != nil {
		return lid.Result{}, err
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.ctx == nil {
		return lid.Result{}, fmt.Errorf("context is not initialized")
	}

	input := padOrTrim(samples, inputSeconds*sampleRate)
	if err := c.ctx.Whisper_pcm_to_mel(input, c.cfg.NumThreads); err != nil {
		return lid.Result{}, fmt.Errorf("failed to compute mel spectrogram: %w", err)
	}

	probs, err := c.ctx.Whisper_lang_auto_detect(0, c.cfg.NumThreads)
	if err != nil {
		return lid.Result{}, fmt.Errorf("language detection failed: %w", err)
	}

	dense := make([]float64, len(probs))
	best := 0
	for i, p := range probs {
		dense[i] = float64(p)
		if p > probs[best] {
			best = i
		}
	}

	res := lid.Result{Raw: lid.Dense(dense)}
	if best < c.vocab.Len() {
		res.Label = c.vocab.Code(best)
	}

	return res, nil
}

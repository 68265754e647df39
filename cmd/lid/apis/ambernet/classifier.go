package ambernet

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/audio"
	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
)

//go:embed ambernet.py
var helperScript []byte

const (
	sampleRate          = 16000
	minWindow           = time.Second
	defaultModel        = "langid_ambernet"
	startTimeoutDefault = 10 * time.Minute
)

type Config struct {
	// The directory the helper script is written to.
	ScriptDir string
	// The python interpreter with NeMo installed.
	PythonPath string
	// The pretrained model name.
	Model string
	// One of cpu, cuda or auto.
	Device string
	// The directory temporary WAV files are written to. The system default
	// is used if empty.
	TempDir string
	// Extra environment variables passed to the helper.
	Env map[string]string
	// How long to wait for the helper to load the model.
	StartTimeout time.Duration
}

func (c Config) IsValid() error {
	if c.ScriptDir == "" {
		return fmt.Errorf("invalid ScriptDir: should not be empty")
	}

	if c.PythonPath == "" {
		return fmt.Errorf("invalid PythonPath: should not be empty")
	}

	if c.StartTimeout < 0 {
		return fmt.Errorf("invalid StartTimeout: should not be negative")
	}

	switch c.Device {
	case "", "cpu", "cuda", "auto":
	default:
		return fmt.Errorf("invalid Device: should be one of cpu, cuda, auto")
	}

	return nil
}

// Classifier identifies languages with AmberNet through a python helper
// process. The helper loads the model once and serves every window, each
// handed over as a temporary WAV file.
type Classifier struct {
	cfg        Config
	scriptPath string
	vocab      lid.Vocabulary

	mut    sync.Mutex
	helper *helper
}

func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Device == "" {
		cfg.Device = "auto"
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = startTimeoutDefault
	}

	if err := os.MkdirAll(cfg.ScriptDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create script directory: %w", err)
	}

	scriptPath := filepath.Join(cfg.ScriptDir, "ambernet.py")
	if err := ensureScript(scriptPath); err != nil {
		return nil, err
	}

	vocab, err := lid.NewVocabulary(lid.VoxLingua107)
	if err != nil {
		return nil, fmt.Errorf("failed to build vocabulary: %w", err)
	}

	c := &Classifier{
		cfg:        cfg,
		scriptPath: scriptPath,
		vocab:      vocab,
	}

	c.helper, err = startHelper(cfg, scriptPath)
	if err != nil {
		return nil, err
	}

	slog.Debug("created ambernet classifier", slog.String("script", scriptPath), slog.String("model", cfg.Model))

	return c, nil
}

func ensureScript(path string) error {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, helperScript) {
		return nil
	}
	if err := os.WriteFile(path, helperScript, 0644); err != nil {
		return fmt.Errorf("failed to write helper script: %w", err)
	}
	return nil
}

func (c *Classifier) Vocabulary() lid.Vocabulary {
	return c.vocab
}

func (c *Classifier) MinWindow() time.Duration {
	return minWindow
}

func (c *Classifier) Destroy() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.scriptPath == "" {
		return fmt.Errorf("classifier is not initialized")
	}
	c.scriptPath = ""

	if c.helper == nil {
		return nil
	}
	err := c.helper.stop()
	c.helper = nil
	return err
}

func (c *Classifier) Classify(ctx context.Context, samples []float32, rate int) (lid.Result, error) {
	if len(samples) == 0 {
		return lid.Result{}, fmt.Errorf("samples should not be empty")
	}
	if rate != sampleRate {
		return lid.Result{}, fmt.Errorf("unsupported sample rate %d", rate)
	}
	if err := ctx.Err(); err != nil {
		return lid.Result{}, err
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.scriptPath == "" {
		return lid.Result{}, fmt.Errorf("classifier is not initialized")
	}

	wavPath, release, err := audio.TempWAV(c.cfg.TempDir, samples, rate)
	if err != nil {
		return lid.Result{}, fmt.Errorf("failed to write window: %w", err)
	}
	defer release()

	res, err := c.request(ctx, "logits", wavPath)
	if err == nil {
		if len(res.Logits) == 0 {
			err = fmt.Errorf("helper returned no logits")
		} else {
			out := lid.Result{
				Raw: lid.FromTensor([]int64{int64(len(res.Logits))}, res.Logits).WithTransform(lid.TransformSoftmax),
			}
			if best := argmax(res.Logits); best < c.vocab.Len() {
				out.Label = c.vocab.Code(best)
			}
			return out, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return lid.Result{}, ctxErr
	}

	slog.Debug("falling back to label mode", slog.String("err", err.Error()))

	res, err = c.request(ctx, "label", wavPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return lid.Result{}, ctxErr
		}
		return lid.Result{}, fmt.Errorf("%w: %w", lid.ErrInference, err)
	}

	return lid.DegradedResult(res.Label, c.vocab)
}

// request sends a single request to the helper, starting a new one if the
// previous process is gone. A helper that fails to answer is stopped. Must be
// called with mut held.
func (c *Classifier) request(ctx context.Context, mode, wavPath string) (helperResult, error) {
	if c.helper == nil {
		h, err := startHelper(c.cfg, c.scriptPath)
		if err != nil {
			return helperResult{}, err
		}
		c.helper = h
	}

	res, err := c.helper.call(ctx, &helperRequest{Mode: mode, WAV: wavPath})
	if err != nil {
		if stopErr := c.helper.stop(); stopErr != nil {
			slog.Debug("helper stopped with error", slog.String("err", stopErr.Error()))
		}
		c.helper = nil
		return helperResult{}, err
	}
	if res.Error != "" {
		return helperResult{}, errors.New(res.Error)
	}

	return res, nil
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

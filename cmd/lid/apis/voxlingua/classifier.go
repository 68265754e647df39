package voxlingua

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sampleRate = 16000
	inputName  = "feats"
	outputName = "logprobs"
)

type Config struct {
	// The path to the exported ECAPA-TDNN model.
	ModelFile string
	// An optional labels file. The VoxLingua107 ordering is used if empty.
	LabelsFile string
	// The path to the onnxruntime shared library. The default lookup is used
	// if empty.
	RuntimeLibrary string
	NumThreads     int
	UseGPU         bool
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

	if c.LabelsFile != "" {
		if _, err := os.Stat(c.LabelsFile); err != nil {
			return fmt.Errorf("invalid LabelsFile: failed to stat labels file: %w", err)
		}
	}

	if numCPU := runtime.NumCPU(); c.NumThreads <= 0 || c.NumThreads > numCPU {
		return fmt.Errorf("invalid NumThreads: should be in the range [1, %d]", numCPU)
	}

	return nil
}

var (
	envMut  sync.Mutex
	envRefs int
)

func acquireEnvironment(libPath string) error {
	envMut.Lock()
	defer envMut.Unlock()

	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}
	envRefs++

	return nil
}

func releaseEnvironment() error {
	envMut.Lock()
	defer envMut.Unlock()

	envRefs--
	if envRefs > 0 {
		return nil
	}
	envRefs = 0

	return ort.DestroyEnvironment()
}

// Classifier runs an ECAPA-TDNN language identification model trained on
// VoxLingua107.
type Classifier struct {
	cfg     Config
	session *ort.DynamicAdvancedSession
	fbank   *filterbank
	vocab   lid.Vocabulary
	mut     sync.Mutex
}

func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	vocab, err := loadVocabulary(cfg.LabelsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	slog.Debug("creating voxlingua classifier", slog.Any("cfg", cfg), slog.Int("languages", vocab.Len()))

	if err := acquireEnvironment(cfg.RuntimeLibrary); err != nil {
		return nil, err
	}

	session, err := newSession(cfg)
	if err != nil {
		if err := releaseEnvironment(); err != nil {
			slog.Error("failed to release onnxruntime", slog.String("err", err.Error()))
		}
		return nil, err
	}

	return &Classifier{
		cfg:     cfg,
		session: session,
		fbank:   newFilterbank(sampleRate),
		vocab:   vocab,
	}, nil
}

func newSession(cfg Config) (*ort.DynamicAdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	if cfg.UseGPU {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("failed to enable CUDA: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelFile, []string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (c *Classifier) Destroy() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.session == nil {
		return fmt.Errorf("classifier is not initialized")
	}

	if err := c.session.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	c.session = nil

	return releaseEnvironment()
}

func (c *Classifier) Vocabulary() lid.Vocabulary {
	return c.vocab
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

	if c.session == nil {
		return lid.Result{}, fmt.Errorf("classifier is not initialized")
	}

	feats, frames := c.fbank.extract(samples)

	input, err := ort.NewTensor(ort.NewShape(1, int64(frames), fbankNumMels), feats)
	if err != nil {
		return lid.Result{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := c.session.Run([]ort.Value{input}, outputs); err != nil {
		return lid.Result{}, fmt.Errorf("failed to run session: %w", err)
	}
	defer outputs[0].Destroy()

	output, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return lid.Result{}, fmt.Errorf("%w: unexpected output type %T", lid.ErrFormat, outputs[0])
	}

	// The output buffer belongs to the tensor.
	data := append([]float32(nil), output.GetData()...)
	shape := append([]int64(nil), output.GetShape()...)

	res := lid.Result{
		Raw: lid.FromTensor(shape, data).WithTransform(lid.TransformExp),
	}
	if best := argmax(data); best >= 0 && best < c.vocab.Len() && len(data) == c.vocab.Len() {
		res.Label = c.vocab.Code(best)
	}

	return res, nil
}

func argmax(values []float32) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

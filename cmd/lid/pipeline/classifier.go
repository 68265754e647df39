package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/clamsproject/spoken-lid/cmd/lid/apis/ambernet"
	"github.com/clamsproject/spoken-lid/cmd/lid/apis/azure"
	"github.com/clamsproject/spoken-lid/cmd/lid/apis/remote"
	"github.com/clamsproject/spoken-lid/cmd/lid/apis/voxlingua"
	whisper "github.com/clamsproject/spoken-lid/cmd/lid/apis/whisper.cpp"
	"github.com/clamsproject/spoken-lid/cmd/lid/audio"
	"github.com/clamsproject/spoken-lid/cmd/lid/config"
	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
	"github.com/clamsproject/spoken-lid/cmd/lid/vad"
)

const (
	voxlinguaModelFile  = "voxlingua107-ecapa.onnx"
	voxlinguaLabelsFile = "labels.txt"
	onnxRuntimeLibrary  = "libonnxruntime.so"
	vadModelFile        = "silero_vad.onnx"
)

// NewClassifier creates the classifier for the configured backend. The
// caller owns it and is responsible for calling Destroy.
func NewClassifier(cfg config.LIDConfig) (lid.Classifier, error) {
	switch cfg.Backend {
	case config.BackendWhisperCPP:
		modelFile, err := whisper.ModelFile(cfg.ModelsDir, string(cfg.ModelSize))
		if err != nil {
			return nil, err
		}
		c, err := whisper.NewContext(whisper.Config{
			ModelFile:  modelFile,
			NumThreads: cfg.NumThreads,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendVoxLingua:
		c, err := voxlingua.NewClassifier(voxlingua.Config{
			ModelFile:      filepath.Join(cfg.ModelsDir, voxlinguaModelFile),
			LabelsFile:     existingFile(filepath.Join(cfg.ModelsDir, voxlinguaLabelsFile)),
			RuntimeLibrary: existingFile(filepath.Join(cfg.ModelsDir, onnxRuntimeLibrary)),
			NumThreads:     cfg.NumThreads,
			UseGPU:         cfg.Device == config.DeviceGPU,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendAmberNet:
		c, err := ambernet.NewClassifier(ambernet.Config{
			ScriptDir:  filepath.Join(os.TempDir(), "spoken-lid"),
			PythonPath: cfg.PythonPath,
			Device:     torchDevice(cfg.Device),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendAzure:
		c, err := azure.NewLanguageIdentifier(azure.LanguageIdentifierConfig{
			SpeechKey:    cfg.AzureSpeechKey,
			SpeechRegion: cfg.AzureSpeechRegion,
			Languages:    cfg.Languages(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendRemote:
		c, err := remote.NewClient(remote.Config{
			URL: cfg.RemoteURL,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// NewGate returns the speech gate if enabled. The returned release function
// is always safe to call.
func NewGate(cfg config.LIDConfig) (lid.Gate, func(), error) {
	if !cfg.VAD {
		return nil, func() {}, nil
	}

	gate, err := vad.NewGate(vad.Config{
		ModelPath:  filepath.Join(cfg.ModelsDir, vadModelFile),
		SampleRate: audio.SampleRate,
		Threshold:  cfg.VADThreshold,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create speech gate: %w", err)
	}

	return gate, func() {
		if err := gate.Destroy(); err != nil {
			logDestroyError("speech gate", err)
		}
	}, nil
}

func existingFile(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func torchDevice(d config.Device) string {
	switch d {
	case config.DeviceGPU:
		return "cuda"
	case config.DeviceCPU:
		return "cpu"
	default:
		return "auto"
	}
}

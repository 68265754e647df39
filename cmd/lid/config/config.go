package config

import (
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/clamsproject/spoken-lid/cmd/lid/output"
)

const (
	// defaults
	WindowSecondsDefault       = 30.0
	TopDefault                 = 3
	BackendDefault             = BackendWhisperCPP
	ModelSizeDefault           = ModelSizeTiny
	DeviceDefault              = DeviceAuto
	ModelsDirDefault           = "./models"
	FallbackProbabilityDefault = 0.95
	VADThresholdDefault        = 0.5
	ScoresPropertyDefault      = ScoresPropertyClassification
	OutputFormatDefault        = OutputFormatMMIF
	PythonPathDefault          = "python3"
	LogLevelDefault            = "info"
)

type OutputFormat string

const (
	OutputFormatMMIF OutputFormat = "mmif"
	OutputFormatVTT  OutputFormat = "vtt"
	OutputFormatText OutputFormat = "text"
	OutputFormatCSV  OutputFormat = "csv"
)

type ModelSize string

const (
	ModelSizeTiny   ModelSize = "tiny"
	ModelSizeBase   ModelSize = "base"
	ModelSizeSmall  ModelSize = "small"
	ModelSizeMedium ModelSize = "medium"
	ModelSizeLarge  ModelSize = "large"
	ModelSizeTurbo  ModelSize = "turbo"
)

type Backend string

const (
	BackendWhisperCPP Backend = "whisper.cpp"
	BackendVoxLingua  Backend = "voxlingua"
	BackendAmberNet   Backend = "ambernet"
	BackendAzure      Backend = "azure"
	BackendRemote     Backend = "remote"
)

type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceGPU  Device = "gpu"
	DeviceAuto Device = "auto"
)

// ScoresProperty selects the annotation property scores are written to.
type ScoresProperty string

const (
	// A JSON object mapping language to probability.
	ScoresPropertyClassification ScoresProperty = "classification"
	// A list of {"label", "score"} objects.
	ScoresPropertyScores ScoresProperty = "scores"
)

type OutputOptions struct {
	WebVTT output.WebVTTOptions
	Text   output.TextOptions
}

type LIDConfig struct {
	// model config
	Backend    Backend
	ModelSize  ModelSize
	Device     Device
	ModelsDir  string
	NumThreads int
	PythonPath string

	// remote backends
	RemoteURL         string
	AzureSpeechKey    string
	AzureSpeechRegion string
	// Comma separated list of candidate locales, e.g. "en-US,fr-FR".
	AzureLanguages string

	// classification config
	WindowSeconds       float64
	Top                 int
	FallbackProbability float64
	MinWindowMs         int
	VAD                 bool
	VADThreshold        float64

	// output config
	ScoresProperty ScoresProperty
	OutputFormat   OutputFormat
	OutputOptions  OutputOptions
	LogLevel       string
}

func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatMMIF, OutputFormatVTT, OutputFormatText, OutputFormatCSV:
		return true
	default:
		return false
	}
}

func (p ModelSize) IsValid() bool {
	switch p {
	case ModelSizeTiny, ModelSizeBase, ModelSizeSmall, ModelSizeMedium, ModelSizeLarge, ModelSizeTurbo:
		return true
	default:
		return false
	}
}

func (b Backend) IsValid() bool {
	switch b {
	case BackendWhisperCPP, BackendVoxLingua, BackendAmberNet, BackendAzure, BackendRemote:
		return true
	default:
		return false
	}
}

func (d Device) IsValid() bool {
	switch d {
	case DeviceCPU, DeviceGPU, DeviceAuto:
		return true
	default:
		return false
	}
}

func (p ScoresProperty) IsValid() bool {
	switch p {
	case ScoresPropertyClassification, ScoresPropertyScores:
		return true
	default:
		return false
	}
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func (cfg LIDConfig) IsValid() error {
	if cfg == (LIDConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	if !cfg.Backend.IsValid() {
		return fmt.Errorf("Backend value is not valid")
	}
	if !cfg.ModelSize.IsValid() {
		return fmt.Errorf("ModelSize value is not valid")
	}
	if !cfg.Device.IsValid() {
		return fmt.Errorf("Device value is not valid")
	}
	if numCPU := runtime.NumCPU(); cfg.NumThreads < 1 || cfg.NumThreads > numCPU {
		return fmt.Errorf("NumThreads should be in the range [1, %d]", numCPU)
	}

	if cfg.WindowSeconds <= 0 {
		return fmt.Errorf("WindowSeconds should be a positive number")
	}
	if cfg.Top < 1 {
		return fmt.Errorf("Top should be a positive number")
	}
	if cfg.FallbackProbability <= 0.5 || cfg.FallbackProbability > 1 {
		return fmt.Errorf("FallbackProbability should be in the range (0.5, 1]")
	}
	if cfg.MinWindowMs < 0 {
		return fmt.Errorf("MinWindowMs should not be negative")
	}
	if cfg.VAD && (cfg.VADThreshold <= 0 || cfg.VADThreshold >= 1) {
		return fmt.Errorf("VADThreshold should be in the range (0, 1)")
	}

	switch cfg.Backend {
	case BackendWhisperCPP, BackendVoxLingua:
		if cfg.ModelsDir == "" {
			return fmt.Errorf("ModelsDir cannot be empty")
		}
	case BackendAmberNet:
		if cfg.PythonPath == "" {
			return fmt.Errorf("PythonPath cannot be empty")
		}
	case BackendAzure:
		if cfg.AzureSpeechKey == "" {
			return fmt.Errorf("AzureSpeechKey cannot be empty")
		}
		if cfg.AzureSpeechRegion == "" {
			return fmt.Errorf("AzureSpeechRegion cannot be empty")
		}
		if cfg.AzureLanguages == "" {
			return fmt.Errorf("AzureLanguages cannot be empty")
		}
	case BackendRemote:
		if cfg.RemoteURL == "" {
			return fmt.Errorf("RemoteURL cannot be empty")
		}
		u, err := url.Parse(cfg.RemoteURL)
		if err != nil {
			return fmt.Errorf("RemoteURL parsing failed: %w", err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("RemoteURL parsing failed: invalid scheme %q", u.Scheme)
		}
	}

	if !cfg.ScoresProperty.IsValid() {
		return fmt.Errorf("ScoresProperty value is not valid")
	}
	if !cfg.OutputFormat.IsValid() {
		return fmt.Errorf("OutputFormat value is not valid")
	}
	if !isValidLogLevel(cfg.LogLevel) {
		return fmt.Errorf("LogLevel value is not valid")
	}

	return cfg.OutputOptions.Text.IsValid()
}

func (cfg *LIDConfig) SetDefaults() {
	if cfg.Backend == "" {
		cfg.Backend = BackendDefault
	}

	if cfg.ModelSize == "" {
		cfg.ModelSize = ModelSizeDefault
	}

	if cfg.Device == "" {
		cfg.Device = DeviceDefault
	}

	if cfg.ModelsDir == "" {
		cfg.ModelsDir = ModelsDirDefault
	}

	if cfg.NumThreads == 0 {
		cfg.NumThreads = max(1, runtime.NumCPU()/2)
	}

	if cfg.PythonPath == "" {
		cfg.PythonPath = PythonPathDefault
	}

	if cfg.WindowSeconds == 0 {
		cfg.WindowSeconds = WindowSecondsDefault
	}

	if cfg.Top == 0 {
		cfg.Top = TopDefault
	}

	if cfg.FallbackProbability == 0 {
		cfg.FallbackProbability = FallbackProbabilityDefault
	}

	if cfg.VADThreshold == 0 {
		cfg.VADThreshold = VADThresholdDefault
	}

	if cfg.ScoresProperty == "" {
		cfg.ScoresProperty = ScoresPropertyDefault
	}

	if cfg.OutputFormat == "" {
		cfg.OutputFormat = OutputFormatDefault
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = LogLevelDefault
	}

	if cfg.OutputOptions.WebVTT.IsEmpty() {
		cfg.OutputOptions.WebVTT.SetDefaults()
	}

	if cfg.OutputOptions.Text.IsEmpty() {
		cfg.OutputOptions.Text.SetDefaults()
	}
}

// Languages returns the parsed list of Azure candidate locales.
func (cfg LIDConfig) Languages() []string {
	var out []string
	for _, l := range strings.Split(cfg.AzureLanguages, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (cfg LIDConfig) ToEnv() []string {
	if cfg == (LIDConfig{}) {
		return nil
	}

	vars := []string{
		fmt.Sprintf("LID_BACKEND=%s", cfg.Backend),
		fmt.Sprintf("LID_MODEL_SIZE=%s", cfg.ModelSize),
		fmt.Sprintf("LID_DEVICE=%s", cfg.Device),
		fmt.Sprintf("MODELS_DIR=%s", cfg.ModelsDir),
		fmt.Sprintf("LID_NUM_THREADS=%d", cfg.NumThreads),
		fmt.Sprintf("LID_PYTHON_PATH=%s", cfg.PythonPath),
		fmt.Sprintf("LID_REMOTE_URL=%s", cfg.RemoteURL),
		fmt.Sprintf("AZURE_SPEECH_KEY=%s", cfg.AzureSpeechKey),
		fmt.Sprintf("AZURE_SPEECH_REGION=%s", cfg.AzureSpeechRegion),
		fmt.Sprintf("AZURE_LANGUAGES=%s", cfg.AzureLanguages),
		fmt.Sprintf("LID_CHUNK=%s", formatFloat(cfg.WindowSeconds)),
		fmt.Sprintf("LID_TOP=%d", cfg.Top),
		fmt.Sprintf("LID_FALLBACK_PROBABILITY=%s", formatFloat(cfg.FallbackProbability)),
		fmt.Sprintf("LID_MIN_WINDOW_MS=%d", cfg.MinWindowMs),
		fmt.Sprintf("LID_VAD=%t", cfg.VAD),
		fmt.Sprintf("LID_VAD_THRESHOLD=%s", formatFloat(cfg.VADThreshold)),
		fmt.Sprintf("LID_SCORES_PROPERTY=%s", cfg.ScoresProperty),
		fmt.Sprintf("LID_OUTPUT_FORMAT=%s", cfg.OutputFormat),
		fmt.Sprintf("LID_LOG_LEVEL=%s", cfg.LogLevel),
	}

	vars = append(vars, cfg.OutputOptions.WebVTT.ToEnv()...)
	vars = append(vars, cfg.OutputOptions.Text.ToEnv()...)

	return vars
}

func (cfg LIDConfig) ToMap() map[string]any {
	if cfg == (LIDConfig{}) {
		return nil
	}

	m := map[string]any{
		"backend":              cfg.Backend,
		"model_size":           cfg.ModelSize,
		"device":               cfg.Device,
		"models_dir":           cfg.ModelsDir,
		"num_threads":          cfg.NumThreads,
		"python_path":          cfg.PythonPath,
		"remote_url":           cfg.RemoteURL,
		"azure_speech_key":     cfg.AzureSpeechKey,
		"azure_speech_region":  cfg.AzureSpeechRegion,
		"azure_languages":      cfg.AzureLanguages,
		"chunk":                cfg.WindowSeconds,
		"top":                  cfg.Top,
		"fallback_probability": cfg.FallbackProbability,
		"min_window_ms":        cfg.MinWindowMs,
		"vad":                  cfg.VAD,
		"vad_threshold":        cfg.VADThreshold,
		"scores_property":      cfg.ScoresProperty,
		"output_format":        cfg.OutputFormat,
		"log_level":            cfg.LogLevel,
	}

	for k, v := range cfg.OutputOptions.WebVTT.ToMap() {
		m[k] = v
	}
	for k, v := range cfg.OutputOptions.Text.ToMap() {
		m[k] = v
	}

	return m
}

// FromMap applies the keys present in m on top of the current values. Values
// can be typed, or plain strings as found in query strings.
func (cfg *LIDConfig) FromMap(m map[string]any) *LIDConfig {
	if v, ok := m["backend"]; ok {
		cfg.Backend = Backend(stringFromAny(v))
	}
	if v, ok := m["model_size"]; ok {
		cfg.ModelSize = ModelSize(stringFromAny(v))
	}
	if v, ok := m["device"]; ok {
		cfg.Device = Device(stringFromAny(v))
	}
	if v, ok := m["scores_property"]; ok {
		cfg.ScoresProperty = ScoresProperty(stringFromAny(v))
	}
	if v, ok := m["output_format"]; ok {
		cfg.OutputFormat = OutputFormat(stringFromAny(v))
	}

	setString(m, "models_dir", &cfg.ModelsDir)
	setString(m, "python_path", &cfg.PythonPath)
	setString(m, "remote_url", &cfg.RemoteURL)
	setString(m, "azure_speech_key", &cfg.AzureSpeechKey)
	setString(m, "azure_speech_region", &cfg.AzureSpeechRegion)
	setString(m, "azure_languages", &cfg.AzureLanguages)
	setString(m, "log_level", &cfg.LogLevel)

	setInt(m, "num_threads", &cfg.NumThreads)
	setInt(m, "top", &cfg.Top)
	setInt(m, "min_window_ms", &cfg.MinWindowMs)

	// window is an older name for chunk. chunk wins when both are set.
	setFloat(m, "window", &cfg.WindowSeconds)
	setFloat(m, "chunk", &cfg.WindowSeconds)
	setFloat(m, "fallback_probability", &cfg.FallbackProbability)
	setFloat(m, "vad_threshold", &cfg.VADThreshold)

	setBool(m, "vad", &cfg.VAD)

	cfg.OutputOptions.WebVTT.FromMap(m)
	cfg.OutputOptions.Text.FromMap(m)

	return cfg
}

func FromEnv() (LIDConfig, error) {
	var cfg LIDConfig

	if val := os.Getenv("LID_BACKEND"); val != "" {
		cfg.Backend = Backend(val)
	}
	if val := os.Getenv("LID_MODEL_SIZE"); val != "" {
		cfg.ModelSize = ModelSize(val)
	}
	if val := os.Getenv("LID_DEVICE"); val != "" {
		cfg.Device = Device(val)
	}
	if val := os.Getenv("LID_SCORES_PROPERTY"); val != "" {
		cfg.ScoresProperty = ScoresProperty(val)
	}
	if val := os.Getenv("LID_OUTPUT_FORMAT"); val != "" {
		cfg.OutputFormat = OutputFormat(val)
	}

	cfg.ModelsDir = os.Getenv("MODELS_DIR")
	cfg.PythonPath = os.Getenv("LID_PYTHON_PATH")
	cfg.RemoteURL = os.Getenv("LID_REMOTE_URL")
	cfg.AzureSpeechKey = os.Getenv("AZURE_SPEECH_KEY")
	cfg.AzureSpeechRegion = os.Getenv("AZURE_SPEECH_REGION")
	cfg.AzureLanguages = os.Getenv("AZURE_LANGUAGES")
	cfg.LogLevel = os.Getenv("LID_LOG_LEVEL")

	var err error
	if cfg.NumThreads, err = envInt("LID_NUM_THREADS"); err != nil {
		return cfg, err
	}
	if cfg.Top, err = envInt("LID_TOP"); err != nil {
		return cfg, err
	}
	if cfg.MinWindowMs, err = envInt("LID_MIN_WINDOW_MS"); err != nil {
		return cfg, err
	}
	if cfg.WindowSeconds, err = envFloat("LID_CHUNK"); err != nil {
		return cfg, err
	}
	if cfg.FallbackProbability, err = envFloat("LID_FALLBACK_PROBABILITY"); err != nil {
		return cfg, err
	}
	if cfg.VADThreshold, err = envFloat("LID_VAD_THRESHOLD"); err != nil {
		return cfg, err
	}
	if val := os.Getenv("LID_VAD"); val != "" {
		if cfg.VAD, err = strconv.ParseBool(val); err != nil {
			return cfg, fmt.Errorf("failed to parse LID_VAD: %w", err)
		}
	}

	cfg.OutputOptions.WebVTT.FromEnv()
	cfg.OutputOptions.Text.FromEnv()

	return cfg, nil
}

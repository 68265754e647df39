package metadata

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/clamsproject/spoken-lid/cmd/lid/config"
	"github.com/clamsproject/spoken-lid/cmd/lid/mmif"
)

// Version is set at build time.
var Version = "v1.0.0"

const (
	Name        = "Spoken Language ID"
	description = "Chunk-level spoken language identification over audio and video documents"
	appURL      = "https://github.com/clamsproject/app-spoken-lid"
	license     = "Apache 2.0"
)

// AppID returns the identifier views produced by this app are signed with.
func AppID() string {
	return fmt.Sprintf("http://apps.clams.ai/spoken-lid/%s", Version)
}

type IOType struct {
	Type       string         `json:"@type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Default     any    `json:"default"`
	Choices     []any  `json:"choices,omitempty"`
	Multivalued bool   `json:"multivalued"`
}

type AppMetadata struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	AppVersion      string      `json:"app_version"`
	MMIFVersion     string      `json:"mmif_version"`
	AnalyzerVersion string      `json:"analyzer_version,omitempty"`
	AppLicense      string      `json:"app_license"`
	Identifier      string      `json:"identifier"`
	URL             string      `json:"url"`
	Input           []any       `json:"input"`
	Output          []IOType    `json:"output"`
	Parameters      []Parameter `json:"parameters"`
}

func analyzerVersion(b config.Backend) string {
	switch b {
	case config.BackendWhisperCPP:
		return "whisper.cpp"
	case config.BackendVoxLingua:
		return "speechbrain/lang-id-voxlingua107-ecapa"
	case config.BackendAmberNet:
		return "nvidia/langid_ambernet"
	case config.BackendAzure:
		return "azure-speech"
	default:
		return ""
	}
}

// New describes the app as configured by cfg. Parameter defaults are taken
// from cfg so that they reflect what a request without parameters runs with.
func New(cfg config.LIDConfig) AppMetadata {
	return AppMetadata{
		Name:            Name,
		Description:     description,
		AppVersion:      Version,
		MMIFVersion:     mmif.SpecVersion,
		AnalyzerVersion: analyzerVersion(cfg.Backend),
		AppLicense:      license,
		Identifier:      AppID(),
		URL:             appURL,
		Input: []any{
			// One of.
			[]IOType{
				{Type: mmif.AudioDocument},
				{Type: mmif.VideoDocument},
			},
		},
		Output: []IOType{
			{
				Type:       mmif.TimeFrame,
				Properties: map[string]any{"timeUnit": "milliseconds"},
			},
		},
		Parameters: parameters(cfg),
	}
}

func parameters(cfg config.LIDConfig) []Parameter {
	return []Parameter{
		{
			Name:        "chunk",
			Description: "Window length in seconds",
			Type:        "number",
			Default:     cfg.WindowSeconds,
		},
		{
			Name:        "top",
			Description: "Number of top language scores kept per window",
			Type:        "integer",
			Default:     cfg.Top,
		},
		{
			Name:        "model_size",
			Description: "Whisper model size",
			Type:        "string",
			Default:     string(cfg.ModelSize),
			Choices: []any{
				string(config.ModelSizeTiny), string(config.ModelSizeBase), string(config.ModelSizeSmall),
				string(config.ModelSizeMedium), string(config.ModelSizeLarge), string(config.ModelSizeTurbo),
			},
		},
		{
			Name:        "device",
			Description: "Device inference runs on",
			Type:        "string",
			Default:     string(cfg.Device),
			Choices:     []any{string(config.DeviceCPU), string(config.DeviceGPU), string(config.DeviceAuto)},
		},
		{
			Name:        "fallback_probability",
			Description: "Probability given to the predicted label when a backend can only return a label",
			Type:        "number",
			Default:     cfg.FallbackProbability,
		},
		{
			Name:        "min_window_ms",
			Description: "Windows shorter than this are skipped",
			Type:        "integer",
			Default:     cfg.MinWindowMs,
		},
		{
			Name:        "vad",
			Description: "Skip windows without detected speech",
			Type:        "boolean",
			Default:     cfg.VAD,
		},
		{
			Name:        "scores_property",
			Description: "Annotation property scores are written to",
			Type:        "string",
			Default:     string(cfg.ScoresProperty),
			Choices:     []any{string(config.ScoresPropertyClassification), string(config.ScoresPropertyScores)},
		},
		{
			Name:        "pretty",
			Description: "Pretty print the output MMIF",
			Type:        "boolean",
			Default:     false,
		},
	}
}

func (m AppMetadata) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return nil
}

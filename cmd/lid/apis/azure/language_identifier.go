package azure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/audio"
	"github.com/clamsproject/spoken-lid/cmd/lid/lid"

	sdkaudio "github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
)

const (
	audioSampleRate = 16000
	// At-start identification accepts at most this many candidates.
	maxCandidates = 4
)

var recognitionTimeout = 30 * time.Second

type LanguageIdentifierConfig struct {
	SpeechKey    string
	SpeechRegion string
	// Candidate locales, e.g. en-US, fr-FR.
	Languages []string
}

func (c LanguageIdentifierConfig) IsValid() error {
	if c.SpeechKey == "" {
		return fmt.Errorf("invalid SpeechKey: should not be empty")
	}

	if c.SpeechRegion == "" {
		return fmt.Errorf("invalid SpeechRegion: should not be empty")
	}

	if len(c.Languages) == 0 || len(c.Languages) > maxCandidates {
		return fmt.Errorf("invalid Languages: should contain between 1 and %d locales", maxCandidates)
	}

	for _, l := range c.Languages {
		if localeToCode(l) == "" {
			return fmt.Errorf("invalid Languages: %q is not a valid locale", l)
		}
	}

	return nil
}

// LanguageIdentifier uses Azure Speech at-start language identification.
// The service only reports the detected locale so results are always
// degraded.
type LanguageIdentifier struct {
	cfg   LanguageIdentifierConfig
	vocab lid.Vocabulary
}

func NewLanguageIdentifier(cfg LanguageIdentifierConfig) (*LanguageIdentifier, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	vocab, err := vocabularyFromLocales(cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("failed to build vocabulary: %w", err)
	}

	return &LanguageIdentifier{
		cfg:   cfg,
		vocab: vocab,
	}, nil
}

// localeToCode returns the lowercase language subtag of a locale, e.g. "en"
// for "en-US".
func localeToCode(locale string) string {
	locale = strings.TrimSpace(locale)
	if idx := strings.IndexAny(locale, "-_"); idx >= 0 {
		locale = locale[:idx]
	}
	return strings.ToLower(locale)
}

func vocabularyFromLocales(locales []string) (lid.Vocabulary, error) {
	seen := make(map[string]bool, len(locales))
	var codes []string
	for _, l := range locales {
		code := localeToCode(l)
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return lid.NewVocabulary(codes)
}

func (s *LanguageIdentifier) Vocabulary() lid.Vocabulary {
	return s.vocab
}

func (s *LanguageIdentifier) Classify(ctx context.Context, samples []float32, sampleRate int) (lid.Result, error) {
	if len(samples) == 0 {
		return lid.Result{}, fmt.Errorf("samples should not be empty")
	}
	if sampleRate != audioSampleRate {
		return lid.Result{}, fmt.Errorf("unsupported sample rate %d", sampleRate)
	}

	locale, err := s.detect(ctx, samples, sampleRate)
	if err != nil {
		return lid.Result{}, err
	}

	return lid.DegradedResult(localeToCode(locale), s.vocab)
}

func (s *LanguageIdentifier) detect(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	cfg, err := speech.NewSpeechConfigFromSubscription(s.cfg.SpeechKey, s.cfg.SpeechRegion)
	if err != nil {
		return "", fmt.Errorf("failed to create speech config: %w", err)
	}
	defer cfg.Close()

	langCfg, err := speech.NewAutoDetectSourceLanguageConfigFromLanguages(s.cfg.Languages)
	if err != nil {
		return "", fmt.Errorf("failed to create language config: %w", err)
	}
	defer langCfg.Close()

	stream, err := sdkaudio.CreatePushAudioInputStream()
	if err != nil {
		return "", fmt.Errorf("failed to create audio stream: %w", err)
	}
	defer stream.Close()

	audioConfig, err := sdkaudio.NewAudioConfigFromStreamInput(stream)
	if err != nil {
		return "", fmt.Errorf("failed to create audio config: %w", err)
	}
	defer audioConfig.Close()

	recognizer, err := speech.NewSpeechRecognizerFomAutoDetectSourceLangConfig(cfg, langCfg, audioConfig)
	if err != nil {
		return "", fmt.Errorf("failed to create speech recognizer: %w", err)
	}
	defer recognizer.Close()

	recognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		slog.Info("language identification canceled", slog.String("details", event.ErrorDetails))
	})

	if err := stream.Write(audio.EncodeWAV(samples, sampleRate)); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	// Flushes out any remaining audio data.
	stream.CloseStream()

	select {
	case outcome := <-recognizer.RecognizeOnceAsync():
		defer outcome.Close()
		if outcome.Error != nil {
			return "", fmt.Errorf("%w: %w", lid.ErrInference, outcome.Error)
		}
		if outcome.Result.Reason == common.Canceled {
			return "", fmt.Errorf("%w: recognition canceled", lid.ErrInference)
		}
		return outcome.Result.Properties.GetProperty(common.SpeechServiceConnectionAutoDetectSourceLanguageResult, ""), nil
	case <-time.After(recognitionTimeout):
		return "", fmt.Errorf("%w: timed out waiting for identification", lid.ErrInference)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *LanguageIdentifier) Destroy() error {
	return nil
}

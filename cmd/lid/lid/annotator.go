package lid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/chunk"
)

const (
	FallbackProbabilityDefault = 0.95
)

type Options struct {
	// Window length in seconds.
	WindowSeconds float64
	// Number of languages kept per window.
	Top int
	// Probability assigned to the predicted label in degraded mode.
	FallbackProbability float64
	// Windows shorter than this are skipped. Zero means no limit besides
	// the classifier's own.
	MinWindow time.Duration
	// Optional speech gate. Windows without speech are skipped.
	Gate Gate
}

func (o Options) IsValid() error {
	if o.WindowSeconds <= 0 {
		return fmt.Errorf("WindowSeconds should be a positive number")
	}
	if o.Top < 1 {
		return fmt.Errorf("Top should be a positive number")
	}
	if o.FallbackProbability <= 0.5 || o.FallbackProbability > 1 {
		return fmt.Errorf("FallbackProbability should be in the range (0.5, 1]")
	}
	if o.MinWindow < 0 {
		return fmt.Errorf("MinWindow should not be negative")
	}
	return nil
}

// Annotation is the result for a single window.
type Annotation struct {
	StartMs int64
	EndMs   int64
	Label   string
	Scores  Scores
}

type Stats struct {
	Windows   int
	Annotated int
	Degraded  int
	TooShort  int
	Silent    int
	Empty     int
	Failed    int
}

func (s Stats) Skipped() int {
	return s.TooShort + s.Silent + s.Empty + s.Failed
}

// Annotator runs a classifier over consecutive windows of a waveform.
type Annotator struct {
	classifier Classifier
	opts       Options
	minWindow  time.Duration
}

func NewAnnotator(classifier Classifier, opts Options) (*Annotator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier should not be nil")
	}
	if err := opts.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate options: %w", err)
	}

	a := &Annotator{
		classifier: classifier,
		opts:       opts,
		minWindow:  opts.MinWindow,
	}
	if p, ok := classifier.(MinWindowProvider); ok {
		a.minWindow = max(a.minWindow, p.MinWindow())
	}

	return a, nil
}

// Annotate classifies every window of samples and returns one annotation per
// window that produced a non-empty score mapping. Windows failing inference
// are logged and skipped. A format error stops processing and is returned
// along with the annotations collected so far.
func (a *Annotator) Annotate(ctx context.Context, samples []float32, sampleRate int) ([]Annotation, Stats, error) {
	var (
		stats       Stats
		annotations []Annotation
	)

	if sampleRate <= 0 {
		return nil, stats, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	vocab := a.classifier.Vocabulary()

	for w := range chunk.Windows(samples, sampleRate, a.opts.WindowSeconds) {
		if err := ctx.Err(); err != nil {
			return annotations, stats, err
		}

		stats.Windows++

		if len(w.Samples) == 0 {
			stats.Empty++
			continue
		}

		if dur := time.Duration(len(w.Samples)) * time.Second / time.Duration(sampleRate); dur < a.minWindow {
			slog.Debug("skipping short window",
				slog.Int64("start", w.StartMs), slog.Int64("end", w.EndMs), slog.Duration("minWindow", a.minWindow))
			stats.TooShort++
			continue
		}

		if a.opts.Gate != nil {
			ok, err := a.opts.Gate.HasSpeech(w.Samples, sampleRate)
			if err != nil {
				slog.Warn("speech gate failed, classifying anyway",
					slog.String("err", err.Error()), slog.Int64("start", w.StartMs))
			} else if !ok {
				slog.Debug("no speech detected in window", slog.Int64("start", w.StartMs), slog.Int64("end", w.EndMs))
				stats.Silent++
				continue
			}
		}

		scores, degraded, err := a.classify(ctx, w, sampleRate, vocab)
		if errors.Is(err, ErrFormat) {
			return annotations, stats, fmt.Errorf("window [%d, %d): %w", w.StartMs, w.EndMs, err)
		} else if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return annotations, stats, ctxErr
			}
			slog.Warn("failed to classify window",
				slog.String("err", err.Error()), slog.Int64("start", w.StartMs), slog.Int64("end", w.EndMs))
			stats.Failed++
			continue
		}

		top, ok := scores.Top()
		if !ok {
			stats.Empty++
			continue
		}

		label := SanitizeLabel(top.Label)
		if label == "" {
			slog.Warn("top label is empty after sanitizing, skipping window",
				slog.String("label", top.Label), slog.Int64("start", w.StartMs))
			stats.Empty++
			continue
		}

		if degraded {
			stats.Degraded++
		}
		stats.Annotated++

		annotations = append(annotations, Annotation{
			StartMs: w.StartMs,
			EndMs:   w.EndMs,
			Label:   label,
			Scores:  scores.TopK(a.opts.Top),
		})
	}

	return annotations, stats, nil
}

func (a *Annotator) classify(ctx context.Context, w chunk.Window, sampleRate int, vocab Vocabulary) (Scores, bool, error) {
	res, err := a.classifier.Classify(ctx, w.Samples, sampleRate)
	if err != nil {
		if errors.Is(err, ErrFormat) || errors.Is(err, ErrInference) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %w", ErrInference, err)
	}

	if res.Degraded {
		slog.Debug("classifier in degraded mode", slog.String("label", res.Label), slog.Int64("start", w.StartMs))
		scores, err := Synthesize(res.Label, vocab, a.opts.Top, a.opts.FallbackProbability)
		return scores, true, err
	}

	scores, err := Normalize(res.Raw, vocab)
	return scores, false, err
}

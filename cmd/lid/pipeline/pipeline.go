package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/audio"
	"github.com/clamsproject/spoken-lid/cmd/lid/config"
	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
	"github.com/clamsproject/spoken-lid/cmd/lid/metadata"
	"github.com/clamsproject/spoken-lid/cmd/lid/mmif"
	"github.com/clamsproject/spoken-lid/cmd/lid/output"
)

// ErrInput marks a document whose media could not be read. Such documents are
// skipped.
var ErrInput = errors.New("invalid input")

// Pipeline annotates documents with the languages spoken in them, one
// TimeFrame per window.
type Pipeline struct {
	cfg        config.LIDConfig
	classifier lid.Classifier
	annotator  *lid.Annotator
}

// New creates a pipeline around classifier. The classifier is not owned by
// the pipeline. gate is optional.
func New(cfg config.LIDConfig, classifier lid.Classifier, gate lid.Gate) (*Pipeline, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	annotator, err := lid.NewAnnotator(classifier, lid.Options{
		WindowSeconds:       cfg.WindowSeconds,
		Top:                 cfg.Top,
		FallbackProbability: cfg.FallbackProbability,
		MinWindow:           time.Duration(cfg.MinWindowMs) * time.Millisecond,
		Gate:                gate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create annotator: %w", err)
	}

	return &Pipeline{
		cfg:        cfg,
		classifier: classifier,
		annotator:  annotator,
	}, nil
}

// Run annotates every audio and video document of m in place. Documents
// with unreachable media are skipped. Format errors are recorded in an error
// view and returned joined once all documents have been processed.
func (p *Pipeline) Run(ctx context.Context, m *mmif.Mmif) (*mmif.Mmif, error) {
	var errs []error

	for _, doc := range m.DocumentsByType(mmif.AudioDocument, mmif.VideoDocument) {
		if err := ctx.Err(); err != nil {
			return m, errors.Join(append(errs, err)...)
		}

		err := p.annotateDocument(ctx, m, doc)
		if errors.Is(err, ErrInput) {
			slog.Warn("skipping document", slog.String("document", doc.ID()), slog.String("err", err.Error()))
			continue
		} else if err != nil {
			errs = append(errs, fmt.Errorf("document %q: %w", doc.ID(), err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	return m, errors.Join(errs...)
}

func (p *Pipeline) load(ctx context.Context, path string) (audio.Waveform, error) {
	wf, err := audio.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return audio.Waveform{}, ctx.Err()
		}
		return audio.Waveform{}, fmt.Errorf("%w: %w", ErrInput, err)
	}
	return wf, nil
}

func (p *Pipeline) annotateDocument(ctx context.Context, m *mmif.Mmif, doc *mmif.Document) error {
	path, err := doc.LocationPath()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInput, err)
	}

	wf, err := p.load(ctx, path)
	if err != nil {
		return err
	}

	start := time.Now()
	annotations, stats, annErr := p.annotator.Annotate(ctx, wf.Samples, wf.SampleRate)
	p.logStats(doc.ID(), wf, stats, time.Since(start))

	view := m.NewView()
	view.Sign(metadata.AppID(), p.Parameters())
	view.NewContains(mmif.TimeFrame, map[string]any{
		"timeUnit": "milliseconds",
		"document": doc.ID(),
		"labelset": p.classifier.Vocabulary().Codes(),
	})
	for _, a := range annotations {
		view.NewAnnotation(mmif.TimeFrame, p.properties(a))
	}

	if annErr != nil {
		// The annotations collected so far are kept, the failure goes into
		// a view of its own.
		errView := m.NewView()
		errView.Sign(metadata.AppID(), p.Parameters())
		errView.SetError(fmt.Errorf("document %q: %w", doc.ID(), annErr))
		return annErr
	}

	return nil
}

func (p *Pipeline) properties(a lid.Annotation) map[string]any {
	props := map[string]any{
		"start": a.StartMs,
		"end":   a.EndMs,
		"label": a.Label,
	}

	switch p.cfg.ScoresProperty {
	case config.ScoresPropertyScores:
		scores := make([]map[string]any, len(a.Scores))
		for i, s := range a.Scores {
			scores[i] = map[string]any{"label": s.Label, "score": s.Prob}
		}
		props["scores"] = scores
	default:
		props["classification"] = a.Scores
	}

	return props
}

// Parameters returns the configuration views are signed with. Credentials
// are left out.
func (p *Pipeline) Parameters() map[string]any {
	return map[string]any{
		"backend":              string(p.cfg.Backend),
		"model_size":           string(p.cfg.ModelSize),
		"device":               string(p.cfg.Device),
		"chunk":                p.cfg.WindowSeconds,
		"top":                  p.cfg.Top,
		"fallback_probability": p.cfg.FallbackProbability,
		"min_window_ms":        p.cfg.MinWindowMs,
		"vad":                  p.cfg.VAD,
		"scores_property":      string(p.cfg.ScoresProperty),
	}
}

func (p *Pipeline) logStats(id string, wf audio.Waveform, stats lid.Stats, elapsed time.Duration) {
	var speed float64
	if elapsed > 0 {
		speed = wf.Duration().Seconds() / elapsed.Seconds()
	}
	slog.Info("document annotated",
		slog.String("document", id),
		slog.Duration("duration", wf.Duration()),
		slog.Duration("elapsed", elapsed),
		slog.String("speed", fmt.Sprintf("%.2fx", speed)),
		slog.Int("windows", stats.Windows),
		slog.Int("annotated", stats.Annotated),
		slog.Int("degraded", stats.Degraded),
		slog.Int("skipped", stats.Skipped()),
		slog.Int("failed", stats.Failed),
	)
}

// RunFile annotates a single media file without going through MMIF. On a
// format error the labels collected so far are returned along with it.
func (p *Pipeline) RunFile(ctx context.Context, path string) (output.DocumentLabels, error) {
	labels := output.DocumentLabels{Document: filepath.Base(path)}

	wf, err := p.load(ctx, path)
	if err != nil {
		return labels, err
	}

	start := time.Now()
	annotations, stats, err := p.annotator.Annotate(ctx, wf.Samples, wf.SampleRate)
	p.logStats(labels.Document, wf, stats, time.Since(start))
	labels.Annotations = annotations

	return labels, err
}

func logDestroyError(what string, err error) {
	slog.Error(fmt.Sprintf("failed to destroy %s", what), slog.String("err", err.Error()))
}

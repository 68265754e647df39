package lid

import (
	"context"
	"fmt"
	"time"
)

// Result is what a classifier returns for a single window.
type Result struct {
	Raw RawScores
	// Label is the classifier's own top prediction, if any.
	Label string
	// Degraded is set when the classifier could only produce Label. The
	// annotator then synthesizes a distribution around it.
	Degraded bool
}

// Classifier identifies the spoken language of a window of mono PCM samples.
// Implementations own native resources which are released through Destroy.
// A Classifier is not required to be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, samples []float32, sampleRate int) (Result, error)
	Vocabulary() Vocabulary
	Destroy() error
}

// MinWindowProvider is implemented by classifiers that cannot handle windows
// shorter than a given duration.
type MinWindowProvider interface {
	MinWindow() time.Duration
}

// Gate decides whether a window contains speech at all.
type Gate interface {
	HasSpeech(samples []float32, sampleRate int) (bool, error)
}

// DegradedResult builds the result of a classifier that could only predict a
// single label. The label is sanitized first. A label that is empty or not
// part of vocab fails the window with ErrInference.
func DegradedResult(label string, vocab Vocabulary) (Result, error) {
	code := SanitizeLabel(label)
	if code == "" || !vocab.Contains(code) {
		return Result{}, fmt.Errorf("%w: predicted label %q is not part of the vocabulary", ErrInference, label)
	}
	return Result{Label: code, Degraded: true}, nil
}

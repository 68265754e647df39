package lid

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when a backend produces scores that cannot be
	// mapped onto its vocabulary. It's fatal for the document being processed.
	ErrFormat = errors.New("invalid score format")
	// ErrInference marks a classifier failure on a single window.
	ErrInference = errors.New("inference failed")
)

// Kind tags the shape a backend returned its scores in.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeyed
	KindDense
	KindRecords
	KindTensor
)

func (k Kind) String() string {
	switch k {
	case KindKeyed:
		return "keyed"
	case KindDense:
		return "dense"
	case KindRecords:
		return "records"
	case KindTensor:
		return "tensor"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Transform is applied to the score values once they've been materialized
// into a flat vector.
type Transform int

const (
	TransformNone Transform = iota
	// TransformExp turns log-probabilities into probabilities.
	TransformExp
	// TransformSoftmax turns logits into probabilities.
	TransformSoftmax
)

// Record is a single loosely typed entry of a list of records, as returned by
// JSON based backends, e.g. {"language": "en", "probability": 0.9}.
type Record map[string]any

// Tensor is a numeric array as produced by an inference runtime.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// RawScores is the output of a classifier before normalization. Exactly one
// of the payload fields is meaningful, as selected by Kind.
type RawScores struct {
	Kind      Kind
	Keyed     map[string]float64
	Dense     []float64
	Records   []Record
	Tensor    Tensor
	Transform Transform
}

func Keyed(m map[string]float64) RawScores {
	return RawScores{Kind: KindKeyed, Keyed: m}
}

func Dense(v []float64) RawScores {
	return RawScores{Kind: KindDense, Dense: v}
}

func Records(r []Record) RawScores {
	return RawScores{Kind: KindRecords, Records: r}
}

func FromTensor(shape []int64, data []float32) RawScores {
	return RawScores{Kind: KindTensor, Tensor: Tensor{Shape: shape, Data: data}}
}

func (r RawScores) WithTransform(t Transform) RawScores {
	r.Transform = t
	return r
}

package lid

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// Keys checked, in priority order, when reading a list of records.
var (
	recordLanguageKeys = []string{"language", "lang", "label"}
	recordScoreKeys    = []string{"probability", "score", "prob"}
)

// Normalize converts raw backend scores into a ranked mapping over vocab.
// The result is sorted by descending probability; equal probabilities keep
// vocabulary order. Any key or label that isn't part of vocab, a dense vector
// shorter than vocab or an unknown shape yields an ErrFormat error.
func Normalize(raw RawScores, vocab Vocabulary) (Scores, error) {
	if vocab.Len() == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrFormat)
	}

	var (
		idxs   []int
		values []float64
		err    error
	)

	switch raw.Kind {
	case KindKeyed:
		idxs, values, err = fromKeyed(raw.Keyed, vocab)
	case KindDense:
		idxs, values, err = fromDense(raw.Dense, vocab)
	case KindRecords:
		idxs, values, err = fromRecords(raw.Records, vocab)
	case KindTensor:
		var dense []float64
		dense, err = materialize(raw.Tensor)
		if err == nil {
			idxs, values, err = fromDense(dense, vocab)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported score shape %s", ErrFormat, raw.Kind)
	}
	if err != nil {
		return nil, err
	}

	values, err = applyTransform(raw.Transform, values)
	if err != nil {
		return nil, err
	}

	scores := make(Scores, len(idxs))
	order := make([]int, len(idxs))
	for i := range idxs {
		order[i] = i
	}
	// Entries are first laid out in vocabulary order so that the stable sort
	// breaks ties by vocabulary position.
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Compare(idxs[a], idxs[b])
	})
	for i, o := range order {
		scores[i] = Score{Label: vocab.Code(idxs[o]), Prob: values[o]}
	}
	slices.SortStableFunc(scores, func(a, b Score) int {
		return cmp.Compare(b.Prob, a.Prob)
	})

	return scores, nil
}

func fromKeyed(m map[string]float64, vocab Vocabulary) ([]int, []float64, error) {
	idxs := make([]int, 0, len(m))
	values := make([]float64, 0, len(m))
	for code, v := range m {
		idx, ok := vocab.Index(code)
		if !ok {
			return nil, nil, fmt.Errorf("%w: language %q is not part of the vocabulary", ErrFormat, code)
		}
		idxs = append(idxs, idx)
		values = append(values, v)
	}
	return idxs, values, nil
}

func fromDense(v []float64, vocab Vocabulary) ([]int, []float64, error) {
	if len(v) < vocab.Len() {
		return nil, nil, fmt.Errorf("%w: got %d scores for a vocabulary of %d languages", ErrFormat, len(v), vocab.Len())
	}

	// Trailing positions past the vocabulary are ignored.
	idxs := make([]int, vocab.Len())
	values := make([]float64, vocab.Len())
	for i := range idxs {
		idxs[i] = i
		values[i] = v[i]
	}
	return idxs, values, nil
}

// fromRecords reads a list of records. A language listed more than once keeps
// the score of its last record.
func fromRecords(records []Record, vocab Vocabulary) ([]int, []float64, error) {
	idxs := make([]int, 0, len(records))
	values := make([]float64, 0, len(records))
	pos := make(map[int]int, len(records))

	for _, r := range records {
		code, ok := recordLanguage(r)
		if !ok {
			continue
		}
		score, ok := recordScore(r)
		if !ok {
			continue
		}

		idx, ok := vocab.Index(code)
		if !ok {
			return nil, nil, fmt.Errorf("%w: language %q is not part of the vocabulary", ErrFormat, code)
		}
		if i, ok := pos[idx]; ok {
			values[i] = score
			continue
		}
		pos[idx] = len(idxs)

		idxs = append(idxs, idx)
		values = append(values, score)
	}

	return idxs, values, nil
}

// recordLanguage returns the first language key holding a non-empty string.
func recordLanguage(r Record) (string, bool) {
	for _, k := range recordLanguageKeys {
		if s, ok := r[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// recordScore returns the first score key holding a number. Keys that are
// missing, null or not numeric are passed over, while a zero is a valid score.
func recordScore(r Record) (float64, bool) {
	for _, k := range recordScoreKeys {
		if f, ok := toFloat(r[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// materialize flattens a tensor that has at most one non-unit dimension,
// e.g. [1, 107] or [107, 1, 1].
func materialize(t Tensor) ([]float64, error) {
	if len(t.Shape) > 0 {
		n := int64(1)
		var nonUnit int
		for _, d := range t.Shape {
			if d < 0 {
				return nil, fmt.Errorf("%w: negative tensor dimension in shape %v", ErrFormat, t.Shape)
			}
			if d > 1 {
				nonUnit++
			}
			n *= d
		}
		if nonUnit > 1 {
			return nil, fmt.Errorf("%w: cannot flatten tensor of shape %v", ErrFormat, t.Shape)
		}
		if n != int64(len(t.Data)) {
			return nil, fmt.Errorf("%w: tensor shape %v does not match %d values", ErrFormat, t.Shape, len(t.Data))
		}
	}

	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out, nil
}

func applyTransform(t Transform, values []float64) ([]float64, error) {
	switch t {
	case TransformNone:
		return values, nil
	case TransformExp:
		for i, v := range values {
			values[i] = math.Exp(v)
		}
		return values, nil
	case TransformSoftmax:
		return softmax(values), nil
	default:
		return nil, fmt.Errorf("%w: unknown transform %d", ErrFormat, t)
	}
}

func softmax(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}

	maxV := math.Inf(-1)
	for _, v := range values {
		maxV = max(maxV, v)
	}

	var sum float64
	for i, v := range values {
		values[i] = math.Exp(v - maxV)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}

	return values
}

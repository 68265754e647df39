package lid

import (
	"fmt"
)

// Vocabulary is the ordered set of language codes a classifier can emit.
// Position i of a dense score vector refers to the i-th code.
type Vocabulary struct {
	codes []string
	index map[string]int
}

func NewVocabulary(codes []string) (Vocabulary, error) {
	if len(codes) == 0 {
		return Vocabulary{}, fmt.Errorf("vocabulary should not be empty")
	}

	v := Vocabulary{
		codes: make([]string, len(codes)),
		index: make(map[string]int, len(codes)),
	}
	for i, code := range codes {
		if code == "" {
			return Vocabulary{}, fmt.Errorf("empty language code at position %d", i)
		}
		if _, ok := v.index[code]; ok {
			return Vocabulary{}, fmt.Errorf("duplicate language code %q", code)
		}
		v.codes[i] = code
		v.index[code] = i
	}

	return v, nil
}

// MustVocabulary is like NewVocabulary but panics on error. Meant for
// static language tables.
func MustVocabulary(codes []string) Vocabulary {
	v, err := NewVocabulary(codes)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Vocabulary) Len() int {
	return len(v.codes)
}

func (v Vocabulary) Code(i int) string {
	return v.codes[i]
}

func (v Vocabulary) Index(code string) (int, bool) {
	i, ok := v.index[code]
	return i, ok
}

func (v Vocabulary) Contains(code string) bool {
	_, ok := v.index[code]
	return ok
}

// Codes returns a copy of the codes in vocabulary order.
func (v Vocabulary) Codes() []string {
	out := make([]string, len(v.codes))
	copy(out, v.codes)
	return out
}

package output

import (
	"fmt"
	"strings"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
)

// DocumentLabels holds the window annotations produced for a single input.
type DocumentLabels struct {
	// Document is the name the input is referred to by (file name or
	// document id).
	Document    string
	Annotations []lid.Annotation
}

type Labels []DocumentLabels

type span struct {
	StartTS int64
	EndTS   int64
	Label   string
	Scores  lid.Scores
	Windows int
}

func (d DocumentLabels) spans() []span {
	out := make([]span, 0, len(d.Annotations))
	for _, a := range d.Annotations {
		out = append(out, span{
			StartTS: a.StartMs,
			EndTS:   a.EndMs,
			Label:   a.Label,
			Scores:  a.Scores,
			Windows: 1,
		})
	}
	return out
}

// vttTS converts ts milliseconds in the 00:00:00.000 format.
func vttTS(ts int64) string {
	sMs := int64(1000)
	mMs := 60 * sMs
	hMs := 60 * mMs

	h := ts / hMs
	m := (ts - (h * hMs)) / mMs
	s := ((ts - (h * hMs)) - m*mMs) / sMs
	ms := ((ts - (h * hMs)) - m*mMs) - s*sMs

	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// formatScores renders scores as "en:0.912 fr:0.041".
func formatScores(scores lid.Scores, sep string) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%s:%.3f", s.Label, s.Prob)
	}
	return strings.Join(parts, sep)
}

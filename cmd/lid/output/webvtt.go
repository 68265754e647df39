package output

import (
	"fmt"
	"html"
	"io"
	"os"
	"strconv"
)

type WebVTTOptions struct {
	OmitScores bool
}

func (o *WebVTTOptions) IsValid() error {
	return nil
}

func (o *WebVTTOptions) IsEmpty() bool {
	return o == nil || *o == WebVTTOptions{}
}

func (o *WebVTTOptions) SetDefaults() {
	o.OmitScores = false
}

func (o *WebVTTOptions) FromEnv() {
	o.OmitScores, _ = strconv.ParseBool(os.Getenv("LID_WEBVTT_OMIT_SCORES"))
}

func (o *WebVTTOptions) ToEnv() []string {
	return []string{
		fmt.Sprintf("LID_WEBVTT_OMIT_SCORES=%t", o.OmitScores),
	}
}

func (o *WebVTTOptions) FromMap(m map[string]any) {
	switch v := m["webvtt_omit_scores"].(type) {
	case bool:
		o.OmitScores = v
	case string:
		o.OmitScores, _ = strconv.ParseBool(v)
	}
}

func (o *WebVTTOptions) ToMap() map[string]any {
	return map[string]any{
		"webvtt_omit_scores": o.OmitScores,
	}
}

// WebVTT writes one cue per window. Cues are voiced by the detected
// language. Multiple documents are separated by NOTE blocks.
func (l Labels) WebVTT(w io.Writer, opts WebVTTOptions) error {
	_, err := fmt.Fprintf(w, "WEBVTT\n")
	if err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	for _, doc := range l {
		if len(l) > 1 {
			_, err = fmt.Fprintf(w, "\nNOTE %s\n", html.EscapeString(doc.Document))
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
		}

		for _, s := range doc.spans() {
			_, err = fmt.Fprintf(w, "\n%s --> %s\n", vttTS(s.StartTS), vttTS(s.EndTS))
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}

			label := html.EscapeString(s.Label)
			if opts.OmitScores {
				_, err = fmt.Fprintf(w, "<v %[1]s>%[1]s\n", label)
			} else {
				_, err = fmt.Fprintf(w, "<v %s>%s\n", label, formatScores(s.Scores, " "))
			}
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
		}
	}

	return nil
}

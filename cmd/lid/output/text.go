package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

type TextCompactOptions struct {
	GapThresholdMs    int
	MaxSpanDurationMs int
}

func (o *TextCompactOptions) SetDefaults() {
	o.GapThresholdMs = 1000
	o.MaxSpanDurationMs = 300000
}

func (o *TextCompactOptions) IsEmpty() bool {
	return o == nil || *o == TextCompactOptions{}
}

type TextOptions struct {
	CompactOptions TextCompactOptions
}

func (o *TextOptions) SetDefaults() {
	o.CompactOptions.SetDefaults()
}

func (o *TextOptions) IsValid() error {
	if o.CompactOptions.GapThresholdMs <= 0 {
		return fmt.Errorf("GapThresholdMs should be a positive number")
	}

	if o.CompactOptions.MaxSpanDurationMs <= 0 {
		return fmt.Errorf("MaxSpanDurationMs should be a positive number")
	}

	return nil
}

func (o *TextOptions) IsEmpty() bool {
	return o.CompactOptions.IsEmpty()
}

func (o *TextOptions) ToEnv() []string {
	return []string{
		fmt.Sprintf("LID_TEXT_COMPACT_GAP_THRESHOLD_MS=%d", o.CompactOptions.GapThresholdMs),
		fmt.Sprintf("LID_TEXT_COMPACT_MAX_SPAN_DURATION_MS=%d", o.CompactOptions.MaxSpanDurationMs),
	}
}

func (o *TextOptions) FromEnv() {
	o.CompactOptions.GapThresholdMs, _ = strconv.Atoi(os.Getenv("LID_TEXT_COMPACT_GAP_THRESHOLD_MS"))
	o.CompactOptions.MaxSpanDurationMs, _ = strconv.Atoi(os.Getenv("LID_TEXT_COMPACT_MAX_SPAN_DURATION_MS"))
}

func (o *TextOptions) ToMap() map[string]any {
	return map[string]any{
		"text_compact_gap_threshold_ms":     o.CompactOptions.GapThresholdMs,
		"text_compact_max_span_duration_ms": o.CompactOptions.MaxSpanDurationMs,
	}
}

func (o *TextOptions) FromMap(m map[string]any) {
	if v, ok := intFromAny(m["text_compact_gap_threshold_ms"]); ok {
		o.CompactOptions.GapThresholdMs = v
	}
	if v, ok := intFromAny(m["text_compact_max_span_duration_ms"]); ok {
		o.CompactOptions.MaxSpanDurationMs = v
	}
}

// These can either be int, float64 or string depending on whether they have
// been previously marshaled or come from a query string.
func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func compactSpans(spans []span, opts TextCompactOptions) []span {
	if len(spans) < 2 {
		return spans
	}

	out := []span{spans[0]}

	for i := 1; i < len(spans); i++ {
		curr := spans[i]
		prev := spans[i-1]

		// Spans are joined if:
		// - The label hasn't changed.
		// - There's less than GapThresholdMs between them (windows skipped for
		//   silence or failures leave a gap).
		// - The running duration stays below MaxSpanDurationMs.
		if curr.Label == prev.Label &&
			int(curr.StartTS-prev.EndTS) < opts.GapThresholdMs &&
			int(curr.EndTS-out[len(out)-1].StartTS) <= opts.MaxSpanDurationMs {
			slog.Debug(fmt.Sprintf("%d and %d can be joined", i-1, i))
			out[len(out)-1].EndTS = curr.EndTS
			out[len(out)-1].Windows++
		} else {
			out = append(out, curr)
		}
	}

	slog.Debug("compact done", slog.Int("inLen", len(spans)), slog.Int("outLen", len(out)))

	return out
}

// Text writes one block per language span, merging consecutive windows with
// the same label.
func (l Labels) Text(w io.Writer, opts TextOptions) error {
	first := true
	for _, doc := range l {
		spans := doc.spans()
		if !opts.CompactOptions.IsEmpty() {
			spans = compactSpans(spans, opts.CompactOptions)
		}

		for _, s := range spans {
			nl := "\n"
			if first {
				nl = ""
				first = false
			}
			_, err := fmt.Fprintf(w, "%s%v -> %v\n", nl, vttTS(s.StartTS), vttTS(s.EndTS))
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}

			if len(l) > 1 {
				_, err = fmt.Fprintf(w, "%s: %s (%d)\n", doc.Document, s.Label, s.Windows)
			} else {
				_, err = fmt.Fprintf(w, "%s (%d)\n", s.Label, s.Windows)
			}
			if err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
		}
	}

	return nil
}

package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"file", "start", "end", "pred", "topN"}

func secondsString(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

// CSV writes one row per window with offsets in seconds.
func (l Labels) CSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	for _, doc := range l {
		for _, a := range doc.Annotations {
			row := []string{
				doc.Document,
				secondsString(a.StartMs),
				secondsString(a.EndMs),
				a.Label,
				formatScores(a.Scores, " "),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

package voxlingua

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
)

// parseLabels reads one language per line. Lines can either be a bare code,
// "code: Name", or the speechbrain label encoder form "'code: Name' => idx".
func parseLabels(r io.Reader) ([]string, error) {
	var codes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "=") {
			continue
		}
		if idx := strings.Index(line, "=>"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		line = strings.Trim(line, `'"`)
		if line == "starting_index" {
			continue
		}
		if idx := strings.Index(line, ":"); idx >= 0 {
			line = line[:idx]
		}
		codes = append(codes, strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return codes, nil
}

func loadVocabulary(path string) (lid.Vocabulary, error) {
	if path == "" {
		return lid.NewVocabulary(lid.VoxLingua107)
	}

	f, err := os.Open(path)
	if err != nil {
		return lid.Vocabulary{}, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	codes, err := parseLabels(f)
	if err != nil {
		return lid.Vocabulary{}, err
	}

	return lid.NewVocabulary(codes)
}

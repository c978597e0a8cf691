package analyzer

import (
	"fmt"
	"strings"
)

const (
	fileHeader      = "diff --git "
	truncatedMarker = "\n... (truncated)\n"
)

// SplitFiles cuts a unified diff at its "diff --git" headers. Text before the
// first header, if any, is kept as its own piece.
func SplitFiles(diff string) []string {
	var (
		files   []string
		current strings.Builder
	)

	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, fileHeader) && current.Len() > 0 {
			files = append(files, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if strings.TrimSpace(current.String()) != "" {
		files = append(files, current.String())
	}

	return files
}

// Segment groups the files of diff into pieces of at most maxTokens tokens,
// keeping file order. A file larger than maxTokens on its own is truncated.
func Segment(diff string, maxTokens int) ([]string, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("segment diff: max tokens must be positive, got %d", maxTokens)
	}

	var (
		segments []string
		current  strings.Builder
		used     int
	)

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
			used = 0
		}
	}

	for _, file := range SplitFiles(diff) {
		n, err := CountTokens(file)
		if err != nil {
			return nil, fmt.Errorf("count tokens: %w", err)
		}

		if n > maxTokens {
			flush()
			cut, err := truncateTokens(file, maxTokens)
			if err != nil {
				return nil, fmt.Errorf("truncate file: %w", err)
			}
			segments = append(segments, cut+truncatedMarker)
			continue
		}

		if used+n > maxTokens {
			flush()
		}
		current.WriteString(file)
		used += n
	}
	flush()

	return segments, nil
}

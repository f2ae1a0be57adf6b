package reader

import (
	"strings"

	"github.com/xhad/folio/internal/models"
)

const DefaultMarker = "CHAPTER"

// Segmenter splits raw text into chapters on every literal occurrence of a
// marker token. The match is case-sensitive and ignores word boundaries, so
// "CHAPTERS" also splits. Fragment 0 is front matter.
type Segmenter struct {
	Marker string
}

func NewSegmenter(marker string) Segmenter {
	if marker == "" {
		marker = DefaultMarker
	}
	return Segmenter{Marker: marker}
}

func (s Segmenter) marker() string {
	if s.Marker == "" {
		return DefaultMarker
	}
	return s.Marker
}

// Split returns the fragments between marker occurrences. N markers give N+1
// fragments.
func (s Segmenter) Split(text string) []string {
	return strings.Split(text, s.marker())
}

// Count is the number of addressable chapters in text.
func (s Segmenter) Count(text string) int {
	n := strings.Count(text, s.marker())
	if n == 0 {
		return 1
	}
	return n
}

// Select returns chapter chapterIndex of text. Without any marker the whole
// text comes back verbatim. An index outside the chapters falls back to the
// front matter fragment.
func (s Segmenter) Select(text string, chapterIndex int) string {
	fragments := s.Split(text)
	if len(fragments) == 1 {
		return text
	}

	target := chapterIndex + 1
	if target < 0 || target >= len(fragments) {
		target = 0
	}
	return s.marker() + fragments[target]
}

// Chapters builds a table of contents for text. Each chapter is titled with
// the marker and the first non-blank line of its fragment.
func (s Segmenter) Chapters(text, fallbackTitle string) []models.Chapter {
	fragments := s.Split(text)
	if len(fragments) == 1 {
		return []models.Chapter{{Index: 0, Title: fallbackTitle, Content: text}}
	}

	chapters := make([]models.Chapter, 0, len(fragments)-1)
	for i, fragment := range fragments[1:] {
		chapters = append(chapters, models.Chapter{
			Index:   i,
			Title:   s.title(fragment),
			Content: s.marker() + fragment,
		})
	}
	return chapters
}

func (s Segmenter) title(fragment string) string {
	for _, line := range strings.Split(fragment, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			return s.marker() + " " + line
		}
	}
	return s.marker()
}

package reader

import (
	"strings"
	"unicode/utf8"
)

type PagerConfig struct {
	PageSize int // soft upper bound in bytes
}

// Pager cuts chapter text into pages, breaking at sentence ends where it can.
type Pager struct {
	config PagerConfig
}

func NewPager(config PagerConfig) Pager {
	if config.PageSize <= 0 {
		config.PageSize = 2000
	}

	return Pager{
		config: config,
	}
}

// Paginate always returns at least one page.
func (p Pager) Paginate(content string) []string {
	var pages []string

	current := strings.Builder{}

	for _, sentence := range splitIntoSentences(content) {
		// If adding this sentence would exceed the page size
		if current.Len() > 0 && current.Len()+len(sentence) > p.config.PageSize {
			pages = append(pages, current.String())
			current.Reset()
		}

		// A single sentence longer than a page is cut at word boundaries.
		for len(sentence) > p.config.PageSize {
			cut := strings.LastIndexByte(sentence[:p.config.PageSize], ' ')
			if cut <= 0 {
				cut = p.config.PageSize
				for cut > 1 && !utf8.RuneStart(sentence[cut]) {
					cut--
				}
			}
			pages = append(pages, sentence[:cut])
			sentence = strings.TrimLeft(sentence[cut:], " ")
		}

		current.WriteString(sentence)
	}

	if current.Len() > 0 || len(pages) == 0 {
		pages = append(pages, current.String())
	}

	return pages
}

// Page returns page n (0-based) of content, clamped into range, and the total
// page count.
func (p Pager) Page(content string, n int) (string, int) {
	pages := p.Paginate(content)
	if n < 0 {
		n = 0
	}
	if n >= len(pages) {
		n = len(pages) - 1
	}
	return pages[n], len(pages)
}

// splitIntoSentences keeps every byte of text: sentences carry their
// terminator and trailing whitespace.
func splitIntoSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		end := i + 1
		if end < len(text) && text[end] != ' ' && text[end] != '\n' {
			continue
		}
		for end < len(text) && (text[end] == ' ' || text[end] == '\n') {
			end++
		}
		sentences = append(sentences, text[start:end])
		start = end
		i = end - 1
	}

	// Add any remaining text
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	return sentences
}

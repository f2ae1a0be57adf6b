package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xhad/folio/internal/models"
)

const (
	formatCover     = "image/jpeg"
	formatTextUTF8  = "text/plain; charset=utf-8"
	formatTextPlain = "text/plain"

	unknownAuthor  = "Unknown"
	subjectDelim   = " -- "
	maxTags        = 2
	summaryPattern = "A Project Gutenberg classic, downloaded %d times."
)

// searchResponse matches the catalog /books envelope. Results is a pointer
// so a missing array can be told apart from an empty one.
type searchResponse struct {
	Count   int          `json:"count"`
	Results *[]rawRecord `json:"results"`
}

type rawRecord struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Authors       []rawPerson       `json:"authors"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count"`
	Subjects      []string          `json:"subjects"`
}

type rawPerson struct {
	Name string `json:"name"`
}

func normalize(prefix string, rec rawRecord) models.Work {
	return models.Work{
		ID:            prefix + "-" + strconv.FormatInt(rec.ID, 10),
		Title:         rec.Title,
		Author:        authorName(rec.Authors),
		CoverImageURL: rec.Formats[formatCover],
		Summary:       fmt.Sprintf(summaryPattern, rec.DownloadCount),
		Tags:          tags(rec.Subjects),
		TextURL:       textURL(rec.Formats),
	}
}

// authorName turns "Last, First" into "Last First".
func authorName(authors []rawPerson) string {
	if len(authors) == 0 {
		return unknownAuthor
	}
	return strings.ReplaceAll(authors[0].Name, ", ", " ")
}

func textURL(formats map[string]string) string {
	if u := formats[formatTextUTF8]; u != "" {
		return u
	}
	return formats[formatTextPlain]
}

func tags(subjects []string) []string {
	n := len(subjects)
	if n > maxTags {
		n = maxTags
	}

	out := make([]string, 0, n)
	for _, subject := range subjects[:n] {
		head, _, _ := strings.Cut(subject, subjectDelim)
		out = append(out, head)
	}
	return out
}

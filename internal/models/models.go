package models

// Work is one normalized catalog entry. Values are built fresh for every
// search response and never mutated afterwards.
type Work struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	TextURL       string   `json:"text_url"`
}

type Chapter struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Passage is a single page of a chapter as kept in the passage index.
type Passage struct {
	ID      string  `json:"id" db:"id"`
	WorkID  string  `json:"work_id" db:"work_id"`
	Chapter int     `json:"chapter" db:"chapter"`
	Page    int     `json:"page" db:"page"`
	Title   string  `json:"title" db:"title"`
	Content string  `json:"content" db:"content"`
	Score   float64 `json:"score,omitempty" db:"score"`
}

package server

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/pkg/catalog"
)

func (s *Server) apiHandler() http.Handler {
	r := chi.NewRouter()

	r.Get("/search", func(w http.ResponseWriter, r *http.Request) {
		res := s.catalog.Search(r.Context(), r.URL.Query().Get("q"))

		works := res.Works
		if works == nil {
			works = make([]models.Work, 0)
		}

		var errMsg string
		if catalog.IsFailure(res.Err) {
			errMsg = "Catalog unavailable"
		}

		s.responder.OK(w, r, struct {
			Works []models.Work `json:"works"`
			Error string        `json:"error,omitempty"`
		}{Works: works, Error: errMsg})
	})

	r.Get("/chapters", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		work := models.Work{TextURL: q.Get("text_url"), Title: q.Get("title")}

		chapters, msg := s.reader.Chapters(r.Context(), work)

		toc := make([]models.Chapter, 0, len(chapters))
		for _, c := range chapters {
			toc = append(toc, models.Chapter{Index: c.Index, Title: c.Title})
		}

		s.responder.OK(w, r, struct {
			Chapters []models.Chapter `json:"chapters"`
			Error    string           `json:"error,omitempty"`
		}{Chapters: toc, Error: msg})
	})

	r.Get("/chapter", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		work := models.Work{TextURL: q.Get("text_url")}
		page := getIntOrDefault("page", q, 0)

		content, pages := s.reader.FetchPage(r.Context(), work, getIntOrDefault("index", q, 0), page)

		s.responder.OK(w, r, struct {
			Content string `json:"content"`
			Page    int    `json:"page"`
			Pages   int    `json:"pages"`
		}{Content: content, Page: clamp(page, pages), Pages: pages})
	})

	r.Post("/index", func(w http.ResponseWriter, r *http.Request) {
		if s.indexer == nil {
			s.responder.Fail(w, r, errNoIndex)
			return
		}

		q := r.URL.Query()
		work := models.Work{ID: q.Get("work_id"), TextURL: q.Get("text_url"), Title: q.Get("title")}
		if work.ID == "" {
			s.responder.Fail(w, r, badRequest("work_id is required"))
			return
		}

		n, err := s.indexer.Index(r.Context(), work, nil)
		if err != nil {
			s.responder.Fail(w, r, err)
			return
		}

		s.responder.OK(w, r, struct {
			Passages int `json:"passages"`
		}{Passages: n})
	})

	r.Get("/ask", func(w http.ResponseWriter, r *http.Request) {
		if s.indexer == nil {
			s.responder.Fail(w, r, errNoIndex)
			return
		}

		q := r.URL.Query()
		answer, err := s.indexer.Ask(r.Context(), models.Work{ID: q.Get("work_id")}, q.Get("q"))
		if err != nil {
			s.responder.Fail(w, r, err)
			return
		}

		if answer.Passages == nil {
			answer.Passages = make([]models.Passage, 0)
		}

		s.responder.OK(w, r, struct {
			Answer   string           `json:"answer"`
			Passages []models.Passage `json:"passages"`
		}{Answer: answer.Text, Passages: answer.Passages})
	})

	return r
}

func getIntOrDefault(name string, q url.Values, def int) int {
	if v, err := strconv.Atoi(q.Get(name)); err == nil {
		return v
	}
	return def
}

func clamp(n, total int) int {
	if n >= total {
		n = total - 1
	}
	if n < 0 {
		n = 0
	}
	return n
}

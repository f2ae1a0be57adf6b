package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/folio/internal/models"
)

// Ordering decides which completion may publish results when searches overlap.
type Ordering int

const (
	// OrderLatestWins cancels a superseded in-flight search and ignores its
	// completion.
	OrderLatestWins Ordering = iota
	// OrderLastCompletion lets whichever search finishes last publish, so a
	// slow earlier search can overwrite a faster later one.
	OrderLastCompletion
)

func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "latest":
		return OrderLatestWins, nil
	case "last_completion":
		return OrderLastCompletion, nil
	}
	return 0, fmt.Errorf("unknown search ordering %q", s)
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventFinished
)

func (k EventKind) String() string {
	if k == EventStarted {
		return "started"
	}
	return "finished"
}

// State is a snapshot of a session.
type State struct {
	Searching bool
	Query     string
	Results   []models.Work
	Err       error
}

type Event struct {
	Kind  EventKind
	Query string
	State State
}

type Searcher interface {
	Search(ctx context.Context, query string) Result
}

type SessionConfig struct {
	Ordering Ordering
	Observer func(Event)
}

// Session holds the searching flag and current results for one caller,
// typically one CLI run or one websocket connection.
type Session struct {
	searcher Searcher
	config   SessionConfig

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	inflight int
	query    string
	results  []models.Work
	err      error

	notifyMu sync.Mutex
}

func NewSession(searcher Searcher, config SessionConfig) *Session {
	return &Session{
		searcher: searcher,
		config:   config,
		results:  []models.Work{},
	}
}

// Search runs query and returns the works it produced. The bool is false when
// the query was skipped; the current results are returned unchanged then.
// Each non-skipped call emits exactly one EventStarted and one EventFinished.
func (s *Session) Search(ctx context.Context, query string) ([]models.Work, bool) {
	if !Encodable(query) {
		return s.Results(), false
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.config.Ordering == OrderLatestWins && s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.inflight++
	started := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventStarted, Query: query, State: started})

	var res Result
	defer func() {
		s.mu.Lock()
		s.inflight--
		current := gen == s.gen
		if current {
			s.cancel = nil
		}
		if current || s.config.Ordering == OrderLastCompletion {
			s.query = query
			s.results = res.Works
			if s.results == nil {
				s.results = []models.Work{}
			}
			s.err = res.Err
		}
		finished := s.snapshotLocked()
		s.mu.Unlock()

		s.notify(Event{Kind: EventFinished, Query: query, State: finished})
	}()

	res = s.searcher.Search(ctx, query)
	return copyWorks(res.Works), true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Results() []models.Work {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyWorks(s.results)
}

func (s *Session) Searching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Find returns the current result with the given id.
func (s *Session) Find(id string) (models.Work, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.results {
		if w.ID == id {
			return w, true
		}
	}
	return models.Work{}, false
}

func (s *Session) snapshotLocked() State {
	return State{
		Searching: s.inflight > 0,
		Query:     s.query,
		Results:   copyWorks(s.results),
		Err:       s.err,
	}
}

func (s *Session) notify(ev Event) {
	if s.config.Observer == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.config.Observer(ev)
}

func copyWorks(works []models.Work) []models.Work {
	out := make([]models.Work, len(works))
	copy(out, works)
	return out
}

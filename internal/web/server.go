// Package web exposes a small JSON study API over the engine. It sits on the
// caller side of the engine contracts: it loads the catalog shapes, runs the
// scheduler, and submits updates through the batch coordinator.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/techno-hippies/versed/internal/batch"
	"github.com/techno-hippies/versed/internal/catalog"
	"github.com/techno-hippies/versed/internal/domain"
	"github.com/techno-hippies/versed/internal/fsrs"
	"github.com/techno-hippies/versed/internal/store"
	"github.com/techno-hippies/versed/internal/study"
)

// Server holds the dependencies for the HTTP study API.
type Server struct {
	cards    store.CardStore
	sched    *fsrs.Scheduler
	agg      *study.Aggregator
	coord    *batch.Coordinator
	items    []catalog.Item
	router   *http.ServeMux
	validate *validator.Validate
	log      *slog.Logger
}

// NewServer creates and configures a server over the given engine components.
func NewServer(cards store.CardStore, sched *fsrs.Scheduler, agg *study.Aggregator, coord *batch.Coordinator, items []catalog.Item, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cards:    cards,
		sched:    sched,
		agg:      agg,
		coord:    coord,
		items:    items,
		router:   http.NewServeMux(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /items", s.handleItems())
	s.router.HandleFunc("GET /study/due", s.handleDue())
	s.router.HandleFunc("GET /study/stats", s.handleStats())
	s.router.HandleFunc("GET /study/completion", s.handleCompletion())
	s.router.HandleFunc("GET /study/mastery", s.handleMastery())
	s.router.HandleFunc("POST /review", s.handleReview())
	s.router.HandleFunc("GET /audits", s.handleAudits())
}

// handleItems lists the loaded catalog.
func (s *Server) handleItems() http.HandlerFunc {
	type itemView struct {
		ID       string               `json:"id"`
		Sections []study.SectionShape `json:"sections"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		views := make([]itemView, len(s.items))
		for i, it := range s.items {
			views[i] = itemView{ID: it.ID, Sections: it.Shapes()}
		}
		s.writeJSON(w, http.StatusOK, views)
	}
}

// handleDue returns due lines for a section, or due section indexes for a
// whole item when no section is given.
func (s *Server) handleDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.URL.Query().Get("learner")
		itemID := r.URL.Query().Get("item")
		section := r.URL.Query().Get("section")
		now := time.Now()

		item, ok := catalog.Find(s.items, itemID)
		if !ok {
			s.writeError(w, domain.ErrInvalidItem)
			return
		}

		if section == "" {
			due, err := s.agg.DueSections(r.Context(), learner, itemID, item.Shapes(), now)
			if err != nil {
				s.writeError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, map[string]any{"due_sections": due})
			return
		}

		sec, ok := item.Section(section)
		if !ok {
			s.writeError(w, domain.ErrInvalidSection)
			return
		}
		lines, err := s.agg.DueLines(r.Context(), learner, itemID, section, sec.LineCount, now)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"due_lines": lines})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.URL.Query().Get("learner")
		itemID := r.URL.Query().Get("item")
		section := r.URL.Query().Get("section")

		item, ok := catalog.Find(s.items, itemID)
		if !ok {
			s.writeError(w, domain.ErrInvalidItem)
			return
		}
		sec, ok := item.Section(section)
		if !ok {
			s.writeError(w, domain.ErrInvalidSection)
			return
		}
		stats, err := s.agg.StudyStats(r.Context(), learner, itemID, section, sec.LineCount, time.Now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleCompletion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.URL.Query().Get("learner")
		itemID := r.URL.Query().Get("item")

		item, ok := catalog.Find(s.items, itemID)
		if !ok {
			s.writeError(w, domain.ErrInvalidItem)
			return
		}
		completion, err := s.agg.CompletionRate(r.Context(), learner, itemID, item.Shapes())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, completion)
	}
}

func (s *Server) handleMastery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.URL.Query().Get("learner")
		itemID := r.URL.Query().Get("item")

		item, ok := catalog.Find(s.items, itemID)
		if !ok {
			s.writeError(w, domain.ErrInvalidItem)
			return
		}
		mastery, err := s.agg.IsMastered(r.Context(), learner, itemID, item.Shapes())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mastery)
	}
}

type reviewRequest struct {
	Learner string        `json:"learner" validate:"required"`
	Item    string        `json:"item" validate:"required"`
	Section string        `json:"section" validate:"required"`
	Reviews []reviewEntry `json:"reviews" validate:"required,min=1,dive"`
}

type reviewEntry struct {
	Line   uint16 `json:"line"`
	Rating int    `json:"rating" validate:"min=0,max=3"`
	Score  int    `json:"score" validate:"min=0"`
}

type reviewOutcome struct {
	Line    uint16       `json:"line"`
	Applied bool         `json:"applied"`
	Error   string       `json:"error,omitempty"`
	Due     time.Time    `json:"due,omitzero"`
	State   domain.State `json:"state"`
}

// handleReview runs the scheduler for each reviewed line and submits the
// results as one batch.
func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		now := time.Now()
		updates := make([]batch.Update, 0, len(req.Reviews))
		for _, rev := range req.Reviews {
			key := domain.CardKey{Learner: req.Learner, Item: req.Item, Section: req.Section, Line: rev.Line}
			card, _, err := s.cards.Get(r.Context(), key)
			if err != nil {
				s.writeError(w, err)
				return
			}
			next, err := s.sched.ComputeNextState(card, domain.Rating(rev.Rating), now)
			if err != nil {
				s.writeError(w, err)
				return
			}
			updates = append(updates, batch.Update{
				Line:   rev.Line,
				Rating: domain.Rating(rev.Rating),
				Score:  rev.Score,
				Card:   next,
			})
		}

		outcomes, err := s.coord.ApplyBatch(r.Context(), req.Learner, req.Item, req.Section, updates)
		if err != nil {
			s.writeError(w, err)
			return
		}

		views := make([]reviewOutcome, len(outcomes))
		for i, out := range outcomes {
			views[i] = reviewOutcome{
				Line:    out.Line,
				Applied: out.Applied,
				Due:     out.Due,
				State:   out.State,
			}
			if out.Err != nil {
				views[i].Error = out.Err.Error()
			}
		}
		s.writeJSON(w, http.StatusOK, views)
	}
}

func (s *Server) handleAudits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		audits, err := s.cards.Audits(r.Context(), q.Get("learner"), q.Get("item"), q.Get("section"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, audits)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}

// writeError maps engine error kinds to HTTP statuses: caller input-shape
// errors are 400s, stale writes 409, store failures 503.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStaleCard):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidScore),
		errors.Is(err, domain.ErrInvalidLineIndex),
		errors.Is(err, domain.ErrInvalidLearner),
		errors.Is(err, domain.ErrInvalidItem),
		errors.Is(err, domain.ErrInvalidSection),
		errors.Is(err, domain.ErrInvalidCard),
		errors.Is(err, domain.ErrBatchLimit):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

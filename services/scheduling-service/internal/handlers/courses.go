package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/catalog"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/storage"
)

type CourseStore interface {
	Terms(ctx context.Context) ([]model.Term, error)
	CurrentTerm(ctx context.Context) (model.Term, error)
	CoursesForTerm(ctx context.Context, termCode string) ([]model.Course, error)
}

type CourseHandler struct {
	store  CourseStore
	logger *slog.Logger
}

func NewCourseHandler(store CourseStore, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{store: store, logger: logger}
}

type coursesResponse struct {
	Term        string         `json:"term"`
	Departments []string       `json:"departments"`
	Total       int            `json:"total"`
	Courses     []model.Course `json:"courses"`
}

// Terms serves GET /api/v1/terms.
func (h *CourseHandler) Terms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.store.Terms(r.Context())
	if err != nil {
		h.logger.Error("terms lookup failed", "err", err)
		http.Error(w, "failed to load terms", http.StatusInternalServerError)
		return
	}
	if terms == nil {
		terms = []model.Term{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"terms": terms})
}

// List serves GET /api/v1/courses?term=&search=&department=. Without term the current term is
// used. Departments always cover the whole term so the filter menu does not shrink as it is used.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("term"))
	if term == "" {
		current, err := h.store.CurrentTerm(r.Context())
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusOK, coursesResponse{Departments: []string{}, Courses: []model.Course{}})
			return
		case err != nil:
			h.logger.Error("current term lookup failed", "err", err)
			http.Error(w, "failed to load courses", http.StatusInternalServerError)
			return
		}
		term = current.Code
	}

	all, err := h.store.CoursesForTerm(r.Context(), term)
	if err != nil {
		h.logger.Error("courses lookup failed", "err", err, "term", term)
		http.Error(w, "failed to load courses", http.StatusInternalServerError)
		return
	}
	all = catalog.Prepare(all)
	filtered := catalog.Filter(all, q.Get("search"), q.Get("department"))
	writeJSON(w, http.StatusOK, coursesResponse{
		Term:        term,
		Departments: catalog.Departments(all),
		Total:       len(all),
		Courses:     filtered,
	})
}

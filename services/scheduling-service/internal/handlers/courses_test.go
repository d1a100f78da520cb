package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/storage"
)

type memCourses struct {
	current  *model.Term
	terms    []model.Term
	byTerm   map[string][]model.Course
	requests []string
	err      error
}

func (m *memCourses) Terms(context.Context) ([]model.Term, error) { return m.terms, m.err }

func (m *memCourses) CurrentTerm(context.Context) (model.Term, error) {
	if m.current == nil {
		return model.Term{}, storage.ErrNotFound
	}
	return *m.current, nil
}

func (m *memCourses) CoursesForTerm(_ context.Context, term string) ([]model.Course, error) {
	m.requests = append(m.requests, term)
	return m.byTerm[term], m.err
}

func courseMux(store *memCourses) *http.ServeMux {
	h := NewCourseHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/courses", h.List)
	mux.HandleFunc("GET /api/v1/terms", h.Terms)
	return mux
}

func getCourses(t *testing.T, mux *http.ServeMux, query string) (int, coursesResponse) {
	t.Helper()
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/courses"+query, nil))
	var body coursesResponse
	if rw.Code == http.StatusOK {
		if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rw.Code, body
}

func TestListCourses(t *testing.T) {
	store := &memCourses{
		current: &model.Term{Code: "20263", Name: "Fall 2026", IsCurrent: true},
		byTerm: map[string][]model.Course{
			"20263": {
				{ID: "c1", Number: "CSCI-104", Title: "Data Structures", Instructor: "Ada Lovelace"},
				{ID: "c2", Number: "MATH-225", Title: "Linear Algebra"},
				{ID: "c3", Number: "CSCI-201", Title: "Principles of Software"},
			},
			"20261": {{ID: "s1", Number: "WRIT-150", Title: "Writing"}},
		},
	}
	mux := courseMux(store)

	cases := []struct {
		name      string
		query     string
		wantTerm  string
		wantIDs   []string
		wantDepts []string
	}{
		{"current term", "", "20263", []string{"c1", "c2", "c3"}, []string{"CSCI", "MATH"}},
		{"search", "?search=LOVELACE", "20263", []string{"c1"}, []string{"CSCI", "MATH"}},
		{"department", "?department=CSCI", "20263", []string{"c1", "c3"}, []string{"CSCI", "MATH"}},
		{"all departments", "?department=all&search=algebra", "20263", []string{"c2"}, []string{"CSCI", "MATH"}},
		{"explicit term", "?term=20261", "20261", []string{"s1"}, []string{"WRIT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := getCourses(t, mux, tc.query)
			if code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			ids := []string{}
			for _, c := range body.Courses {
				ids = append(ids, c.ID)
			}
			if body.Term != tc.wantTerm || !reflect.DeepEqual(ids, tc.wantIDs) || !reflect.DeepEqual(body.Departments, tc.wantDepts) {
				t.Fatalf("got term=%s ids=%v depts=%v", body.Term, ids, body.Departments)
			}
		})
	}
}

func TestListCoursesWithoutCurrentTerm(t *testing.T) {
	store := &memCourses{}
	code, body := getCourses(t, courseMux(store), "")
	if code != http.StatusOK || len(body.Courses) != 0 || body.Term != "" {
		t.Fatalf("expected empty catalog, got %d %+v", code, body)
	}
	if len(store.requests) != 0 {
		t.Fatalf("no course query expected, got %v", store.requests)
	}
}

func TestListCoursesStoreError(t *testing.T) {
	store := &memCourses{err: errors.New("db down")}
	if code, _ := getCourses(t, courseMux(store), "?term=20263"); code != http.StatusInternalServerError {
		t.Fatalf("status = %d", code)
	}
}

func TestTerms(t *testing.T) {
	store := &memCourses{terms: []model.Term{{Code: "20263", Name: "Fall 2026", IsCurrent: true}}}
	rw := httptest.NewRecorder()
	courseMux(store).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/terms", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d", rw.Code)
	}
	var body struct {
		Terms []model.Term `json:"terms"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil || len(body.Terms) != 1 || !body.Terms[0].IsCurrent {
		t.Fatalf("unexpected body %s", rw.Body.String())
	}
}

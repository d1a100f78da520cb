package catalog

import (
	"reflect"
	"testing"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

func TestDepartmentOf(t *testing.T) {
	cases := map[string]string{
		"CSCI-104":  "CSCI",
		"MATH-225a": "MATH",
		"WRIT150":   "WRIT150",
		" EE-109 ":  "EE",
		"":          "Unknown",
		"-101":      "Unknown",
	}
	for in, want := range cases {
		if got := DepartmentOf(in); got != want {
			t.Fatalf("DepartmentOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func sampleCourses() []model.Course {
	return Prepare([]model.Course{
		{ID: "1", Number: "CSCI-104", Title: "Data Structures", Instructor: "Ada Lovelace"},
		{ID: "2", Number: "MATH-225", Title: "Linear Algebra", Instructor: "Carl Gauss"},
		{ID: "3", Number: "CSCI-201", Title: "Principles of Software", Instructor: ""},
		{ID: "4", Number: "PHYS-151", Title: "Mechanics", Department: "Physics"},
	})
}

func TestPrepareAndDepartments(t *testing.T) {
	courses := sampleCourses()
	if courses[3].Department != "Physics" {
		t.Fatalf("stored department must win, got %q", courses[3].Department)
	}
	got := Departments(courses)
	want := []string{"CSCI", "MATH", "Physics"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Departments = %v, want %v", got, want)
	}
	if got := Departments(nil); len(got) != 0 {
		t.Fatalf("expected no departments, got %v", got)
	}
}

func TestFilter(t *testing.T) {
	courses := sampleCourses()
	cases := []struct {
		name       string
		search     string
		department string
		want       []string
	}{
		{"no filters", "", "", []string{"1", "2", "3", "4"}},
		{"all departments", "", "all", []string{"1", "2", "3", "4"}},
		{"number", "csci", "", []string{"1", "3"}},
		{"title case-insensitive", "LINEAR", "", []string{"2"}},
		{"instructor", "lovelace", "", []string{"1"}},
		{"department only", "", "CSCI", []string{"1", "3"}},
		{"search and department", "software", "CSCI", []string{"3"}},
		{"department mismatch", "linear", "CSCI", []string{}},
		{"department exact match", "", "csci", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := []string{}
			for _, c := range Filter(courses, tc.search, tc.department) {
				got = append(got, c.ID)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

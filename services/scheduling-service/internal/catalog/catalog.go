// Package catalog derives departments and filters a term's course list.
package catalog

import (
	"sort"
	"strings"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

// AllDepartments disables the department filter.
const AllDepartments = "all"

const unknownDepartment = "Unknown"

// DepartmentOf returns the prefix of a course number: "CSCI-104" -> "CSCI".
func DepartmentOf(number string) string {
	prefix, _, _ := strings.Cut(strings.TrimSpace(number), "-")
	if prefix == "" {
		return unknownDepartment
	}
	return prefix
}

// Prepare fills in missing departments.
func Prepare(courses []model.Course) []model.Course {
	out := make([]model.Course, len(courses))
	for i, c := range courses {
		if strings.TrimSpace(c.Department) == "" {
			c.Department = DepartmentOf(c.Number)
		}
		out[i] = c
	}
	return out
}

// Departments returns the sorted distinct departments of courses.
func Departments(courses []model.Course) []string {
	seen := make(map[string]struct{}, len(courses))
	out := make([]string, 0)
	for _, c := range courses {
		if _, ok := seen[c.Department]; ok {
			continue
		}
		seen[c.Department] = struct{}{}
		out = append(out, c.Department)
	}
	sort.Strings(out)
	return out
}

// Filter keeps courses whose number, title or instructor contains search (case-insensitive)
// and whose department matches exactly. Empty search and "all"/empty department match everything.
func Filter(courses []model.Course, search, department string) []model.Course {
	query := strings.ToLower(strings.TrimSpace(search))
	department = strings.TrimSpace(department)
	out := make([]model.Course, 0, len(courses))
	for _, c := range courses {
		if query != "" && !matches(c, query) {
			continue
		}
		if department != "" && department != AllDepartments && c.Department != department {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matches(c model.Course, query string) bool {
	return strings.Contains(strings.ToLower(c.Number), query) ||
		strings.Contains(strings.ToLower(c.Title), query) ||
		strings.Contains(strings.ToLower(c.Instructor), query)
}

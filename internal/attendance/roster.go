package attendance

import (
	"sort"
	"strings"

	"edutrack/internal/model"
)

// PageSize is the number of rows in dashboard and records tables.
const PageSize = 5

// Tally recomputes present and absent counts from the check-in list.
func Tally(total int, students []model.SessionStudent) (present, absent int) {
	for _, s := range students {
		if s.Status == model.Present {
			present++
		}
	}
	return present, total - present
}

// Rate is the share of expected students present, in percent.
func Rate(s model.AttendanceSession) int {
	if s.TotalStudents <= 0 {
		return 0
	}
	return int(float64(s.PresentStudents)/float64(s.TotalStudents)*100 + 0.5)
}

// Page is one page of a table.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// Paginate returns the 1-based page of items; out of range pages are clamped.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = PageSize
	}
	total := len(items)
	pages := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page[T]{Items: items[start:end], Page: page, TotalPages: pages, Total: total}
}

// FilterStudents keeps students whose name, matric number or department
// contains q, case-insensitively.
func FilterStudents(students []model.Student, q string) []model.Student {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return students
	}
	out := make([]model.Student, 0, len(students))
	for _, s := range students {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.MatriculationNumber), q) ||
			strings.Contains(strings.ToLower(s.Department), q) {
			out = append(out, s)
		}
	}
	return out
}

// SortHistory orders sessions newest first by date and start time.
func SortHistory(sessions []model.AttendanceSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a := sessions[i].Date + " " + sessions[i].TimeStart
		b := sessions[j].Date + " " + sessions[j].TimeStart
		return a > b
	})
}

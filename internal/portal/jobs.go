package portal

import (
	"strings"
	"time"
)

// DateLayout is the wire format of job deadlines.
const DateLayout = "2006-01-02"

// Listing is the part of a job the public listing rules look at.
type Listing struct {
	Title       string
	Department  string
	Description string
	Status      JobStatus
	Deadline    time.Time
}

// Today truncates now to its UTC calendar date.
func Today(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDeadline parses a YYYY-MM-DD date.
func ParseDeadline(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ValidationError{Field: "deadline", Message: "deadline must be a date in YYYY-MM-DD format"}
	}
	return t, nil
}

// MatchesSearch matches term case-insensitively against title, department
// and description. A blank term matches everything.
func MatchesSearch(l Listing, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(l.Title), term) ||
		strings.Contains(strings.ToLower(l.Department), term) ||
		strings.Contains(strings.ToLower(l.Description), term)
}

// IsListable: open, and the deadline is today or later. A deadline strictly
// before today drops the job from the listing.
func IsListable(l Listing, today time.Time) bool {
	if l.Status != JobOpen {
		return false
	}
	return !Today(l.Deadline).Before(Today(today))
}

// FilterOpenJobs keeps listable items matching term, preserving order.
func FilterOpenJobs[T any](items []T, listing func(T) Listing, term string, today time.Time) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		l := listing(it)
		if IsListable(l, today) && MatchesSearch(l, term) {
			out = append(out, it)
		}
	}
	return out
}

// HasApplied is the duplicate pre-check run before inserting an application.
func HasApplied(appliedJobIDs []uint, jobID uint) bool {
	for _, id := range appliedJobIDs {
		if id == jobID {
			return true
		}
	}
	return false
}

// Package portal holds the portal's domain rules: the document checklist,
// the application completeness check, upload validation and the job
// listing filters. Nothing in here touches the database or the network.
package portal

import (
	"fmt"
	"strings"
)

// Role is the profile role chosen at signup.
type Role string

const (
	RoleApplicant Role = "applicant"
	RoleHR        Role = "hr"
)

func (r Role) Valid() bool {
	return r == RoleApplicant || r == RoleHR
}

// ParseRole accepts the role names case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Message: fmt.Sprintf("role must be %q or %q", RoleApplicant, RoleHR)}
	}
	return r, nil
}

// EmploymentType of a job posting. Values keep their display casing.
type EmploymentType string

const (
	EmploymentFullTime EmploymentType = "Full-time"
	EmploymentPartTime EmploymentType = "Part-time"
	EmploymentContract EmploymentType = "Contract"
)

var employmentTypes = []EmploymentType{EmploymentFullTime, EmploymentPartTime, EmploymentContract}

func (e EmploymentType) Valid() bool {
	for _, v := range employmentTypes {
		if e == v {
			return true
		}
	}
	return false
}

// ParseEmploymentType matches case-insensitively but returns the canonical spelling.
func ParseEmploymentType(s string) (EmploymentType, error) {
	s = strings.TrimSpace(s)
	for _, v := range employmentTypes {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", &ValidationError{Field: "employment_type", Message: "employment type must be Full-time, Part-time or Contract"}
}

// JobStatus of a posting. Only open postings are listed publicly.
type JobStatus string

const (
	JobOpen   JobStatus = "open"
	JobClosed JobStatus = "closed"
	JobDraft  JobStatus = "draft"
)

func (s JobStatus) Valid() bool {
	return s == JobOpen || s == JobClosed || s == JobDraft
}

func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Message: "job status must be open, closed or draft"}
	}
	return st, nil
}

// ApplicationStatus is set by HR. Any value of the enumeration may follow any other.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationReviewing   ApplicationStatus = "reviewing"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationAccepted    ApplicationStatus = "accepted"
)

// ApplicationStatuses lists the statuses in dashboard order.
var ApplicationStatuses = []ApplicationStatus{
	ApplicationPending,
	ApplicationReviewing,
	ApplicationShortlisted,
	ApplicationRejected,
	ApplicationAccepted,
}

func (s ApplicationStatus) Valid() bool {
	for _, v := range ApplicationStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Message: "status must be pending, reviewing, shortlisted, rejected or accepted"}
	}
	return st, nil
}

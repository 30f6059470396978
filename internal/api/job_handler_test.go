package api

import (
	"net/http"
	"testing"
	"time"

	"govjobs/internal/database"
	"govjobs/internal/portal"
)

func newTestJobHandler(t *testing.T) *JobHandler {
	t.Helper()
	h := NewJobHandler(newTestDB(t), nil)
	h.now = func() time.Time { return fixedNow }
	return h
}

func listOpenTitles(t *testing.T, h *JobHandler, query string) []string {
	t.Helper()
	c, w := newTestContext(http.MethodGet, "/v1/jobs"+query, nil, 0)
	h.ListOpenJobs(c)
	assertStatus(t, w, http.StatusOK)

	var resp struct {
		Items []jobResponse `json:"items"`
	}
	decode(t, w, &resp)
	titles := make([]string, 0, len(resp.Items))
	for _, j := range resp.Items {
		titles = append(titles, j.Title)
	}
	return titles
}

func TestListOpenJobs_DeadlineAndStatus(t *testing.T) {
	h := newTestJobHandler(t)
	hr := seedProfile(t, h.db, "hr@agency.gov", portal.RoleHR)
	today := portal.Today(fixedNow)

	seedJob(t, h.db, hr.ID, "Due Today", portal.JobOpen, today)
	seedJob(t, h.db, hr.ID, "Due Yesterday", portal.JobOpen, today.AddDate(0, 0, -1))
	seedJob(t, h.db, hr.ID, "Closed Posting", portal.JobClosed, today.AddDate(0, 1, 0))
	seedJob(t, h.db, hr.ID, "Draft Posting", portal.JobDraft, today.AddDate(0, 1, 0))
	seedJob(t, h.db, hr.ID, "Next Month", portal.JobOpen, today.AddDate(0, 1, 0))

	titles := listOpenTitles(t, h, "")
	if len(titles) != 2 {
		t.Fatalf("expected 2 listable jobs, got %v", titles)
	}
	for _, title := range titles {
		if title != "Due Today" && title != "Next Month" {
			t.Fatalf("unexpected job %q listed", title)
		}
	}
}

func TestListOpenJobs_SearchIsCaseInsensitive(t *testing.T) {
	h := newTestJobHandler(t)
	hr := seedProfile(t, h.db, "hr@agency.gov", portal.RoleHR)
	deadline := fixedNow.AddDate(0, 0, 10)

	seedJob(t, h.db, hr.ID, "Civil Engineer II", portal.JobOpen, deadline)
	nurse := seedJob(t, h.db, hr.ID, "Nurse I", portal.JobOpen, deadline)
	nurse.Department = "Provincial Health Office"
	h.db.Save(&nurse)

	if got := listOpenTitles(t, h, "?q=ENGINEER"); len(got) != 1 || got[0] != "Civil Engineer II" {
		t.Fatalf("title search: %v", got)
	}
	if got := listOpenTitles(t, h, "?q=health"); len(got) != 1 || got[0] != "Nurse I" {
		t.Fatalf("department search: %v", got)
	}
	if got := listOpenTitles(t, h, "?q=handles+nurse"); len(got) != 1 {
		t.Fatalf("description search: %v", got)
	}
	if got := listOpenTitles(t, h, "?q=%20%20"); len(got) != 2 {
		t.Fatalf("blank search should match all: %v", got)
	}
}

func TestGetJob_HidesUnlistable(t *testing.T) {
	h := newTestJobHandler(t)
	hr := seedProfile(t, h.db, "hr@agency.gov", portal.RoleHR)
	open := seedJob(t, h.db, hr.ID, "Open", portal.JobOpen, fixedNow)
	expired := seedJob(t, h.db, hr.ID, "Expired", portal.JobOpen, fixedNow.AddDate(0, 0, -2))

	c, w := newTestContext(http.MethodGet, "/", nil, 0, idParamOf("id", open.ID))
	h.GetJob(c)
	assertStatus(t, w, http.StatusOK)

	var resp jobResponse
	decode(t, w, &resp)
	if resp.Deadline != fixedNow.Format(portal.DateLayout) {
		t.Fatalf("unexpected deadline %q", resp.Deadline)
	}

	c, w = newTestContext(http.MethodGet, "/", nil, 0, idParamOf("id", expired.ID))
	h.GetJob(c)
	assertStatus(t, w, http.StatusNotFound)
}

func TestHRJobLifecycle(t *testing.T) {
	h := newTestJobHandler(t)
	hr := seedProfile(t, h.db, "hr@agency.gov", portal.RoleHR)
	otherHR := seedProfile(t, h.db, "hr2@agency.gov", portal.RoleHR)

	create := map[string]any{
		"title":           "Records Officer",
		"department":      "Records Section",
		"description":     "Maintains records.",
		"location":        "Quezon City",
		"employment_type": "full-time",
		"deadline":        "2026-11-30",
	}
	c, w := newTestContext(http.MethodPost, "/", jsonBody(t, create), hr.ID)
	h.CreateJob(c)
	assertStatus(t, w, http.StatusCreated)

	var created jobResponse
	decode(t, w, &created)
	if created.Status != string(portal.JobOpen) || created.EmploymentType != string(portal.EmploymentFullTime) {
		t.Fatalf("unexpected created job %+v", created)
	}

	create["deadline"] = "30/11/2026"
	c, w = newTestContext(http.MethodPost, "/", jsonBody(t, create), hr.ID)
	h.CreateJob(c)
	assertStatus(t, w, http.StatusUnprocessableEntity)

	update := map[string]any{
		"title":           "Records Officer III",
		"department":      "Records Section",
		"description":     "Maintains records.",
		"location":        "Quezon City",
		"employment_type": "Contract",
		"deadline":        "2026-12-15",
		"status":          "closed",
	}
	c, w = newTestContext(http.MethodPut, "/", jsonBody(t, update), otherHR.ID, idParamOf("id", created.ID))
	h.UpdateJob(c)
	assertStatus(t, w, http.StatusForbidden)

	c, w = newTestContext(http.MethodPut, "/", jsonBody(t, update), hr.ID, idParamOf("id", created.ID))
	h.UpdateJob(c)
	assertStatus(t, w, http.StatusOK)

	var updated jobResponse
	decode(t, w, &updated)
	if updated.Title != "Records Officer III" || updated.Status != "closed" || updated.Deadline != "2026-12-15" {
		t.Fatalf("unexpected updated job %+v", updated)
	}

	applicant := seedProfile(t, h.db, "ana@example.com", portal.RoleApplicant)
	app := database.Application{JobID: created.ID, ApplicantID: applicant.ID, Status: "pending", AppliedAt: fixedNow}
	if err := h.db.Create(&app).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}

	c, w = newTestContext(http.MethodGet, "/", nil, hr.ID)
	h.ListOwnJobs(c)
	assertStatus(t, w, http.StatusOK)
	var own struct {
		Items []jobResponse `json:"items"`
	}
	decode(t, w, &own)
	if len(own.Items) != 1 || own.Items[0].ApplicationCount == nil || *own.Items[0].ApplicationCount != 1 {
		t.Fatalf("unexpected own jobs %+v", own.Items)
	}

	c, w = newTestContext(http.MethodDelete, "/", nil, hr.ID, idParamOf("id", created.ID))
	h.DeleteJob(c)
	flushStatus(c)
	assertStatus(t, w, http.StatusNoContent)

	var remaining int64
	h.db.Unscoped().Model(&database.Application{}).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected applications removed with job, %d left", remaining)
	}
}

package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"govjobs/internal/database"
	"govjobs/internal/metrics"
	"govjobs/internal/portal"
)

// ApplicationHandler 处理申请人的申请提交、预检与列表。
type ApplicationHandler struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewApplicationHandler 构造申请处理器。
func NewApplicationHandler(db *gorm.DB, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{db: db, logger: logger, now: time.Now}
}

type applicationResponse struct {
	ID          uint             `json:"id"`
	JobID       uint             `json:"job_id"`
	ApplicantID uint             `json:"applicant_id"`
	CoverLetter string           `json:"cover_letter"`
	DocumentIDs []uint           `json:"document_ids"`
	Status      string           `json:"status"`
	IsComplete  bool             `json:"is_complete"`
	SubmittedAt *time.Time       `json:"submitted_at"`
	AppliedAt   time.Time        `json:"applied_at"`
	HasSummary  bool             `json:"has_summary"`
	Job         *jobResponse     `json:"job,omitempty"`
	Applicant   *profileResponse `json:"applicant,omitempty"`
}

func newApplicationResponse(a database.Application) applicationResponse {
	resp := applicationResponse{
		ID:          a.ID,
		JobID:       a.JobID,
		ApplicantID: a.ApplicantID,
		CoverLetter: a.CoverLetter,
		DocumentIDs: a.DocumentIDList(),
		Status:      a.Status,
		IsComplete:  a.IsComplete,
		SubmittedAt: a.SubmittedAt,
		AppliedAt:   a.AppliedAt,
		HasSummary:  a.SummaryObjectKey != "",
	}
	if a.Job.ID != 0 {
		job := newJobResponse(a.Job)
		resp.Job = &job
	}
	if a.Applicant.ID != 0 {
		applicant := newProfileResponse(a.Applicant)
		resp.Applicant = &applicant
	}
	return resp
}

type submitApplicationRequest struct {
	JobID       uint   `json:"job_id" binding:"required"`
	CoverLetter string `json:"cover_letter"`
	DocumentIDs []uint `json:"document_ids"`
}

type checkApplicationRequest struct {
	JobID       uint   `json:"job_id"`
	CoverLetter string `json:"cover_letter"`
	DocumentIDs []uint `json:"document_ids"`
}

// selectDocuments 决定随申请提交的材料。
// 未指定时每个类别取最早上传的一份；指定时只能选择自己的材料。
func selectDocuments(owned []database.Document, requested []uint) (map[portal.DocumentType]uint, []uint, error) {
	if len(requested) == 0 {
		selected := portal.SelectPerCategory(toUploaded(owned))
		ids := make([]uint, 0, len(selected))
		for _, id := range selected {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return selected, ids, nil
	}

	byID := make(map[uint]database.Document, len(owned))
	for _, d := range owned {
		byID[d.ID] = d
	}
	seen := make(map[uint]bool, len(requested))
	chosen := make([]database.Document, 0, len(requested))
	ids := make([]uint, 0, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		d, ok := byID[id]
		if !ok {
			return nil, nil, &portal.ValidationError{Field: "document_ids", Message: fmt.Sprintf("document %d not found", id)}
		}
		chosen = append(chosen, d)
		ids = append(ids, id)
	}
	return portal.SelectPerCategory(toUploaded(chosen)), ids, nil
}

// SubmitApplication 提交申请：岗位必须开放、不得重复申请、材料与求职信必须齐全。
func (h *ApplicationHandler) SubmitApplication(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req submitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("job_id", uint64(req.JobID)),
	)

	var job database.Job
	if err := h.db.WithContext(ctx).First(&job, req.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		logger.Error("load job", slog.String("error", err.Error()))
		Internal(c, "failed to load job")
		return
	}
	if !portal.IsListable(jobListing(job), portal.Today(h.now())) {
		Unprocessable(c, portal.ErrJobNotOpen)
		return
	}

	applied, err := h.appliedJobIDs(c, userID)
	if err != nil {
		logger.Error("load applied jobs", slog.String("error", err.Error()))
		Internal(c, "failed to check existing applications")
		return
	}
	if portal.HasApplied(applied, job.ID) {
		logger.Info("duplicate application rejected")
		Conflict(c, portal.ErrAlreadyApplied.Error())
		return
	}

	owned, err := loadDocuments(c, h.db, userID)
	if err != nil {
		logger.Error("load documents", slog.String("error", err.Error()))
		Internal(c, "failed to load documents")
		return
	}
	selected, docIDs, err := selectDocuments(owned, req.DocumentIDs)
	if err != nil {
		Unprocessable(c, err)
		return
	}

	completeness := portal.CheckCompleteness(portal.Catalog(), selected, req.CoverLetter)
	if !completeness.Complete {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        completeness.Err().Error(),
			"completeness": completeness,
		})
		return
	}

	now := h.now().UTC()
	app := database.Application{
		JobID:       job.ID,
		ApplicantID: userID,
		CoverLetter: req.CoverLetter,
		DocumentIDs: database.EncodeDocumentIDs(docIDs),
		Status:      string(portal.ApplicationPending),
		IsComplete:  true,
		SubmittedAt: &now,
		AppliedAt:   now,
	}
	if err := h.db.WithContext(ctx).Create(&app).Error; err != nil {
		// 并发提交时唯一索引兜底。
		if again, lookupErr := h.appliedJobIDs(c, userID); lookupErr == nil && portal.HasApplied(again, job.ID) {
			Conflict(c, portal.ErrAlreadyApplied.Error())
			return
		}
		logger.Error("create application", slog.String("error", err.Error()))
		Internal(c, "failed to submit application")
		return
	}

	app.Job = job
	metrics.ApplicationSubmitted()
	logger.Info("application submitted",
		slog.Uint64("application_id", uint64(app.ID)),
		slog.Int("documents", len(docIDs)),
	)
	c.JSON(http.StatusCreated, newApplicationResponse(app))
}

// CheckApplication 只做完整性预检，不写入任何数据。
func (h *ApplicationHandler) CheckApplication(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req checkApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	owned, err := loadDocuments(c, h.db, userID)
	if err != nil {
		logger.Error("load documents", slog.String("error", err.Error()))
		Internal(c, "failed to load documents")
		return
	}
	selected, docIDs, err := selectDocuments(owned, req.DocumentIDs)
	if err != nil {
		Unprocessable(c, err)
		return
	}

	completeness := portal.CheckCompleteness(portal.Catalog(), selected, req.CoverLetter)
	body := gin.H{
		"completeness": completeness,
		"document_ids": docIDs,
	}
	if req.JobID != 0 {
		applied, err := h.appliedJobIDs(c, userID)
		if err != nil {
			logger.Error("load applied jobs", slog.String("error", err.Error()))
			Internal(c, "failed to check existing applications")
			return
		}
		body["already_applied"] = portal.HasApplied(applied, req.JobID)
	}
	c.JSON(http.StatusOK, body)
}

// ListOwnApplications 返回申请人自己的申请及岗位信息，最新在前。
func (h *ApplicationHandler) ListOwnApplications(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var apps []database.Application
	if err := h.db.WithContext(c.Request.Context()).
		Preload("Job").
		Where("applicant_id = ?", userID).
		Order("applied_at DESC").
		Find(&apps).Error; err != nil {
		requestLogger(c, h.logger).Error("list own applications", slog.String("error", err.Error()))
		Internal(c, "failed to list applications")
		return
	}

	items := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		items = append(items, newApplicationResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ApplicationHandler) appliedJobIDs(c *gin.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := h.db.WithContext(c.Request.Context()).
		Model(&database.Application{}).
		Where("applicant_id = ?", userID).
		Pluck("job_id", &ids).Error
	return ids, err
}

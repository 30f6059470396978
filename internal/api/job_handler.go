package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"govjobs/internal/database"
	"govjobs/internal/portal"
)

// JobHandler 提供公开岗位列表以及 HR 的岗位管理。
type JobHandler struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewJobHandler 构造岗位处理器。
func NewJobHandler(db *gorm.DB, logger *slog.Logger) *JobHandler {
	return &JobHandler{db: db, logger: logger, now: time.Now}
}

type jobResponse struct {
	ID               uint      `json:"id"`
	Title            string    `json:"title"`
	Department       string    `json:"department"`
	Description      string    `json:"description"`
	Requirements     string    `json:"requirements"`
	Location         string    `json:"location"`
	SalaryRange      string    `json:"salary_range"`
	EmploymentType   string    `json:"employment_type"`
	Deadline         string    `json:"deadline"`
	Status           string    `json:"status"`
	PostedBy         uint      `json:"posted_by"`
	CreatedAt        time.Time `json:"created_at"`
	ApplicationCount *int64    `json:"application_count,omitempty"`
}

func newJobResponse(j database.Job) jobResponse {
	return jobResponse{
		ID:             j.ID,
		Title:          j.Title,
		Department:     j.Department,
		Description:    j.Description,
		Requirements:   j.Requirements,
		Location:       j.Location,
		SalaryRange:    j.SalaryRange,
		EmploymentType: j.EmploymentType,
		Deadline:       j.Deadline.UTC().Format(portal.DateLayout),
		Status:         j.Status,
		PostedBy:       j.PostedBy,
		CreatedAt:      j.CreatedAt,
	}
}

func jobListing(j database.Job) portal.Listing {
	return portal.Listing{
		Title:       j.Title,
		Department:  j.Department,
		Description: j.Description,
		Status:      portal.JobStatus(j.Status),
		Deadline:    j.Deadline,
	}
}

// ListOpenJobs 返回公开可见的岗位，最新在前，可按 q 搜索。
func (h *JobHandler) ListOpenJobs(c *gin.Context) {
	var jobs []database.Job
	if err := h.db.WithContext(c.Request.Context()).
		Where("status = ?", string(portal.JobOpen)).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		requestLogger(c, h.logger).Error("list open jobs", slog.String("error", err.Error()))
		Internal(c, "failed to list jobs")
		return
	}

	// 截止日期与搜索词在内存中统一按同一规则判断。
	visible := portal.FilterOpenJobs(jobs, jobListing, c.Query("q"), portal.Today(h.now()))

	items := make([]jobResponse, 0, len(visible))
	for _, j := range visible {
		items = append(items, newJobResponse(j))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetJob 返回单个公开岗位，已关闭或已过期的岗位视为不存在。
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var job database.Job
	if err := h.db.WithContext(c.Request.Context()).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		requestLogger(c, h.logger).Error("load job", slog.String("error", err.Error()))
		Internal(c, "failed to load job")
		return
	}
	if !portal.IsListable(jobListing(job), portal.Today(h.now())) {
		NotFound(c, "job not found")
		return
	}

	c.JSON(http.StatusOK, newJobResponse(job))
}

type jobRequest struct {
	Title          string `json:"title" binding:"required,max=255"`
	Department     string `json:"department" binding:"required,max=255"`
	Description    string `json:"description" binding:"required"`
	Requirements   string `json:"requirements"`
	Location       string `json:"location" binding:"required,max=255"`
	SalaryRange    string `json:"salary_range" binding:"max=128"`
	EmploymentType string `json:"employment_type" binding:"required"`
	Deadline       string `json:"deadline" binding:"required"`
	Status         string `json:"status"`
}

// apply 校验请求并写入 job，不触碰 ID 与发布人。
func (r jobRequest) apply(job *database.Job) error {
	employment, err := portal.ParseEmploymentType(r.EmploymentType)
	if err != nil {
		return err
	}
	deadline, err := portal.ParseDeadline(r.Deadline)
	if err != nil {
		return err
	}
	status := portal.JobOpen
	if strings.TrimSpace(r.Status) != "" {
		if status, err = portal.ParseJobStatus(r.Status); err != nil {
			return err
		}
	}
	for _, f := range []struct{ name, value string }{
		{"title", r.Title},
		{"department", r.Department},
		{"description", r.Description},
		{"location", r.Location},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &portal.ValidationError{Field: f.name, Message: "must not be blank"}
		}
	}

	job.Title = strings.TrimSpace(r.Title)
	job.Department = strings.TrimSpace(r.Department)
	job.Description = strings.TrimSpace(r.Description)
	job.Requirements = strings.TrimSpace(r.Requirements)
	job.Location = strings.TrimSpace(r.Location)
	job.SalaryRange = strings.TrimSpace(r.SalaryRange)
	job.EmploymentType = string(employment)
	job.Deadline = deadline
	job.Status = string(status)
	return nil
}

// ListOwnJobs 返回当前 HR 发布的岗位及各自的申请数。
func (h *JobHandler) ListOwnJobs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var jobs []database.Job
	if err := h.db.WithContext(ctx).
		Where("posted_by = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		logger.Error("list own jobs", slog.String("error", err.Error()))
		Internal(c, "failed to list jobs")
		return
	}

	counts := make(map[uint]int64, len(jobs))
	if len(jobs) > 0 {
		ids := make([]uint, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		var rows []struct {
			JobID uint
			Total int64
		}
		if err := h.db.WithContext(ctx).
			Model(&database.Application{}).
			Select("job_id, COUNT(*) AS total").
			Where("job_id IN ?", ids).
			Group("job_id").
			Scan(&rows).Error; err != nil {
			logger.Error("count applications", slog.String("error", err.Error()))
			Internal(c, "failed to list jobs")
			return
		}
		for _, r := range rows {
			counts[r.JobID] = r.Total
		}
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp := newJobResponse(j)
		total := counts[j.ID]
		resp.ApplicationCount = &total
		items = append(items, resp)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateJob 发布新岗位，状态缺省为 open。
func (h *JobHandler) CreateJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	job := database.Job{PostedBy: userID}
	if err := req.apply(&job); err != nil {
		Unprocessable(c, err)
		return
	}

	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))
	if err := h.db.WithContext(c.Request.Context()).Create(&job).Error; err != nil {
		logger.Error("create job", slog.String("error", err.Error()))
		Internal(c, "failed to create job")
		return
	}

	logger.Info("job created", slog.Uint64("job_id", uint64(job.ID)))
	c.JSON(http.StatusCreated, newJobResponse(job))
}

// UpdateJob 整体更新岗位，仅发布人可操作。
func (h *JobHandler) UpdateJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	job, ok := h.findOwnJob(c, userID, jobID)
	if !ok {
		return
	}
	if err := req.apply(&job); err != nil {
		Unprocessable(c, err)
		return
	}

	logger := requestLogger(c, h.logger).With(slog.Uint64("job_id", uint64(jobID)))
	if err := h.db.WithContext(c.Request.Context()).Save(&job).Error; err != nil {
		logger.Error("update job", slog.String("error", err.Error()))
		Internal(c, "failed to update job")
		return
	}

	logger.Info("job updated", slog.String("status", job.Status))
	c.JSON(http.StatusOK, newJobResponse(job))
}

// DeleteJob 删除岗位及其全部申请。
func (h *JobHandler) DeleteJob(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}

	job, ok := h.findOwnJob(c, userID, jobID)
	if !ok {
		return
	}

	logger := requestLogger(c, h.logger).With(slog.Uint64("job_id", uint64(jobID)))
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("job_id = ?", job.ID).Delete(&database.Application{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&job).Error
	})
	if err != nil {
		logger.Error("delete job", slog.String("error", err.Error()))
		Internal(c, "failed to delete job")
		return
	}

	logger.Info("job deleted")
	c.Status(http.StatusNoContent)
}

func (h *JobHandler) findOwnJob(c *gin.Context, userID, jobID uint) (database.Job, bool) {
	var job database.Job
	if err := h.db.WithContext(c.Request.Context()).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return job, false
		}
		requestLogger(c, h.logger).Error("load job", slog.String("error", err.Error()))
		Internal(c, "failed to load job")
		return job, false
	}
	if job.PostedBy != userID {
		Forbidden(c, "only the HR officer who posted this job can change it")
		return job, false
	}
	return job, true
}

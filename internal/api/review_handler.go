package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"govjobs/internal/api/middleware"
	"govjobs/internal/database"
	"govjobs/internal/errcode"
	"govjobs/internal/export"
	"govjobs/internal/metrics"
	"govjobs/internal/notify"
	"govjobs/internal/portal"
	"govjobs/internal/tasks"
)

// ReviewHandler 提供 HR 审阅申请所需的接口。
// HR 只能看到自己发布岗位下的申请。
type ReviewHandler struct {
	db              *gorm.DB
	storage         objectStorage
	notifier        statusNotifier
	queue           taskEnqueuer
	logger          *slog.Logger
	summaryMaxRetry int
	now             func() time.Time
}

// NewReviewHandler 构造审阅处理器。notifier 或 queue 为 nil 时对应功能关闭。
func NewReviewHandler(db *gorm.DB, storageClient objectStorage, notifier statusNotifier, queue taskEnqueuer, logger *slog.Logger, summaryMaxRetry int) *ReviewHandler {
	return &ReviewHandler{
		db:              db,
		storage:         storageClient,
		notifier:        notifier,
		queue:           queue,
		logger:          logger,
		summaryMaxRetry: summaryMaxRetry,
		now:             time.Now,
	}
}

type applicationFilter struct {
	status string
	jobID  uint
}

func parseApplicationFilter(c *gin.Context) (applicationFilter, error) {
	var f applicationFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		st, err := portal.ParseApplicationStatus(raw)
		if err != nil {
			return f, err
		}
		f.status = string(st)
	}
	if raw := strings.TrimSpace(c.Query("job_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return f, &portal.ValidationError{Field: "job_id", Message: "job_id must be a positive integer"}
		}
		f.jobID = uint(id)
	}
	return f, nil
}

// reviewerApplications 返回限定在该 HR 岗位范围内的申请查询。
func (h *ReviewHandler) reviewerApplications(c *gin.Context, hrID uint, f applicationFilter) *gorm.DB {
	q := h.db.WithContext(c.Request.Context()).
		Model(&database.Application{}).
		Joins("JOIN jobs ON jobs.id = applications.job_id").
		Where("jobs.posted_by = ?", hrID)
	if f.status != "" {
		q = q.Where("applications.status = ?", f.status)
	}
	if f.jobID != 0 {
		q = q.Where("applications.job_id = ?", f.jobID)
	}
	return q
}

// ListApplications 按状态与岗位筛选申请，附带岗位与申请人信息。
func (h *ReviewHandler) ListApplications(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	filter, err := parseApplicationFilter(c)
	if err != nil {
		Unprocessable(c, err)
		return
	}

	var apps []database.Application
	if err := h.reviewerApplications(c, userID, filter).
		Preload("Job").
		Preload("Applicant").
		Order("applications.applied_at DESC").
		Find(&apps).Error; err != nil {
		requestLogger(c, h.logger).Error("list applications", slog.String("error", err.Error()))
		Internal(c, "failed to list applications")
		return
	}

	items := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		items = append(items, newApplicationResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 修改申请状态并通知申请人。状态之间可任意切换。
func (h *ReviewHandler) UpdateStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	appID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	status, err := portal.ParseApplicationStatus(req.Status)
	if err != nil {
		Unprocessable(c, err)
		return
	}

	app, ok := h.findReviewableApplication(c, userID, appID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(
		slog.Uint64("application_id", uint64(app.ID)),
		slog.String("from", app.Status),
		slog.String("to", string(status)),
	)

	if err := h.db.WithContext(ctx).
		Model(&database.Application{}).
		Where("id = ?", app.ID).
		Update("status", string(status)).Error; err != nil {
		logger.Error("update application status", slog.String("error", err.Error()))
		Internal(c, "failed to update status")
		return
	}
	app.Status = string(status)
	metrics.StatusChanged(app.Status)
	logger.Info("application status updated")

	if h.notifier != nil {
		msg := notify.Message{
			Event:         notify.EventStatusChanged,
			ApplicationID: app.ID,
			JobID:         app.JobID,
			JobTitle:      app.Job.Title,
			Status:        app.Status,
			CorrelationID: middleware.GetCorrelationID(c),
			ErrorCode:     errcode.OK,
		}
		// 通知失败不影响状态更新结果。
		if err := h.notifier.Publish(ctx, app.ApplicantID, msg); err != nil {
			logger.Warn("publish status notification", slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusOK, newApplicationResponse(app))
}

// GetDocumentLink 为申请所附材料签发限时链接。
func (h *ReviewHandler) GetDocumentLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	appID, ok := idParam(c, "id")
	if !ok {
		return
	}
	docID, ok := idParam(c, "docID")
	if !ok {
		return
	}

	app, ok := h.findReviewableApplication(c, userID, appID)
	if !ok {
		return
	}
	if !slices.Contains(app.DocumentIDList(), docID) {
		NotFound(c, "document not attached to this application")
		return
	}

	logger := requestLogger(c, h.logger).With(
		slog.Uint64("application_id", uint64(app.ID)),
		slog.Uint64("document_id", uint64(docID)),
	)

	var doc database.Document
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", docID, app.ApplicantID).
		First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document no longer available")
			return
		}
		logger.Error("load document", slog.String("error", err.Error()))
		Internal(c, "failed to load document")
		return
	}
	if !isValidDocumentObjectKey(app.ApplicantID, doc.ObjectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GenerateDownloadURL(c.Request.Context(), doc.ObjectKey, downloadLinkTTL, doc.Name)
	if err != nil {
		logger.Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL, "expires_in": int(downloadLinkTTL.Seconds())})
}

// RequestSummary 将申请摘要 PDF 的生成放入队列，完成后通过 WebSocket 通知。
func (h *ReviewHandler) RequestSummary(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	appID, ok := idParam(c, "id")
	if !ok {
		return
	}
	if h.queue == nil {
		Error(c, http.StatusServiceUnavailable, "summary generation unavailable")
		return
	}

	app, ok := h.findReviewableApplication(c, userID, appID)
	if !ok {
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	logger := requestLogger(c, h.logger).With(slog.Uint64("application_id", uint64(app.ID)))

	task, err := tasks.NewApplicationSummaryTask(app.ID, userID, correlationID)
	if err != nil {
		logger.Error("build summary task", slog.String("error", err.Error()))
		Internal(c, "failed to queue summary")
		return
	}
	opts := []asynq.Option{asynq.Timeout(2 * time.Minute)}
	if h.summaryMaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(h.summaryMaxRetry))
	}
	info, err := h.queue.EnqueueContext(c.Request.Context(), task, opts...)
	if err != nil {
		logger.Error("enqueue summary task", slog.String("error", err.Error()))
		Internal(c, "failed to queue summary")
		return
	}

	logger.Info("summary task enqueued", slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "correlation_id": correlationID})
}

// GetSummaryLink 返回已生成摘要的下载链接。
func (h *ReviewHandler) GetSummaryLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	appID, ok := idParam(c, "id")
	if !ok {
		return
	}

	app, ok := h.findReviewableApplication(c, userID, appID)
	if !ok {
		return
	}
	if app.SummaryObjectKey == "" {
		NotFound(c, "summary not generated yet")
		return
	}

	filename := fmt.Sprintf("application-%d-summary.pdf", app.ID)
	signedURL, err := h.storage.GenerateDownloadURL(c.Request.Context(), app.SummaryObjectKey, downloadLinkTTL, filename)
	if err != nil {
		requestLogger(c, h.logger).Error("generate summary url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL, "expires_in": int(downloadLinkTTL.Seconds())})
}

// ExportApplications 以 XLSX 导出筛选后的申请。
func (h *ReviewHandler) ExportApplications(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	filter, err := parseApplicationFilter(c)
	if err != nil {
		Unprocessable(c, err)
		return
	}

	logger := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var apps []database.Application
	if err := h.reviewerApplications(c, userID, filter).
		Preload("Job").
		Preload("Applicant").
		Order("applications.applied_at DESC").
		Find(&apps).Error; err != nil {
		logger.Error("load applications for export", slog.String("error", err.Error()))
		Internal(c, "failed to export applications")
		return
	}

	rows := make([]export.ApplicationRow, 0, len(apps))
	for _, a := range apps {
		rows = append(rows, export.ApplicationRow{
			ApplicationID:  a.ID,
			AppliedAt:      a.AppliedAt,
			JobTitle:       a.Job.Title,
			Department:     a.Job.Department,
			ApplicantName:  a.Applicant.FullName,
			ApplicantEmail: a.Applicant.Email,
			ApplicantPhone: a.Applicant.Phone,
			Status:         a.Status,
			IsComplete:     a.IsComplete,
			DocumentCount:  len(a.DocumentIDList()),
			CoverLetter:    a.CoverLetter,
		})
	}

	buf, err := export.Workbook(rows)
	if err != nil {
		logger.Error("render workbook", slog.String("error", err.Error()))
		Internal(c, "failed to export applications")
		return
	}

	logger.Info("applications exported", slog.Int("rows", len(rows)))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(h.now())))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (h *ReviewHandler) findReviewableApplication(c *gin.Context, hrID, appID uint) (database.Application, bool) {
	var app database.Application
	if err := h.db.WithContext(c.Request.Context()).Preload("Job").First(&app, appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return app, false
		}
		requestLogger(c, h.logger).Error("load application", slog.String("error", err.Error()))
		Internal(c, "failed to load application")
		return app, false
	}
	if app.Job.PostedBy != hrID {
		Forbidden(c, "application belongs to another HR officer's job")
		return app, false
	}
	return app, true
}

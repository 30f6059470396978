package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"govjobs/internal/database"
	"govjobs/internal/errcode"
	"govjobs/internal/notify"
	"govjobs/internal/portal"
	"govjobs/internal/storage"
	"govjobs/internal/tasks"
)

type pdfRenderer interface {
	Render(ctx context.Context, htmlContent string) ([]byte, error)
}

type objectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

type publisher interface {
	Publish(ctx context.Context, userID uint, msg notify.Message) error
}

// SummaryTaskHandler 消费申请摘要任务：渲染 HTML、打印 PDF、上传并通知 HR。
type SummaryTaskHandler struct {
	db        *gorm.DB
	storage   objectUploader
	renderer  pdfRenderer
	publisher publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSummaryTaskHandler 创建任务处理器。
func NewSummaryTaskHandler(db *gorm.DB, storageClient objectUploader, renderer pdfRenderer, pub publisher, logger *slog.Logger) *SummaryTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryTaskHandler{
		db:        db,
		storage:   storageClient,
		renderer:  renderer,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *SummaryTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.ApplicationSummaryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("application_id", uint64(payload.ApplicationID)),
		slog.Uint64("requested_by", uint64(payload.RequestedBy)),
	)
	log.Info("starting application summary task")

	var app database.Application
	if err := h.db.WithContext(ctx).
		Preload("Job").
		Preload("Applicant").
		First(&app, payload.ApplicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("application not found, skipping task")
			return nil
		}
		log.Error("query application failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		msg := notify.Message{
			Event:         notify.EventError,
			ApplicationID: app.ID,
			JobID:         app.JobID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publisher.Publish(ctx, payload.RequestedBy, msg); err != nil {
			log.Error("publish summary error notification failed", slog.Any("error", err))
		}
	}()

	view, err := h.buildView(ctx, app)
	if err != nil {
		log.Error("build summary view failed", slog.Any("error", err))
		return err
	}

	html, err := RenderSummaryHTML(view)
	if err != nil {
		return err
	}

	pdfBytes, err := h.renderer.Render(ctx, html)
	if err != nil {
		log.Error("render summary pdf failed", slog.Any("error", err))
		return err
	}
	if !portal.LooksLikePDF(pdfBytes) {
		return errors.New("renderer returned non-pdf output")
	}

	objectName := storage.SummaryObjectKey(app.JobID, app.ID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), portal.PDFMIMEType); err != nil {
		log.Error("upload summary to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).
		Model(&database.Application{}).
		Where("id = ?", app.ID).
		Update("summary_object_key", objectName).Error; err != nil {
		log.Error("update application summary key failed", slog.Any("error", err))
		return err
	}

	msg := notify.Message{
		Event:         notify.EventSummaryReady,
		ApplicationID: app.ID,
		JobID:         app.JobID,
		JobTitle:      app.Job.Title,
		Status:        app.Status,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.publisher.Publish(ctx, payload.RequestedBy, msg); err != nil {
		// 摘要已落盘，通知失败不再重试整个任务。
		log.Warn("publish summary ready notification failed", slog.Any("error", err))
	}

	log.Info("application summary generated",
		slog.String("object_key", objectName),
		slog.Int("bytes", len(pdfBytes)),
	)
	return nil
}

func (h *SummaryTaskHandler) buildView(ctx context.Context, app database.Application) (SummaryView, error) {
	ids := app.DocumentIDList()
	var docs []database.Document
	if len(ids) > 0 {
		if err := h.db.WithContext(ctx).
			Where("id IN ? AND user_id = ?", ids, app.ApplicantID).
			Order("created_at ASC, id ASC").
			Find(&docs).Error; err != nil {
			return SummaryView{}, fmt.Errorf("load attached documents: %w", err)
		}
	}

	uploaded := make([]portal.UploadedDocument, 0, len(docs))
	attachments := make([]SummaryAttachment, 0, len(docs))
	for _, d := range docs {
		typ := portal.DocumentType(d.FileType)
		uploaded = append(uploaded, portal.UploadedDocument{ID: d.ID, Type: typ, UploadedAt: d.CreatedAt})
		attachments = append(attachments, SummaryAttachment{Label: typ.Label(), Name: d.Name, Size: d.FileSize})
	}

	return SummaryView{
		ApplicationID:  app.ID,
		Status:         app.Status,
		AppliedAt:      app.AppliedAt,
		GeneratedAt:    h.now(),
		JobTitle:       app.Job.Title,
		Department:     app.Job.Department,
		Location:       app.Job.Location,
		EmploymentType: app.Job.EmploymentType,
		Deadline:       app.Job.Deadline,
		ApplicantName:  app.Applicant.FullName,
		ApplicantEmail: app.Applicant.Email,
		ApplicantPhone: app.Applicant.Phone,
		CoverLetter:    app.CoverLetter,
		Checklist:      BuildChecklist(portal.SelectPerCategory(uploaded)),
		Attachments:    attachments,
	}, nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"govjobs/internal/database"
	"govjobs/internal/metrics"
	"govjobs/internal/portal"
	"govjobs/internal/storage"
)

const (
	maxDocumentNameLen     = 255
	defaultUploadsPerDay   = 50
	uploadRateKeyPrefix    = "rate:upload:"
	uploadRateKeyDateStamp = "20060102"
)

// DocumentHandler 负责申请人材料的上传、列表、删除与访问链接。
type DocumentHandler struct {
	db            *gorm.DB
	storage       objectStorage
	scanner       virusScanner
	redis         redis.UniversalClient
	logger        *slog.Logger
	uploadsPerDay int
	now           func() time.Time
	// overQuota 在内容校验全部通过后才调用，被拒绝的上传不消耗配额。
	overQuota func(ctx context.Context, userID uint) bool
}

// NewDocumentHandler 构造材料处理器。scanner 为 nil 时跳过病毒扫描。
func NewDocumentHandler(db *gorm.DB, storageClient objectStorage, scanner virusScanner, redisClient redis.UniversalClient, logger *slog.Logger) *DocumentHandler {
	h := &DocumentHandler{
		db:            db,
		storage:       storageClient,
		scanner:       scanner,
		redis:         redisClient,
		logger:        logger,
		uploadsPerDay: defaultUploadsPerDay,
		now:           time.Now,
	}
	h.overQuota = h.overDailyUploadLimit
	return h
}

func (h *DocumentHandler) overDailyUploadLimit(ctx context.Context, userID uint) bool {
	key := uploadRateKeyPrefix + fmt.Sprint(userID) + ":" + h.now().UTC().Format(uploadRateKeyDateStamp)
	return overLimit(ctx, h.redis, key, 24*time.Hour, h.uploadsPerDay)
}

type documentResponse struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	FileType      string    `json:"file_type"`
	FileTypeLabel string    `json:"file_type_label"`
	FileSize      int64     `json:"file_size"`
	MimeType      string    `json:"mime_type"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

func newDocumentResponse(d database.Document) documentResponse {
	return documentResponse{
		ID:            d.ID,
		Name:          d.Name,
		FileType:      d.FileType,
		FileTypeLabel: portal.DocumentType(d.FileType).Label(),
		FileSize:      d.FileSize,
		MimeType:      d.MimeType,
		UploadedAt:    d.CreatedAt,
	}
}

// UploadDocument 校验并保存一份 PDF 材料。
// 顺序：元数据校验、内容嗅探、病毒扫描、每日配额，全部通过后才写入存储与数据库。
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	fileType, err := portal.ParseDocumentType(c.PostForm("file_type"))
	if err != nil {
		Unprocessable(c, err)
		return
	}

	meta := portal.FileMeta{
		Name:     file.Filename,
		MIMEType: file.Header.Get("Content-Type"),
		Size:     file.Size,
	}
	if err := portal.ValidateUpload(meta); err != nil {
		metrics.ObserveUpload(metrics.UploadRejected)
		logger.Info("upload rejected", slog.String("reason", err.Error()))
		Unprocessable(c, err)
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	head := make([]byte, 5)
	n, _ := io.ReadFull(fileReader, head)
	fileReader.Close()
	if !portal.LooksLikePDF(head[:n]) {
		metrics.ObserveUpload(metrics.UploadRejected)
		Unprocessable(c, &portal.ValidationError{Field: "file", Message: "file content is not a PDF"})
		return
	}

	if h.scanner != nil {
		fileReader, err = file.Open()
		if err != nil {
			Internal(c, "failed to open file")
			return
		}
		err = h.scanner.Scan(fileReader)
		fileReader.Close()
		if errors.Is(err, errMaliciousFile) {
			metrics.ObserveUpload(metrics.UploadMalicious)
			logger.Warn("malicious upload blocked", slog.String("error", err.Error()))
			BadRequest(c, "malicious file detected")
			return
		}
		if err != nil {
			logger.Error("scan file", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
	}

	if h.overQuota(ctx, userID) {
		logger.Info("daily upload limit reached")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily upload limit reached"})
		return
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := storage.DocumentObjectKey(userID, uuid.NewString())
	if _, err := h.storage.UploadFile(ctx, objectKey, fileReader, file.Size, portal.PDFMIMEType); err != nil {
		logger.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	doc := database.Document{
		UserID:    userID,
		Name:      documentName(c.PostForm("name"), file.Filename),
		ObjectKey: objectKey,
		FileType:  string(fileType),
		FileSize:  file.Size,
		MimeType:  portal.PDFMIMEType,
	}
	if err := h.db.WithContext(ctx).Create(&doc).Error; err != nil {
		logger.Error("create document row", slog.String("error", err.Error()))
		if delErr := h.storage.DeleteObject(ctx, objectKey); delErr != nil {
			logger.Warn("cleanup orphan object", slog.String("objectKey", objectKey), slog.String("error", delErr.Error()))
		}
		Internal(c, "failed to save document")
		return
	}

	metrics.ObserveUpload(metrics.UploadAccepted)
	logger.Info("document uploaded",
		slog.Uint64("document_id", uint64(doc.ID)),
		slog.String("file_type", doc.FileType),
		slog.Int64("size", doc.FileSize),
	)
	c.JSON(http.StatusCreated, newDocumentResponse(doc))
}

func documentName(requested, filename string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = strings.TrimSpace(filepath.Base(filename))
	}
	return portal.TruncateName(name, maxDocumentNameLen)
}

// ListDocuments 列出当前申请人的全部材料，最新在前。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var docs []database.Document
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		h.loggerFromContext(c).Error("list documents", slog.String("error", err.Error()))
		Internal(c, "failed to list documents")
		return
	}

	items := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, newDocumentResponse(d))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// DeleteDocument 删除自己的材料，先删对象再删记录。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	docID, ok := idParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := h.loggerFromContext(c).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("document_id", uint64(docID)),
	)

	doc, ok := h.findOwnDocument(c, userID, docID)
	if !ok {
		return
	}

	if err := h.storage.DeleteObject(ctx, doc.ObjectKey); err != nil {
		logger.Error("delete object", slog.String("error", err.Error()))
		Internal(c, "failed to delete document")
		return
	}
	if err := h.db.WithContext(ctx).Unscoped().Delete(&doc).Error; err != nil {
		logger.Error("delete document row", slog.String("error", err.Error()))
		Internal(c, "failed to delete document")
		return
	}

	logger.Info("document deleted")
	c.Status(http.StatusNoContent)
}

// GetDocumentLink 为自己的材料签发限时下载链接。
func (h *DocumentHandler) GetDocumentLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	docID, ok := idParam(c, "id")
	if !ok {
		return
	}

	doc, ok := h.findOwnDocument(c, userID, docID)
	if !ok {
		return
	}
	if !isValidDocumentObjectKey(userID, doc.ObjectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GenerateDownloadURL(c.Request.Context(), doc.ObjectKey, downloadLinkTTL, doc.Name)
	if err != nil {
		h.loggerFromContext(c).Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL, "expires_in": int(downloadLinkTTL.Seconds())})
}

type checklistItem struct {
	Type        portal.DocumentType `json:"type"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Required    bool                `json:"required"`
	Document    *documentResponse   `json:"document"`
}

// GetChecklist 返回材料清单及每个类别当前生效的材料（先上传者生效）。
func (h *DocumentHandler) GetChecklist(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	docs, err := loadDocuments(c, h.db, userID)
	if err != nil {
		h.loggerFromContext(c).Error("load documents", slog.String("error", err.Error()))
		Internal(c, "failed to load documents")
		return
	}

	byID := make(map[uint]database.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	selected := portal.SelectPerCategory(toUploaded(docs))

	entries := portal.Catalog()
	items := make([]checklistItem, 0, len(entries))
	for _, e := range entries {
		item := checklistItem{
			Type:        e.Type,
			Label:       e.Label,
			Description: e.Description,
			Required:    e.Required,
		}
		if id, ok := selected[e.Type]; ok {
			resp := newDocumentResponse(byID[id])
			item.Document = &resp
		}
		items = append(items, item)
	}

	missing := portal.CheckCompleteness(entries, selected, "").Missing
	c.JSON(http.StatusOK, gin.H{
		"items":              items,
		"missing":            missing,
		"documents_complete": len(missing) == 0,
	})
}

func (h *DocumentHandler) findOwnDocument(c *gin.Context, userID, docID uint) (database.Document, bool) {
	var doc database.Document
	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", docID, userID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document not found")
			return doc, false
		}
		h.loggerFromContext(c).Error("load document", slog.String("error", err.Error()))
		Internal(c, "failed to load document")
		return doc, false
	}
	return doc, true
}

func (h *DocumentHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	return requestLogger(c, h.logger)
}

func loadDocuments(c *gin.Context, db *gorm.DB, userID uint) ([]database.Document, error) {
	var docs []database.Document
	err := db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&docs).Error
	return docs, err
}

func toUploaded(docs []database.Document) []portal.UploadedDocument {
	out := make([]portal.UploadedDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, portal.UploadedDocument{
			ID:         d.ID,
			Type:       portal.DocumentType(d.FileType),
			UploadedAt: d.CreatedAt,
		})
	}
	return out
}

package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"govjobs/internal/database"
	"govjobs/internal/notify"
	"govjobs/internal/portal"
	"govjobs/internal/storage"
	"govjobs/internal/tasks"
)

type stubRenderer struct {
	html string
	out  []byte
	err  error
}

func (r *stubRenderer) Render(_ context.Context, htmlContent string) ([]byte, error) {
	r.html = htmlContent
	return r.out, r.err
}

type memoryUploader struct {
	objects map[string][]byte
}

func (u *memoryUploader) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) (*minio.UploadInfo, error) {
	if contentType != portal.PDFMIMEType {
		return nil, fmt.Errorf("unexpected content type %q", contentType)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	u.objects[objectName] = buf.Bytes()
	return &minio.UploadInfo{Key: objectName, Size: int64(buf.Len())}, nil
}

type recordingPublisher struct {
	users    []uint
	messages []notify.Message
}

func (p *recordingPublisher) Publish(_ context.Context, userID uint, msg notify.Message) error {
	p.users = append(p.users, userID)
	p.messages = append(p.messages, msg)
	return nil
}

func openWorkerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type summaryFixture struct {
	hr  database.Profile
	app database.Application
}

func seedSummaryFixture(t *testing.T, db *gorm.DB) summaryFixture {
	t.Helper()
	hr := database.Profile{Email: "hr@agency.gov", FullName: "Records Officer", Role: string(portal.RoleHR)}
	applicant := database.Profile{Email: "juan@example.com", FullName: "Juan <b>Dela Cruz</b>", Role: string(portal.RoleApplicant), Phone: "0917 000 0000"}
	require.NoError(t, db.Create(&hr).Error)
	require.NoError(t, db.Create(&applicant).Error)

	job := database.Job{
		Title:          "Administrative Officer II",
		Department:     "Department of Budget",
		Location:       "Manila",
		EmploymentType: string(portal.EmploymentFullTime),
		Deadline:       time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
		Status:         string(portal.JobOpen),
		PostedBy:       hr.ID,
	}
	require.NoError(t, db.Create(&job).Error)

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	var ids []uint
	for i, typ := range portal.RequiredTypes() {
		doc := database.Document{
			UserID:    applicant.ID,
			Name:      string(typ) + ".pdf",
			ObjectKey: storage.DocumentObjectKey(applicant.ID, fmt.Sprintf("doc-%d", i)),
			FileType:  string(typ),
			FileSize:  2048,
			MimeType:  portal.PDFMIMEType,
		}
		doc.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Create(&doc).Error)
		ids = append(ids, doc.ID)
	}

	app := database.Application{
		JobID:       job.ID,
		ApplicantID: applicant.ID,
		CoverLetter: "I have served eight years in local government budget offices. <script>alert(1)</script>",
		DocumentIDs: database.EncodeDocumentIDs(ids),
		Status:      string(portal.ApplicationPending),
		IsComplete:  true,
		AppliedAt:   base.Add(time.Hour),
	}
	require.NoError(t, db.Create(&app).Error)
	return summaryFixture{hr: hr, app: app}
}

func summaryTask(t *testing.T, applicationID, requestedBy uint) *asynq.Task {
	t.Helper()
	task, err := tasks.NewApplicationSummaryTask(applicationID, requestedBy, "corr-1")
	require.NoError(t, err)
	return task
}

func TestRenderSummaryHTML_EscapesUserInput(t *testing.T) {
	html, err := RenderSummaryHTML(SummaryView{
		ApplicationID: 7,
		Status:        "pending",
		JobTitle:      "Clerk <i>III</i>",
		ApplicantName: "Ana",
		CoverLetter:   "<script>alert('x')</script>",
		GeneratedAt:   time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "Clerk &lt;i&gt;III&lt;/i&gt;")
	assert.Contains(t, html, "No documents attached.")
	assert.Contains(t, html, "2026-10-15 09:00 UTC")
}

func TestBuildChecklist(t *testing.T) {
	rows := BuildChecklist(map[portal.DocumentType]uint{portal.DocApplicationLetter: 3})
	require.Len(t, rows, len(portal.Catalog()))

	for i, entry := range portal.Catalog() {
		assert.Equal(t, entry.Label, rows[i].Label)
		assert.Equal(t, entry.Required, rows[i].Required)
		assert.Equal(t, entry.Type == portal.DocApplicationLetter, rows[i].Provided, entry.Type)
	}
}

func TestProcessTask_GeneratesSummary(t *testing.T) {
	db := openWorkerDB(t)
	fx := seedSummaryFixture(t, db)

	renderer := &stubRenderer{out: []byte("%PDF-1.7 summary")}
	uploader := &memoryUploader{objects: map[string][]byte{}}
	pub := &recordingPublisher{}
	handler := NewSummaryTaskHandler(db, uploader, renderer, pub, nil)

	require.NoError(t, handler.ProcessTask(context.Background(), summaryTask(t, fx.app.ID, fx.hr.ID)))

	key := storage.SummaryObjectKey(fx.app.JobID, fx.app.ID)
	assert.Equal(t, []byte("%PDF-1.7 summary"), uploader.objects[key])

	var stored database.Application
	require.NoError(t, db.First(&stored, fx.app.ID).Error)
	assert.Equal(t, key, stored.SummaryObjectKey)

	assert.Contains(t, renderer.html, "Administrative Officer II")
	assert.Contains(t, renderer.html, "Juan &lt;b&gt;Dela Cruz&lt;/b&gt;")
	assert.NotContains(t, renderer.html, "<script>")
	assert.NotContains(t, renderer.html, "Missing")

	require.Len(t, pub.messages, 1)
	assert.Equal(t, fx.hr.ID, pub.users[0])
	assert.Equal(t, notify.EventSummaryReady, pub.messages[0].Event)
	assert.Equal(t, fx.app.ID, pub.messages[0].ApplicationID)
	assert.Equal(t, "corr-1", pub.messages[0].CorrelationID)
}

func TestProcessTask_MissingApplicationIsDropped(t *testing.T) {
	db := openWorkerDB(t)
	uploader := &memoryUploader{objects: map[string][]byte{}}
	pub := &recordingPublisher{}
	handler := NewSummaryTaskHandler(db, uploader, &stubRenderer{out: []byte("%PDF-")}, pub, nil)

	require.NoError(t, handler.ProcessTask(context.Background(), summaryTask(t, 999, 1)))
	assert.Empty(t, uploader.objects)
	assert.Empty(t, pub.messages)
}

func TestProcessTask_BadPayloadSkipsRetry(t *testing.T) {
	db := openWorkerDB(t)
	handler := NewSummaryTaskHandler(db, &memoryUploader{objects: map[string][]byte{}}, &stubRenderer{}, &recordingPublisher{}, nil)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeApplicationSummary, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTask_RenderFailureLeavesApplicationUntouched(t *testing.T) {
	db := openWorkerDB(t)
	fx := seedSummaryFixture(t, db)

	uploader := &memoryUploader{objects: map[string][]byte{}}
	pub := &recordingPublisher{}
	handler := NewSummaryTaskHandler(db, uploader, &stubRenderer{err: errors.New("chromium crashed")}, pub, nil)

	err := handler.ProcessTask(context.Background(), summaryTask(t, fx.app.ID, fx.hr.ID))
	require.Error(t, err)

	var stored database.Application
	require.NoError(t, db.First(&stored, fx.app.ID).Error)
	assert.Empty(t, stored.SummaryObjectKey)
	assert.Empty(t, uploader.objects)
	// 非最后一次重试不通知前端。
	assert.Empty(t, pub.messages)
}

func TestProcessTask_RejectsNonPDFOutput(t *testing.T) {
	db := openWorkerDB(t)
	fx := seedSummaryFixture(t, db)

	uploader := &memoryUploader{objects: map[string][]byte{}}
	handler := NewSummaryTaskHandler(db, uploader, &stubRenderer{out: []byte("<html>")}, &recordingPublisher{}, nil)

	require.Error(t, handler.ProcessTask(context.Background(), summaryTask(t, fx.app.ID, fx.hr.ID)))
	assert.Empty(t, uploader.objects)
}

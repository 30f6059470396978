package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"govjobs/internal/database"
	"govjobs/internal/notify"
	"govjobs/internal/portal"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName, Size: int64(len(b))}, nil
}

func (s *fakeStorage) GenerateDownloadURL(_ context.Context, objectKey string, _ time.Duration, _ string) (string, error) {
	return "https://files.example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type fakeScanner struct{ err error }

func (s fakeScanner) Scan(r io.Reader) error {
	_, _ = io.Copy(io.Discard, r)
	return s.err
}

type publishedMessage struct {
	userID uint
	msg    notify.Message
}

type fakeNotifier struct {
	published []publishedMessage
}

func (n *fakeNotifier) Publish(_ context.Context, userID uint, msg notify.Message) error {
	n.published = append(n.published, publishedMessage{userID: userID, msg: msg})
	return nil
}

type fakeQueue struct {
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.tasks)), Type: task.Type()}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// newUnreachableRedis 返回连不上的客户端，限流逻辑在 Redis 故障时放行。
func newUnreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedProfile(t *testing.T, db *gorm.DB, email string, role portal.Role) database.Profile {
	t.Helper()
	p := database.Profile{Email: email, FullName: "Test " + string(role), Role: string(role)}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

func seedJob(t *testing.T, db *gorm.DB, postedBy uint, title string, status portal.JobStatus, deadline time.Time) database.Job {
	t.Helper()
	j := database.Job{
		Title:          title,
		Department:     "Department of Budget",
		Description:    "Handles " + title,
		Location:       "Manila",
		EmploymentType: string(portal.EmploymentFullTime),
		Deadline:       deadline,
		Status:         string(status),
		PostedBy:       postedBy,
	}
	if err := db.Create(&j).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return j
}

func seedDocument(t *testing.T, db *gorm.DB, userID uint, fileType portal.DocumentType, uploadedAt time.Time) database.Document {
	t.Helper()
	d := database.Document{
		Model:     gorm.Model{CreatedAt: uploadedAt},
		UserID:    userID,
		Name:      string(fileType) + ".pdf",
		ObjectKey: fmt.Sprintf("applicant-documents/%d/%s-%d.pdf", userID, fileType, uploadedAt.UnixNano()),
		FileType:  string(fileType),
		FileSize:  1024,
		MimeType:  portal.PDFMIMEType,
	}
	if err := db.Create(&d).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return d
}

// seedRequiredDocuments 为申请人上传全部必需材料。
func seedRequiredDocuments(t *testing.T, db *gorm.DB, userID uint) []database.Document {
	t.Helper()
	var docs []database.Document
	for i, typ := range portal.RequiredTypes() {
		docs = append(docs, seedDocument(t, db, userID, typ, fixedNow.Add(time.Duration(i)*time.Minute)))
	}
	return docs
}

// newTestContext 构造已登录的请求上下文。
func newTestContext(method, target string, body io.Reader, userID uint, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	if userID != 0 {
		c.Set("userID", userID)
	}
	return c, w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func idParamOf(name string, id uint) gin.Param {
	return gin.Param{Key: name, Value: fmt.Sprint(id)}
}

// newMultipartUpload 构造带显式 Content-Type 的文件上传表单。
func newMultipartUpload(t *testing.T, filename, contentType string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func pdfContent(size int) []byte {
	b := bytes.Repeat([]byte{' '}, size)
	copy(b, "%PDF-1.7\n")
	return b
}

// flushStatus 把只调用了 c.Status 的响应头写入 recorder，和经过 gin.Engine 时一致。
func flushStatus(c *gin.Context) {
	c.Writer.WriteHeaderNow()
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d got %d body=%s", want, w.Code, w.Body.String())
	}
}

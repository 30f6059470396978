package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"govjobs/internal/auth"
	"govjobs/internal/database"
	"govjobs/internal/portal"
	"govjobs/internal/storage"
)

func openDB(t *testing.T) *gorm.DB {
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

func TestCreateHR(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	profile, password, err := CreateHR(ctx, db, "  Records@Agency.gov ", "Maria Santos")
	require.NoError(t, err)
	assert.Equal(t, "records@agency.gov", profile.Email)
	assert.Equal(t, string(portal.RoleHR), profile.Role)
	assert.True(t, profile.MustChangePassword)
	assert.True(t, auth.CheckPasswordHash(password, profile.PasswordHash))

	_, _, err = CreateHR(ctx, db, "records@agency.gov", "Someone Else")
	assert.True(t, errors.Is(err, ErrProfileExists))

	_, _, err = CreateHR(ctx, db, "not-an-email", "X")
	assert.True(t, portal.IsValidation(err))

	_, _, err = CreateHR(ctx, db, "other@agency.gov", "  ")
	assert.True(t, portal.IsValidation(err))
}

func TestCloseExpired(t *testing.T) {
	db := openDB(t)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	hr := database.Profile{Email: "hr@agency.gov", Role: string(portal.RoleHR)}
	require.NoError(t, db.Create(&hr).Error)

	jobs := []database.Job{
		{Title: "yesterday", Status: string(portal.JobOpen), Deadline: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), PostedBy: hr.ID},
		{Title: "today", Status: string(portal.JobOpen), Deadline: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), PostedBy: hr.ID},
		{Title: "draft", Status: string(portal.JobDraft), Deadline: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PostedBy: hr.ID},
	}
	require.NoError(t, db.Create(&jobs).Error)

	n, err := CloseExpired(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	statuses := map[string]string{}
	var stored []database.Job
	require.NoError(t, db.Find(&stored).Error)
	for _, j := range stored {
		statuses[j.Title] = j.Status
	}
	assert.Equal(t, map[string]string{
		"yesterday": string(portal.JobClosed),
		"today":     string(portal.JobOpen),
		"draft":     string(portal.JobDraft),
	}, statuses)
}

type fakeStore struct {
	objects []storage.ObjectMeta
	deleted []string
	calls   int
}

// ListObjects 与 S3 一致：按键名排序，从 startAfter 之后开始。
func (s *fakeStore) ListObjects(_ context.Context, prefix, startAfter string, limit int) ([]storage.ObjectMeta, error) {
	sorted := append([]storage.ObjectMeta(nil), s.objects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	var out []storage.ObjectMeta
	for _, o := range sorted {
		if !strings.HasPrefix(o.Key, prefix) || o.Key <= startAfter {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	s.calls++
	return out, nil
}

func (s *fakeStore) DeleteObject(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func TestSweepOrphanDocuments(t *testing.T) {
	db := openDB(t)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	applicant := database.Profile{Email: "a@example.com", Role: string(portal.RoleApplicant)}
	require.NoError(t, db.Create(&applicant).Error)
	kept := storage.DocumentObjectKey(applicant.ID, "kept")
	require.NoError(t, db.Create(&database.Document{UserID: applicant.ID, ObjectKey: kept, FileType: string(portal.DocPDS)}).Error)

	orphan := storage.DocumentObjectKey(applicant.ID, "orphan")
	fresh := storage.DocumentObjectKey(applicant.ID, "fresh")
	store := &fakeStore{objects: []storage.ObjectMeta{
		{Key: kept, LastModified: now.Add(-48 * time.Hour)},
		{Key: orphan, LastModified: now.Add(-48 * time.Hour)},
		{Key: fresh, LastModified: now.Add(-time.Minute)},
		{Key: storage.SummaryObjectKey(1, 1), LastModified: now.Add(-48 * time.Hour)},
	}}

	res, err := SweepOrphanDocuments(context.Background(), db, store, now, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, []string{orphan}, res.Orphans)
	assert.Empty(t, store.deleted)

	res, err = SweepOrphanDocuments(context.Background(), db, store, now, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{orphan}, store.deleted)
}

func TestSweepOrphanDocuments_PagesPastKnownObjects(t *testing.T) {
	db := openDB(t)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	applicant := database.Profile{Email: "b@example.com", Role: string(portal.RoleApplicant)}
	require.NoError(t, db.Create(&applicant).Error)

	store := &fakeStore{}
	docs := make([]database.Document, 0, sweepPageSize+10)
	for i := 0; i < sweepPageSize+10; i++ {
		key := storage.DocumentObjectKey(applicant.ID, fmt.Sprintf("a-%04d", i))
		docs = append(docs, database.Document{UserID: applicant.ID, ObjectKey: key, FileType: string(portal.DocPDS)})
		store.objects = append(store.objects, storage.ObjectMeta{Key: key, LastModified: old})
	}
	require.NoError(t, db.CreateInBatches(&docs, 100).Error)

	first := storage.DocumentObjectKey(applicant.ID, "z-orphan-1")
	second := storage.DocumentObjectKey(applicant.ID, "z-orphan-2")
	store.objects = append(store.objects,
		storage.ObjectMeta{Key: second, LastModified: old},
		storage.ObjectMeta{Key: first, LastModified: old},
	)

	// 孤儿排在第一页之后，仍需被找到；limit 按孤儿计数。
	res, err := SweepOrphanDocuments(context.Background(), db, store, now, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, res.Orphans)
	assert.Equal(t, []string{first}, store.deleted)
	assert.Equal(t, 2, store.calls)

	res, err = SweepOrphanDocuments(context.Background(), db, store, now, 0, true)
	require.NoError(t, err)
	assert.Equal(t, sweepPageSize+12, res.Scanned)
	assert.Equal(t, []string{first, second}, res.Orphans)
}

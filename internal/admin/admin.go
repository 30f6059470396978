// Package admin 提供运维命令使用的批处理操作：开通 HR 账号、关闭过期岗位、清理孤儿文件。
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"govjobs/internal/auth"
	"govjobs/internal/database"
	"govjobs/internal/portal"
	"govjobs/internal/storage"
)

// ErrProfileExists 表示邮箱已被注册。
var ErrProfileExists = errors.New("profile already exists")

// OrphanGracePeriod 内上传的对象不清理，避免误删尚未落库的上传。
const OrphanGracePeriod = time.Hour

// CreateHR 创建 HR 账号并返回一次性初始密码，首次登录必须改密。
func CreateHR(ctx context.Context, db *gorm.DB, email, fullName string) (database.Profile, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	if _, err := mail.ParseAddress(email); err != nil {
		return database.Profile{}, "", &portal.ValidationError{Field: "email", Message: "a valid email address is required"}
	}
	if fullName == "" {
		return database.Profile{}, "", &portal.ValidationError{Field: "full_name", Message: "full name is required"}
	}

	var existing database.Profile
	switch err := db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; {
	case err == nil:
		return database.Profile{}, "", fmt.Errorf("%w: %s", ErrProfileExists, email)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return database.Profile{}, "", fmt.Errorf("query profile: %w", err)
	}

	password, err := auth.GenerateRandomPassword(24)
	if err != nil {
		return database.Profile{}, "", err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return database.Profile{}, "", err
	}

	profile := database.Profile{
		Email:              email,
		FullName:           fullName,
		Role:               string(portal.RoleHR),
		PasswordHash:       hashed,
		MustChangePassword: true,
	}
	if err := db.WithContext(ctx).Create(&profile).Error; err != nil {
		return database.Profile{}, "", fmt.Errorf("create profile: %w", err)
	}
	return profile, password, nil
}

// CloseExpired 将截止日期早于今天（UTC）的 open 岗位改为 closed，返回受影响行数。
func CloseExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&database.Job{}).
		Where("status = ? AND deadline < ?", string(portal.JobOpen), portal.Today(now)).
		Update("status", string(portal.JobClosed))
	if result.Error != nil {
		return 0, fmt.Errorf("close expired jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// sweepPageSize 是每次向存储列举的对象数。
const sweepPageSize = 500

type objectStore interface {
	ListObjects(ctx context.Context, prefix, startAfter string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// SweepResult 汇总一次孤儿文件清理。
type SweepResult struct {
	Scanned int
	Orphans []string
	Deleted int
}

// SweepOrphanDocuments 分页遍历材料目录，删除没有对应 documents 记录的对象。
// limit 限制本次处理的孤儿数量（不大于 0 表示不限），dryRun 为 true 时只统计不删除。
func SweepOrphanDocuments(ctx context.Context, db *gorm.DB, store objectStore, now time.Time, limit int, dryRun bool) (SweepResult, error) {
	var keys []string
	if err := db.WithContext(ctx).
		Model(&database.Document{}).
		Where("object_key LIKE ?", storage.DocumentRoot+"%").
		Pluck("object_key", &keys).Error; err != nil {
		return SweepResult{}, fmt.Errorf("load document keys: %w", err)
	}
	known := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}

	var res SweepResult
	after := ""
	for {
		page, err := store.ListObjects(ctx, storage.DocumentRoot, after, sweepPageSize)
		if err != nil {
			return res, err
		}
		for _, obj := range page {
			res.Scanned++
			if _, ok := known[obj.Key]; ok {
				continue
			}
			if now.Sub(obj.LastModified) < OrphanGracePeriod {
				continue
			}
			res.Orphans = append(res.Orphans, obj.Key)
			if !dryRun {
				if err := store.DeleteObject(ctx, obj.Key); err != nil {
					return res, err
				}
				res.Deleted++
			}
			if limit > 0 && len(res.Orphans) >= limit {
				return res, nil
			}
		}
		if len(page) < sweepPageSize {
			return res, nil
		}
		after = page[len(page)-1].Key
	}
}

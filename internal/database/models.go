package database

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile 表示门户账号，角色在注册后不可修改。
type Profile struct {
	gorm.Model
	Email              string `gorm:"uniqueIndex;size:255"`
	FullName           string `gorm:"size:255"`
	Role               string `gorm:"size:16;index"`
	Phone              string `gorm:"size:32"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Job 表示 HR 发布的岗位。
type Job struct {
	gorm.Model
	Title          string    `gorm:"size:255"`
	Department     string    `gorm:"size:255"`
	Description    string    `gorm:"type:text"`
	Requirements   string    `gorm:"type:text"`
	Location       string    `gorm:"size:255"`
	SalaryRange    string    `gorm:"size:128"`
	EmploymentType string    `gorm:"size:16"`
	Deadline       time.Time `gorm:"index"`
	Status         string    `gorm:"size:16;index"`
	PostedBy       uint      `gorm:"index"`
	Poster         Profile   `gorm:"foreignKey:PostedBy;constraint:OnDelete:CASCADE"`
}

// Application 表示一次岗位申请，同一 (job, applicant) 只允许一条。
type Application struct {
	gorm.Model
	JobID            uint           `gorm:"uniqueIndex:idx_applications_job_applicant"`
	Job              Job            `gorm:"constraint:OnDelete:CASCADE"`
	ApplicantID      uint           `gorm:"uniqueIndex:idx_applications_job_applicant;index"`
	Applicant        Profile        `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE"`
	CoverLetter      string         `gorm:"type:text"`
	DocumentIDs      datatypes.JSON `gorm:"type:jsonb"`
	Status           string         `gorm:"size:16;index"`
	IsComplete       bool           `gorm:"default:false"`
	SubmittedAt      *time.Time
	AppliedAt        time.Time `gorm:"index"`
	SummaryObjectKey string    `gorm:"size:512"`
}

// Document 表示申请人上传的 PDF 材料，仅上传者可见、可删除。
type Document struct {
	gorm.Model
	UserID    uint    `gorm:"index"`
	User      Profile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Name      string  `gorm:"size:255"`
	ObjectKey string  `gorm:"size:512"`
	FileType  string  `gorm:"size:32;index"`
	FileSize  int64
	MimeType  string `gorm:"size:64"`
}

// AllModels 列出需要迁移的模型。
func AllModels() []any {
	return []any{&Profile{}, &Job{}, &Application{}, &Document{}}
}

// EncodeDocumentIDs 将附件 ID 列表序列化为 JSON 列。
func EncodeDocumentIDs(ids []uint) datatypes.JSON {
	if ids == nil {
		ids = []uint{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}

// DocumentIDList 解析附件 ID 列表，无法解析时返回空列表。
func (a Application) DocumentIDList() []uint {
	if len(a.DocumentIDs) == 0 {
		return []uint{}
	}
	var ids []uint
	if err := json.Unmarshal(a.DocumentIDs, &ids); err != nil {
		return []uint{}
	}
	return ids
}

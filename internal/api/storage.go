package api

import (
	"context"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"govjobs/internal/notify"
)

// objectStorage 是处理器依赖的对象存储能力，由 storage.Client 实现。
type objectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GenerateDownloadURL(ctx context.Context, objectKey string, duration time.Duration, filename string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// statusNotifier 将申请事件推送给在线用户。
type statusNotifier interface {
	Publish(ctx context.Context, userID uint, msg notify.Message) error
}

// taskEnqueuer 由 asynq.Client 实现。
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

const downloadLinkTTL = 15 * time.Minute

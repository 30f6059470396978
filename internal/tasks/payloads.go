package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeApplicationSummary = "application:summary"
)

// ApplicationSummaryPayload 描述生成申请摘要 PDF 所需的最小信息。
type ApplicationSummaryPayload struct {
	ApplicationID uint   `json:"application_id"`
	RequestedBy   uint   `json:"requested_by"`
	CorrelationID string `json:"correlation_id"`
}

// NewApplicationSummaryTask 构造一个新的申请摘要生成任务。
func NewApplicationSummaryTask(applicationID, requestedBy uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ApplicationSummaryPayload{
		ApplicationID: applicationID,
		RequestedBy:   requestedBy,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeApplicationSummary, payload), nil
}

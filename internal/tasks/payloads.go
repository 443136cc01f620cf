package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeUsageRecord = "usage:record"
)

// UsageRecordPayload 描述一次成功生成的计量信息。
type UsageRecordPayload struct {
	UserID        uint   `json:"user_id"`
	Platform      string `json:"platform"`
	Premium       bool   `json:"premium"`
	Provider      string `json:"provider"`
	CorrelationID string `json:"correlation_id"`
}

// NewUsageRecordTask 构造一个新的用量计量任务。
func NewUsageRecordTask(p UsageRecordPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeUsageRecord, payload), nil
}

package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type UsageNotifyMessage struct {
	Status        string `json:"status"`
	Platform      string `json:"platform"`
	UsedToday     int64  `json:"used_today"`
	DailyLimit    int    `json:"daily_limit"`
	CorrelationID string `json:"correlation_id"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"bioforge/internal/database"
	"bioforge/internal/tasks"
)

// usagePublisher 是通知发布所需的最小 Redis 能力。
type usagePublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// UsageTaskHandler 负责消费用量计量任务。
// 每次成功生成都会落一条 UsageRecord，并向用户推送当日用量。
type UsageTaskHandler struct {
	db          *gorm.DB
	redisClient usagePublisher
	logger      *slog.Logger
	dailyLimit  int
}

// NewUsageTaskHandler 创建任务处理器。
func NewUsageTaskHandler(db *gorm.DB, redisClient usagePublisher, logger *slog.Logger, dailyLimit int) *UsageTaskHandler {
	return &UsageTaskHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		dailyLimit:  dailyLimit,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *UsageTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.UsageRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
		slog.String("platform", payload.Platform),
	)

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, payload.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("user not found, skipping usage record")
			return nil
		}
		log.Error("query user failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := UsageNotifyMessage{
			Status:        "error",
			Platform:      payload.Platform,
			CorrelationID: payload.CorrelationID,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishUsageNotify(ctx, payload.UserID, notify); err != nil {
			log.Error("publish usage error notification failed", slog.Any("error", err))
		}
	}()

	record := database.UsageRecord{
		UserID:   payload.UserID,
		Platform: payload.Platform,
		Premium:  payload.Premium,
		Provider: payload.Provider,
	}
	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		log.Error("create usage record failed", slog.Any("error", err))
		return err
	}

	since := time.Now().UTC().Truncate(24 * time.Hour)
	var usedToday int64
	if err := h.db.WithContext(ctx).
		Model(&database.UsageRecord{}).
		Where("user_id = ? AND created_at >= ?", payload.UserID, since).
		Count(&usedToday).Error; err != nil {
		log.Error("count daily usage failed", slog.Any("error", err))
		return err
	}

	notify := UsageNotifyMessage{
		Status:        "recorded",
		Platform:      payload.Platform,
		UsedToday:     usedToday,
		DailyLimit:    h.dailyLimit,
		CorrelationID: payload.CorrelationID,
	}
	if err := h.publishUsageNotify(ctx, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("usage record task completed", slog.Int64("used_today", usedToday))
	return nil
}

func (h *UsageTaskHandler) publishUsageNotify(ctx context.Context, userID uint, notify UsageNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

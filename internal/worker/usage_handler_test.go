package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bioforge/internal/database"
	"bioforge/internal/tasks"
)

type fakePublisher struct {
	channels []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channels = append(p.channels, channel)
	if data, ok := message.([]byte); ok {
		p.payloads = append(p.payloads, data)
	}
	return redis.NewIntCmd(ctx)
}

func newWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}, &database.UsageRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestProcessTaskRecordsUsageAndNotifies(t *testing.T) {
	db := newWorkerTestDB(t)
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewUsageTaskHandler(db, publisher, logger, 10)

	user := database.User{Username: "alex"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	task, err := tasks.NewUsageRecordTask(tasks.UsageRecordPayload{
		UserID:        user.ID,
		Platform:      "instagram",
		Provider:      "gemini",
		CorrelationID: "corr-1",
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}

	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}

	var records []database.UsageRecord
	if err := db.Find(&records).Error; err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d usage records, want 1", len(records))
	}
	if records[0].UserID != user.ID || records[0].Platform != "instagram" || records[0].Provider != "gemini" {
		t.Fatalf("record = %+v", records[0])
	}

	if len(publisher.channels) != 1 {
		t.Fatalf("got %d notifications, want 1", len(publisher.channels))
	}
	wantChannel := "user_notify:" + strconv.FormatUint(uint64(user.ID), 10)
	if publisher.channels[0] != wantChannel {
		t.Fatalf("channel = %q, want %q", publisher.channels[0], wantChannel)
	}

	var notify UsageNotifyMessage
	if err := json.Unmarshal(publisher.payloads[0], &notify); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if notify.Status != "recorded" || notify.UsedToday != 1 || notify.DailyLimit != 10 {
		t.Fatalf("notify = %+v", notify)
	}
	if notify.CorrelationID != "corr-1" {
		t.Fatalf("correlation id = %q", notify.CorrelationID)
	}
}

func TestProcessTaskSkipsUnknownUser(t *testing.T) {
	db := newWorkerTestDB(t)
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewUsageTaskHandler(db, publisher, logger, 10)

	task, err := tasks.NewUsageRecordTask(tasks.UsageRecordPayload{UserID: 999, Platform: "tiktok"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}

	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process task: %v", err)
	}

	var count int64
	if err := db.Model(&database.UsageRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("unknown user must not produce a usage record")
	}
	if len(publisher.channels) != 0 {
		t.Fatal("unknown user must not trigger a notification")
	}
}

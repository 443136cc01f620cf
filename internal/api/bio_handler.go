package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"bioforge/internal/api/middleware"
	"bioforge/internal/bio"
	"bioforge/internal/database"
	"bioforge/internal/llm"
	"bioforge/internal/metrics"
	"bioforge/internal/tasks"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

var errInvalidBioID = errors.New("invalid bio id")

// BioHandler 负责简介生成与历史记录相关的 API 请求。
type BioHandler struct {
	db              *gorm.DB
	completer       llm.Completer
	providerName    string
	asynqClient     *asynq.Client
	redis           redisRateCounter
	logger          *slog.Logger
	freeDailyLimit  int
	anonHourlyLimit int
}

// NewBioHandler 构造 BioHandler。
func NewBioHandler(
	db *gorm.DB,
	completer llm.Completer,
	providerName string,
	asynqClient *asynq.Client,
	redisClient redisRateCounter,
	logger *slog.Logger,
	freeDailyLimit int,
	anonHourlyLimit int,
) *BioHandler {
	return &BioHandler{
		db:              db,
		completer:       completer,
		providerName:    providerName,
		asynqClient:     asynqClient,
		redis:           redisClient,
		logger:          logger,
		freeDailyLimit:  freeDailyLimit,
		anonHourlyLimit: anonHourlyLimit,
	}
}

type generateRequest struct {
	Name      string       `json:"name"`
	Platform  string       `json:"platform"`
	Style     string       `json:"style"`
	Interests string       `json:"interests"`
	Features  bio.Features `json:"features"`
}

// Generate 执行一次简介生成。
// 付费层级取自会话令牌，负载中的任何层级声明都会被忽略；
// 生成与持久化是解耦的两步，入库失败时结果仍返回给调用方。
func (h *BioHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, authenticated := userIDFromContext(c)
	premium := authenticated && premiumFromContext(c)

	entitlement := bio.EntitlementFree
	if premium {
		entitlement = bio.EntitlementPremium
	}

	genReq := bio.GenerationRequest{
		Name:        req.Name,
		Platform:    bio.Platform(req.Platform),
		Style:       bio.Style(req.Style),
		Interests:   req.Interests,
		Entitlement: entitlement,
		Features:    req.Features,
	}

	if err := genReq.Validate(); err != nil {
		var verr *bio.ValidationError
		if errors.As(err, &verr) {
			ValidationFailed(c, verr)
			return
		}
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if !premium {
		if ok := h.allowGeneration(ctx, c, userID, authenticated); !ok {
			TooManyRequests(c, "generation limit reached")
			return
		}
	}

	prompt := bio.BuildPrompt(genReq)
	raw, err := h.completer.Complete(ctx, prompt, premium)
	if err != nil {
		logger.Error("llm completion failed", slog.Any("error", err))
		metrics.ObserveGeneration(h.providerName, metrics.OutcomeUpstream)
		c.JSON(http.StatusBadGateway, bio.GenerationResult{
			Success: false,
			Error:   "generation service unavailable, please retry",
		})
		return
	}

	result, outcome := bio.Interpret(raw, genReq)
	metrics.ObserveGeneration(h.providerName, string(outcome))

	if result.Success && authenticated {
		if err := h.persistBio(ctx, userID, genReq, result, middleware.GetCorrelationID(c)); err != nil {
			// 结果已在内存中，持久化失败不阻断返回。
			logger.Error("persist bio failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, result)
}

// allowGeneration 对免费用户与匿名访客施加 Redis 计数配额。
// Redis 不可用时放行，配额是保护措施而非硬一致性约束。
func (h *BioHandler) allowGeneration(ctx context.Context, c *gin.Context, userID uint, authenticated bool) bool {
	if h.redis == nil {
		return true
	}

	var key string
	var limit int
	var ttl time.Duration
	if authenticated {
		key = fmt.Sprintf("rate:generate:user:%d:%s", userID, time.Now().UTC().Format("20060102"))
		limit = h.freeDailyLimit
		ttl = 24 * time.Hour
	} else {
		key = "rate:generate:anon:" + c.ClientIP() + ":" + time.Now().UTC().Format("2006010215")
		limit = h.anonHourlyLimit
		ttl = time.Hour
	}

	count, err := incrWithTTL(ctx, h.redis, key, ttl)
	if err != nil {
		return true
	}
	return count <= int64(limit)
}

func (h *BioHandler) persistBio(ctx context.Context, userID uint, req bio.GenerationRequest, result bio.GenerationResult, correlationID string) error {
	record := database.Bio{
		UserID:    &userID,
		Platform:  string(req.Platform),
		Style:     string(req.Style),
		Content:   result.Bio,
		Interests: req.Interests,
	}
	if result.Score != nil {
		record.Score = *result.Score
	}
	if result.ScoreDetails != nil {
		details, err := json.Marshal(result.ScoreDetails)
		if err != nil {
			return fmt.Errorf("marshal score details: %w", err)
		}
		record.ScoreDetails = datatypes.JSON(details)
	}

	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("create bio record: %w", err)
	}

	if h.asynqClient != nil {
		task, err := tasks.NewUsageRecordTask(tasks.UsageRecordPayload{
			UserID:        userID,
			Platform:      string(req.Platform),
			Premium:       req.Entitlement.Premium(),
			Provider:      h.providerName,
			CorrelationID: correlationID,
		})
		if err != nil {
			return fmt.Errorf("create usage task: %w", err)
		}
		if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(3)); err != nil {
			// 计量是旁路信息，入队失败只记录。
			h.logger.Warn("enqueue usage task failed", slog.Any("error", err))
		}
	}

	return nil
}

type bioListItem struct {
	ID        uint      `json:"id"`
	Platform  string    `json:"platform"`
	Style     string    `json:"style"`
	Content   string    `json:"content"`
	Interests string    `json:"interests"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type bioListResponse struct {
	Items       []bioListItem `json:"items"`
	TotalItems  int64         `json:"total_items"`
	TotalPages  int64         `json:"total_pages"`
	CurrentPage int           `json:"current_page"`
}

// ListBios 分页列出用户的历史简介，可按内容子串过滤。
// 分页参数越界在查询前即拒绝。
func (h *BioHandler) ListBios(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		BadRequest(c, "page must be a positive integer")
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		BadRequest(c, fmt.Sprintf("page_size must be between 1 and %d", maxPageSize))
		return
	}
	search := c.Query("search")

	ctx := c.Request.Context()
	query := h.db.WithContext(ctx).Model(&database.Bio{}).Where("user_id = ?", userID)
	if search != "" {
		query = query.Where("content LIKE ?", "%"+search+"%")
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		Internal(c, "failed to count bios")
		return
	}

	var records []database.Bio
	if err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&records).Error; err != nil {
		Internal(c, "failed to list bios")
		return
	}

	items := make([]bioListItem, 0, len(records))
	for _, r := range records {
		items = append(items, bioListItem{
			ID:        r.ID,
			Platform:  r.Platform,
			Style:     r.Style,
			Content:   r.Content,
			Interests: r.Interests,
			Score:     r.Score,
			CreatedAt: r.CreatedAt,
		})
	}

	totalPages := (totalItems + int64(pageSize) - 1) / int64(pageSize)

	c.JSON(http.StatusOK, bioListResponse{
		Items:       items,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		CurrentPage: page,
	})
}

// DeleteBio 删除指定简介。
// 所有权检查与删除合并为单条带属主条件的 DELETE，避免检查与删除之间的竞态。
func (h *BioHandler) DeleteBio(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	bioID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, errInvalidBioID.Error())
		return
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(bioID), userID).
		Delete(&database.Bio{})
	if res.Error != nil {
		Internal(c, "failed to delete bio")
		return
	}

	if res.RowsAffected == 0 {
		// 记录存在但不属于调用方 → 403；否则 404。
		var count int64
		if err := h.db.WithContext(ctx).
			Model(&database.Bio{}).
			Where("id = ?", uint(bioID)).
			Count(&count).Error; err != nil {
			Internal(c, "failed to query bio")
			return
		}
		if count > 0 {
			Forbidden(c, "bio belongs to another user")
			return
		}
		NotFound(c, "bio not found")
		return
	}

	c.Status(http.StatusNoContent)
}

type platformCount struct {
	Platform string `json:"platform"`
	Count    int64  `json:"count"`
}

type userStatsResponse struct {
	TotalBios        int64            `json:"total_bios"`
	FavoritePlatform string           `json:"favorite_platform"`
	PlatformCounts   map[string]int64 `json:"platform_counts"`
}

// GetUserStats 返回用户的生成统计信息。
func (h *BioHandler) GetUserStats(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	var counts []platformCount
	if err := h.db.WithContext(ctx).
		Model(&database.Bio{}).
		Select("platform, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("platform").
		Scan(&counts).Error; err != nil {
		Internal(c, "failed to query stats")
		return
	}

	resp := userStatsResponse{PlatformCounts: make(map[string]int64, len(counts))}
	var best int64
	for _, pc := range counts {
		resp.PlatformCounts[pc.Platform] = pc.Count
		resp.TotalBios += pc.Count
		if pc.Count > best {
			best = pc.Count
			resp.FavoritePlatform = pc.Platform
		}
	}

	c.JSON(http.StatusOK, resp)
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func premiumFromContext(c *gin.Context) bool {
	value, exists := c.Get("isPremium")
	if !exists {
		return false
	}
	premium, ok := value.(bool)
	return ok && premium
}

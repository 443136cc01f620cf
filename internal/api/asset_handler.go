package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"bioforge/internal/storage"
)

const (
	// maxAvatarBytes 限制 Link-in-Bio 头像的大小。
	maxAvatarBytes = 2 << 20
	// avatarKeyPrefix 是头像对象键的根前缀。
	avatarKeyPrefix = "link-in-bio"

	avatarPreviewTTL  = 10 * time.Minute
	avatarDownloadTTL = 15 * time.Minute

	defaultAvatarListLimit = 24
	maxAvatarListLimit     = 100
)

// avatarExtensions 列出允许的头像类型及落盘扩展名。
// 以嗅探出的实际类型为准，客户端声明的 Content-Type 不可信。
var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// avatarStore 是头像功能所需的最小对象存储能力。
type avatarStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// AssetHandler 负责 Link-in-Bio 头像的上传、浏览与删除。
type AssetHandler struct {
	store     avatarStore
	logger    *slog.Logger
	clamdAddr string
}

// NewAssetHandler 返回 AssetHandler 实例。
// clamdAddr 为空时跳过病毒扫描（本地开发环境）。
func NewAssetHandler(store avatarStore, logger *slog.Logger, clamdAddr string) *AssetHandler {
	return &AssetHandler{
		store:     store,
		logger:    logger,
		clamdAddr: clamdAddr,
	}
}

func avatarPrefix(userID uint) string {
	return fmt.Sprintf("%s/%d/", avatarKeyPrefix, userID)
}

// UploadAsset 处理头像上传：限制大小、嗅探真实类型、扫描病毒后入库。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > maxAvatarBytes {
		Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("avatar exceeds %d bytes", maxAvatarBytes))
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	// 头像上限很小，整体读入内存省去多次重开文件。
	data, err := io.ReadAll(io.LimitReader(reader, maxAvatarBytes+1))
	reader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if int64(len(data)) > maxAvatarBytes {
		Error(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("avatar exceeds %d bytes", maxAvatarBytes))
		return
	}

	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		BadRequest(c, fmt.Sprintf("unsupported avatar type %q, allowed: png, jpeg, webp", contentType))
		return
	}

	if h.clamdAddr != "" {
		clean, err := h.scanAvatar(data)
		if err != nil {
			h.logger.Error("scan avatar", slog.String("error", err.Error()))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	objectKey := avatarPrefix(userID) + "avatar-" + uuid.NewString() + ext
	if _, err := h.store.UploadFile(c.Request.Context(), objectKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		h.logger.Error("upload avatar", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	previewURL, err := h.store.GeneratePresignedURL(c.Request.Context(), objectKey, avatarPreviewTTL)
	if err != nil {
		h.logger.Error("presign avatar", slog.String("objectKey", objectKey), slog.String("error", err.Error()))
		previewURL = ""
	}

	c.JSON(http.StatusCreated, gin.H{
		"objectKey":   objectKey,
		"previewUrl":  previewURL,
		"contentType": contentType,
	})
}

func (h *AssetHandler) scanAvatar(data []byte) (bool, error) {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamd.NewClamd(h.clamdAddr).ScanStream(bytes.NewReader(data), abortChan)
	if err != nil {
		return false, err
	}
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return false, nil
		}
	}
	return true, nil
}

// ListAssets 列出用户的头像资产，按上传时间倒序并附预览链接。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultAvatarListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultAvatarListLimit
	}
	if limit > maxAvatarListLimit {
		limit = maxAvatarListLimit
	}

	objects, err := h.store.ListObjects(c.Request.Context(), avatarPrefix(userID), limit)
	if err != nil {
		h.logger.Error("list avatars", slog.String("error", err.Error()))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.store.GeneratePresignedURL(c.Request.Context(), obj.Key, avatarPreviewTTL)
		if err != nil {
			h.logger.Error("presign avatar", slog.String("objectKey", obj.Key), slog.String("error", err.Error()))
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"previewUrl":   url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回头像的限时下载链接，仅对所有者开放。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !strings.HasPrefix(objectKey, avatarPrefix(userID)) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.store.GeneratePresignedURL(c.Request.Context(), objectKey, avatarDownloadTTL)
	if err != nil {
		h.logger.Error("presign avatar", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// DeleteAsset 删除用户自己的头像对象，删除不存在的对象视为成功。
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !strings.HasPrefix(objectKey, avatarPrefix(userID)) {
		Forbidden(c, "access denied")
		return
	}

	if err := h.store.DeleteObject(c.Request.Context(), objectKey); err != nil {
		h.logger.Error("delete avatar", slog.String("objectKey", objectKey), slog.String("error", err.Error()))
		Internal(c, "failed to delete asset")
		return
	}

	c.Status(http.StatusNoContent)
}

package service

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	apperrors "github.com/lk2023060901/file-catalog/internal/pkg/errors"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/lk2023060901/file-catalog/internal/pkg/response"
	"github.com/lk2023060901/file-catalog/internal/pkg/sse"
	"go.uber.org/zap"
)

const (
	// CatalogResource SSE 订阅的资源名
	CatalogResource  = "catalog"
	// EventInvalidated 目录变更事件类型
	EventInvalidated = "catalog.invalidated"

	viewIDHeader = "X-View-ID"
)

// Options 服务层配置
type Options struct {
	BasePath     string         // 路由前缀，用于生成下载地址
	Location     *time.Location // 解析日期过滤条件的时区
	SSEBuffer    int
	SSEHeartbeat time.Duration
}

// CatalogService 文件目录 HTTP 服务
type CatalogService struct {
	uc     *biz.CatalogUseCase
	views  *biz.ViewRegistry
	hub    *sse.Hub
	opts   Options
	logger *logger.Logger

	unsubscribe func()
}

// NewCatalogService 创建服务并把目录变更转发到 SSE
func NewCatalogService(
	uc *biz.CatalogUseCase,
	views *biz.ViewRegistry,
	hub *sse.Hub,
	opts Options,
	log *logger.Logger,
) *CatalogService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BasePath == "" {
		opts.BasePath = "/api/v1"
	}

	s := &CatalogService{
		uc:     uc,
		views:  views,
		hub:    hub,
		opts:   opts,
		logger: log.Named("catalog_service"),
	}
	s.unsubscribe = uc.Bus().Subscribe(s.forwardInvalidation)
	return s
}

// Close 停止转发目录变更
func (s *CatalogService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// CloseStreams 断开所有 SSE 连接，之后的订阅请求返回 503
func (s *CatalogService) CloseStreams() {
	n := s.hub.ClientCount(CatalogResource)
	s.hub.Close()
	s.logger.Info("event streams closed", zap.Int("clients", n))
}

// RegisterRoutes 注册路由
func (s *CatalogService) RegisterRoutes(rg *gin.RouterGroup) {
	files := rg.Group("/files")
	files.GET("", s.ListFiles)
	files.GET("/types", s.FileTypes)
	files.GET("/savings", s.Savings)
	files.GET("/integrity", s.Integrity)
	files.GET("/events", s.Events)
	files.POST("/batch-delete", s.BatchDelete)
	files.GET("/:id", s.GetFile)
	files.GET("/:id/duplicates", s.Duplicates)
	files.GET("/:id/download", s.Download)
	files.DELETE("/:id", s.DeleteFile)
}

func (s *CatalogService) forwardInvalidation(inv biz.Invalidation) {
	n := s.hub.Broadcast(CatalogResource, sse.Event{
		Type: EventInvalidated,
		Data: InvalidationEvent{
			Generation: inv.Generation,
			Reason:     inv.Reason,
			EntryIDs:   inv.EntryIDs,
			At:         inv.At,
		},
	})
	s.logger.Debug("invalidation forwarded", zap.String("origin", inv.Origin), zap.Int("clients", n))
}

func (s *CatalogService) predicate(c *gin.Context) (biz.Predicate, bool) {
	var q FilterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return biz.Predicate{}, false
	}
	return biz.BuildPredicateIn(q.toInput(), s.opts.Location), true
}

func viewID(c *gin.Context) string {
	if id := c.Query("view_id"); id != "" {
		return id
	}
	return c.GetHeader(viewIDHeader)
}

// ListFiles 按条件查询文件列表
//
// 带 view_id 时同一视图的新请求会取代仍在进行中的旧请求，被取代的请求返回 409。
func (s *CatalogService) ListFiles(c *gin.Context) {
	p, ok := s.predicate(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		rs      *biz.ResultSet
		savings biz.Savings
		err     error
	)
	if id := viewID(c); id != "" {
		ctx = logger.WithViewID(ctx, id)
		var state biz.ViewState
		state, err = s.views.Get(id).Apply(ctx, p)
		rs, savings = state.Result, state.Savings
	} else {
		rs, err = s.uc.Query(ctx, p)
		if err == nil {
			savings = biz.Aggregate(rs.Entries)
		}
	}
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, &ListFilesResponse{
		Items:         toEntryResponses(rs.Entries, s.opts.BasePath),
		Total:         len(rs.Entries),
		Savings:       toSavingsResponse(savings),
		FiltersActive: p.IsActive(),
		Generation:    rs.Generation,
		Cached:        rs.Cached,
	})
}

// FileTypes 返回全目录的文件类型（不受当前过滤影响）
func (s *CatalogService) FileTypes(c *gin.Context) {
	types, err := s.uc.FileTypes(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"types": types})
}

// Savings 返回当前视图与全目录的节省统计
func (s *CatalogService) Savings(c *gin.Context) {
	p, ok := s.predicate(c)
	if !ok {
		return
	}
	report, err := s.uc.Savings(c.Request.Context(), p)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, &SavingsReportResponse{
		View:    toSavingsResponse(report.View),
		Catalog: toSavingsResponse(report.Catalog),
	})
}

// Integrity 检查全目录的去重不变量
func (s *CatalogService) Integrity(c *gin.Context) {
	issues, err := s.uc.Integrity(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]*IntegrityIssueResponse, len(issues))
	for i, issue := range issues {
		items[i] = &IntegrityIssueResponse{EntryID: issue.EntryID, Kind: string(issue.Kind), Detail: issue.Detail}
	}
	response.Success(c, &IntegrityResponse{Healthy: len(items) == 0, Issues: items})
}

// GetFile 获取单个文件
func (s *CatalogService) GetFile(c *gin.Context) {
	entry, err := s.uc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toEntryResponse(entry, s.opts.BasePath))
}

// Duplicates 获取引用某个原始文件的重复文件
func (s *CatalogService) Duplicates(c *gin.Context) {
	dups, err := s.uc.Duplicates(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": toEntryResponses(dups, s.opts.BasePath)})
}

// DeleteFile 删除文件
func (s *CatalogService) DeleteFile(c *gin.Context) {
	id := c.Param("id")
	if err := s.uc.DeleteEntry(c.Request.Context(), id); err != nil {
		s.handleError(c, err)
		return
	}
	response.SuccessWithMessage(c, "deleted", gin.H{"id": id})
}

// BatchDelete 批量删除，逐个返回结果
func (s *CatalogService) BatchDelete(c *gin.Context) {
	var req BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	outcomes, err := s.uc.BatchDelete(c.Request.Context(), req.IDs)
	if err != nil {
		s.handleError(c, err)
		return
	}

	resp := &BatchDeleteResponse{Items: make([]*DeleteOutcomeResponse, len(outcomes))}
	for i, o := range outcomes {
		item := &DeleteOutcomeResponse{ID: o.ID, Success: o.Err == nil}
		if o.Err != nil {
			appErr := toAppError(o.Err)
			item.Code = appErr.Code
			item.Message = apperrors.FormatError(appErr.Code, apperrors.GetDetails(appErr))
			item.Retryable = o.Retryable()
			resp.Failed++
		} else {
			resp.Succeeded++
		}
		resp.Items[i] = item
	}
	response.Success(c, resp)
}

// Download 下载文件内容，文件名始终为条目自己的原始文件名
//
// redirect=true 且存储支持签名时返回 302 到临时下载地址。
func (s *CatalogService) Download(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if redirect, _ := strconv.ParseBool(c.Query("redirect")); redirect {
		url, _, err := s.uc.PresignDownload(ctx, id)
		switch {
		case err == nil:
			c.Redirect(http.StatusFound, url)
			return
		case !errors.Is(err, biz.ErrPresignUnsupported):
			s.handleDownloadError(c, err)
			return
		}
	}

	err := s.uc.Download(ctx, id, func(target biz.DownloadTarget, body io.ReadSeeker, size int64) error {
		if target.ContentType != "" {
			c.Header("Content-Type", target.ContentType)
		}
		c.Header("Content-Disposition", attachment(target.SuggestedFilename))
		http.ServeContent(c.Writer, c.Request, target.SuggestedFilename, time.Time{}, body)
		return nil
	})
	if err != nil {
		s.handleDownloadError(c, err)
	}
}

// Events 目录变更 SSE 推送
func (s *CatalogService) Events(c *gin.Context) {
	sse.Serve(c, s.hub, CatalogResource, s.opts.SSEBuffer, s.opts.SSEHeartbeat)
}

func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func (s *CatalogService) handleDownloadError(c *gin.Context, err error) {
	if errors.Is(err, biz.ErrTransport) {
		err = apperrors.Wrap(err, apperrors.ErrDownloadFailed, err.Error())
	}
	s.handleError(c, err)
}

func (s *CatalogService) handleError(c *gin.Context, err error) {
	appErr := toAppError(err)
	log := s.logger.WithContext(c.Request.Context())
	if apperrors.IsServerError(appErr.Code) {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.HandleError(c, appErr)
}

// toAppError 将目录错误映射为业务错误码
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	code := apperrors.ErrInternalServer
	switch {
	case errors.Is(err, biz.ErrBlobNotFound):
		code = apperrors.ErrBlobNotFound
	case errors.Is(err, biz.ErrNotFound):
		code = apperrors.ErrFileNotFound
	case errors.Is(err, biz.ErrReferenced):
		code = apperrors.ErrFileReferenced
	case errors.Is(err, biz.ErrConflict):
		code = apperrors.ErrCatalogConflict
	case errors.Is(err, biz.ErrSuperseded):
		code = apperrors.ErrQuerySuperseded
	case errors.Is(err, biz.ErrBatchTooLarge):
		code = apperrors.ErrBatchTooLarge
	case errors.Is(err, biz.ErrEmptyBatch):
		code = apperrors.ErrBadRequest
	case errors.Is(err, biz.ErrPresignUnsupported):
		code = apperrors.ErrPresignUnsupported
	case errors.Is(err, biz.ErrInvalidationFailed):
		code = apperrors.ErrInvalidationFailed
	case errors.Is(err, biz.ErrTransport):
		code = apperrors.ErrBackendUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = apperrors.ErrTimeout
	}
	return apperrors.Wrap(err, code, err.Error())
}

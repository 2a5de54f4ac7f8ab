package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/lk2023060901/searchview-backend/internal/pkg/errors"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/pkg/response"
	"github.com/lk2023060901/searchview-backend/internal/pkg/sse"
	"github.com/lk2023060901/searchview-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/lk2023060901/searchview-backend/internal/views/client"
	"github.com/lk2023060901/searchview-backend/internal/views/widget"
	"go.uber.org/zap"
)

const maxResultBody = 32 << 20

// SearchService HTTP handlers of the search result lineage
type SearchService struct {
	uc        *biz.SearchUseCase
	poller    *client.Poller
	pool      *workerpool.Pool
	hub       *sse.Hub
	logger    *logger.Logger
	keepAlive time.Duration
}

// NewSearchService creates the search service. poller 为 nil 时不提供 execute
func NewSearchService(
	uc *biz.SearchUseCase,
	poller *client.Poller,
	pool *workerpool.Pool,
	hub *sse.Hub,
	log *logger.Logger,
	keepAlive time.Duration,
) *SearchService {
	return &SearchService{
		uc:        uc,
		poller:    poller,
		pool:      pool,
		hub:       hub,
		logger:    log.Named("views.http"),
		keepAlive: keepAlive,
	}
}

// RegisterRoutes 注册路由
func (s *SearchService) RegisterRoutes(r *gin.RouterGroup) {
	searches := r.Group("/searches/:id")
	{
		searches.POST("/generations", s.StartSearch)
		searches.PUT("/result", s.ApplyResponse)
		searches.GET("/result", s.GetResult)
		searches.POST("/search-types", s.ApplySearchTypes)
		searches.POST("/search-types/lookup", s.LookupSearchTypes)
		searches.GET("/queries/:queryId", s.GetQuery)
		searches.GET("/views/:viewId/widgets", s.WidgetResults)
		searches.POST("/export", s.Export)
		searches.POST("/execute", s.Execute)
		searches.GET("/stream", s.Stream)
	}

	r.PUT("/views/:viewId/widgets/:widgetId", s.SaveWidget)
}

// StartSearch 开始新的执行代次
func (s *SearchService) StartSearch(c *gin.Context) {
	searchID := c.Param("id")

	generation, err := s.uc.StartSearch(c.Request.Context(), searchID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, &GenerationResponse{SearchID: searchID, Generation: generation})
}

// ApplyResponse 写入完整的结果文档
func (s *SearchService) ApplyResponse(c *gin.Context) {
	generation, ok := generationParam(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxResultBody))
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return
	}

	snap, err := s.uc.ApplyResponse(c.Request.Context(), c.Param("id"), generation, raw)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, toSnapshotResponse(snap))
}

// ApplySearchTypes 合并增量的 search type 结果, body 为 payload 数组
func (s *SearchService) ApplySearchTypes(c *gin.Context) {
	generation, ok := generationParam(c)
	if !ok {
		return
	}

	var payloads []json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&payloads); err != nil {
		response.BadRequest(c, "body must be an array of search type results")
		return
	}

	snap, err := s.uc.ApplySearchTypes(c.Request.Context(), c.Param("id"), generation, payloads)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, toSnapshotResponse(snap))
}

// GetResult 获取当前快照
func (s *SearchService) GetResult(c *gin.Context) {
	snap, err := s.uc.Current(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, toResultResponse(snap))
}

// GetQuery 获取单个查询的结果
func (s *SearchService) GetQuery(c *gin.Context) {
	summary, err := s.uc.QueryResult(c.Request.Context(), c.Param("id"), c.Param("queryId"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, summary)
}

// LookupSearchTypes 按 id 批量获取 search type 结果
func (s *SearchService) LookupSearchTypes(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	payloads, err := s.uc.SearchTypes(c.Request.Context(), c.Param("id"), req.IDs)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{"search_types": payloads})
}

// WidgetResults 解析视图中所有组件的数据
func (s *SearchService) WidgetResults(c *gin.Context) {
	results, err := s.uc.WidgetResults(c.Request.Context(), c.Param("id"), c.Param("viewId"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{"widgets": results})
}

// SaveWidget 保存组件定义
func (s *SearchService) SaveWidget(c *gin.Context) {
	var req SaveWidgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	w := &widget.Widget{
		ID:            c.Param("widgetId"),
		ViewID:        c.Param("viewId"),
		QueryID:       req.QueryID,
		Type:          req.Type,
		SearchTypeIDs: req.SearchTypeIDs,
		Position:      req.Position,
	}
	if err := s.uc.SaveWidget(c.Request.Context(), w); err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, w)
}

// Export 导出当前快照到对象存储
func (s *SearchService) Export(c *gin.Context) {
	key, err := s.uc.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, toAppError(err, apperrors.ErrExportFailed))
		return
	}

	response.Success(c, gin.H{"key": key})
}

// Execute 在后端执行搜索并异步轮询结果
func (s *SearchService) Execute(c *gin.Context) {
	if s.poller == nil {
		response.ErrorWithCode(c, apperrors.ErrServiceUnavail, "search backend is not configured")
		return
	}

	// body 可以为空
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request body")
		return
	}

	searchID := c.Param("id")

	// 先占用 worker 再开始新的代次, 池满时旧快照保持不变.
	// 轮询不随请求结束而取消
	ctx := logger.ToContext(context.WithoutCancel(c.Request.Context()), s.logger)
	started := make(chan startResult, 1)
	err := s.pool.Submit(func() {
		generation, err := s.poller.Start(ctx, searchID)
		started <- startResult{generation: generation, err: err}
		if err != nil {
			return
		}
		if _, err := s.poller.Follow(ctx, searchID, generation, req.Parameters); err != nil &&
			!errors.Is(err, biz.ErrStaleGeneration) {
			logger.ErrorContext(ctx, "search execution failed",
				zap.Int64("generation", generation),
				zap.Error(err))
		}
	})
	if err != nil {
		handleError(c, err)
		return
	}

	var res startResult
	select {
	case res = <-started:
	case <-c.Request.Context().Done():
		return
	}
	if res.err != nil {
		handleError(c, res.err)
		return
	}

	response.Accepted(c, &GenerationResponse{SearchID: searchID, Generation: res.generation})
}

type startResult struct {
	generation int64
	err        error
}

// Stream SSE 推送搜索事件, 连接时先补发当前快照
func (s *SearchService) Stream(c *gin.Context) {
	searchID := c.Param("id")
	if searchID == "" {
		handleError(c, biz.ErrSearchIDRequired)
		return
	}

	subscriber := sse.NewClient(uuid.NewString(), biz.EventTopic(searchID), 0)
	s.logger.Debug("stream opened",
		zap.String("search_id", searchID),
		zap.String("client_id", subscriber.ID))

	// 注册之后再读取快照, 之后发布的事件不会丢失
	err := sse.StreamResponse(c, subscriber, s.hub, s.keepAlive, func() ([]sse.Event, error) {
		snap, err := s.uc.Current(c.Request.Context(), searchID)
		switch {
		case err == nil:
			return []sse.Event{{
				Type: "snapshot",
				Data: gin.H{
					"search_id":  snap.SearchID,
					"generation": snap.Generation,
					"data":       toResultResponse(snap),
				},
			}}, nil
		case errors.Is(err, biz.ErrSearchNotFound):
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		handleError(c, err)
		return
	}

	s.logger.Debug("stream closed",
		zap.String("search_id", searchID),
		zap.String("client_id", subscriber.ID))
}

func generationParam(c *gin.Context) (int64, bool) {
	raw := c.Query("generation")
	if raw == "" {
		response.BadRequest(c, "generation is required")
		return 0, false
	}
	generation, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.BadRequest(c, "generation must be an integer")
		return 0, false
	}
	return generation, true
}

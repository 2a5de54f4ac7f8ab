package service

import (
	"encoding/json"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/lk2023060901/searchview-backend/internal/views/widget"
)

// GenerationResponse 新的执行代次
type GenerationResponse struct {
	SearchID   string `json:"search_id"`
	Generation int64  `json:"generation"`
}

// SnapshotResponse 快照摘要
type SnapshotResponse struct {
	SearchID   string    `json:"search_id"`
	Generation int64     `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
	QueryIDs   []string  `json:"query_ids"`
	ErrorCount int       `json:"error_count"`
}

// ResultResponse 完整快照
type ResultResponse struct {
	SnapshotResponse
	Result json.RawMessage `json:"result"`
}

// LookupRequest search type 批量查询
type LookupRequest struct {
	IDs []string `json:"ids"`
}

// SaveWidgetRequest 组件定义
type SaveWidgetRequest struct {
	QueryID       string          `json:"query_id"`
	Type          string          `json:"type"`
	SearchTypeIDs []string        `json:"search_type_ids"`
	Position      widget.Position `json:"position"`
}

// ExecuteRequest 执行参数
type ExecuteRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
}

func toSnapshotResponse(snap *biz.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		SearchID:   snap.SearchID,
		Generation: snap.Generation,
		UpdatedAt:  snap.UpdatedAt,
		QueryIDs:   snap.Result.QueryIDs(),
		ErrorCount: len(snap.Result.Errors()),
	}
}

func toResultResponse(snap *biz.Snapshot) *ResultResponse {
	return &ResultResponse{
		SnapshotResponse: toSnapshotResponse(snap),
		Result:           snap.Result.Result(),
	}
}

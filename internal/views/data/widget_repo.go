package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/views/widget"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WidgetPO 组件持久化对象
type WidgetPO struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	ViewID        string    `gorm:"type:varchar(64);not null;index"`
	QueryID       string    `gorm:"type:varchar(64);not null;index"`
	Type          string    `gorm:"type:varchar(64)"`
	SearchTypeIDs string    `gorm:"column:search_type_ids;type:text;not null"` // JSON 数组
	PosCol        int       `gorm:"column:pos_col"`
	PosRow        int       `gorm:"column:pos_row"`
	Width         int       `gorm:"column:width"`
	Height        int       `gorm:"column:height"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time
}

// TableName 指定表名
func (WidgetPO) TableName() string {
	return "view_widgets"
}

// WidgetRepo implements biz.WidgetRepo using GORM
type WidgetRepo struct {
	db *gorm.DB
}

// NewWidgetRepo creates a new widget repository
func NewWidgetRepo(db *gorm.DB) *WidgetRepo {
	return &WidgetRepo{db: db}
}

// Save 按 ID 插入或更新组件
func (r *WidgetRepo) Save(ctx context.Context, w *widget.Widget) error {
	po, err := r.toPO(w)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"view_id", "query_id", "type", "search_type_ids",
				"pos_col", "pos_row", "width", "height", "updated_at",
			}),
		}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to save widget: %w", err)
	}
	return nil
}

// ListByView lists the widgets of a view in grid order
func (r *WidgetRepo) ListByView(ctx context.Context, viewID string) ([]*widget.Widget, error) {
	var pos []WidgetPO
	if err := r.db.WithContext(ctx).
		Where("view_id = ?", viewID).
		Order("pos_row ASC, pos_col ASC").
		Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	return r.toDomainList(pos)
}

// ListByQueries lists every widget backed by one of the given queries
func (r *WidgetRepo) ListByQueries(ctx context.Context, queryIDs []string) ([]*widget.Widget, error) {
	if len(queryIDs) == 0 {
		return nil, nil
	}

	var pos []WidgetPO
	if err := r.db.WithContext(ctx).
		Where("query_id IN ?", queryIDs).
		Order("id ASC").
		Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	return r.toDomainList(pos)
}

func (r *WidgetRepo) toPO(w *widget.Widget) (*WidgetPO, error) {
	ids := w.SearchTypeIDs
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search type ids: %w", err)
	}

	return &WidgetPO{
		ID:            w.ID,
		ViewID:        w.ViewID,
		QueryID:       w.QueryID,
		Type:          w.Type,
		SearchTypeIDs: string(encoded),
		PosCol:        w.Position.Col,
		PosRow:        w.Position.Row,
		Width:         w.Position.Width,
		Height:        w.Position.Height,
		UpdatedAt:     w.UpdatedAt,
	}, nil
}

func (r *WidgetRepo) toDomain(po *WidgetPO) (*widget.Widget, error) {
	var ids []string
	if po.SearchTypeIDs != "" {
		if err := json.Unmarshal([]byte(po.SearchTypeIDs), &ids); err != nil {
			return nil, fmt.Errorf("widget %s has invalid search type ids: %w", po.ID, err)
		}
	}

	return &widget.Widget{
		ID:            po.ID,
		ViewID:        po.ViewID,
		QueryID:       po.QueryID,
		Type:          po.Type,
		SearchTypeIDs: ids,
		Position: widget.Position{
			Col:    po.PosCol,
			Row:    po.PosRow,
			Width:  po.Width,
			Height: po.Height,
		},
		UpdatedAt: po.UpdatedAt,
	}, nil
}

func (r *WidgetRepo) toDomainList(pos []WidgetPO) ([]*widget.Widget, error) {
	widgets := make([]*widget.Widget, 0, len(pos))
	for i := range pos {
		w, err := r.toDomain(&pos[i])
		if err != nil {
			return nil, err
		}
		widgets = append(widgets, w)
	}
	return widgets, nil
}

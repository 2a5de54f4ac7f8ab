package data

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lk2023060901/searchview-backend/internal/views/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockWidgetRepo(t *testing.T) (*WidgetRepo, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewWidgetRepo(gdb), mock
}

var widgetColumns = []string{
	"id", "view_id", "query_id", "type", "search_type_ids",
	"pos_col", "pos_row", "width", "height", "created_at", "updated_at",
}

func TestWidgetRepo_Save(t *testing.T) {
	repo, mock := newMockWidgetRepo(t)

	mock.ExpectExec(`INSERT INTO "view_widgets" .+ ON CONFLICT \("id"\) DO UPDATE SET`).
		WithArgs("w1", "view-1", "q1", "chart", `["st1","st2"]`, 0, 2, 6, 4,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &widget.Widget{
		ID:            "w1",
		ViewID:        "view-1",
		QueryID:       "q1",
		Type:          "chart",
		SearchTypeIDs: []string{"st1", "st2"},
		Position:      widget.Position{Col: 0, Row: 2, Width: 6, Height: 4},
		UpdatedAt:     time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWidgetRepo_SaveError(t *testing.T) {
	repo, mock := newMockWidgetRepo(t)

	mock.ExpectExec(`INSERT INTO "view_widgets"`).
		WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), &widget.Widget{ID: "w1", QueryID: "q1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save widget")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWidgetRepo_ListByView(t *testing.T) {
	repo, mock := newMockWidgetRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows(widgetColumns).
		AddRow("w1", "view-1", "q1", "chart", `["st1"]`, 0, 0, 6, 4, now, now).
		AddRow("w2", "view-1", "q2", "table", `["st2","st3"]`, 6, 0, 6, 4, now, now)

	mock.ExpectQuery(`SELECT \* FROM "view_widgets" WHERE view_id = \$1 ORDER BY pos_row ASC, pos_col ASC`).
		WithArgs("view-1").
		WillReturnRows(rows)

	widgets, err := repo.ListByView(context.Background(), "view-1")
	require.NoError(t, err)
	require.Len(t, widgets, 2)

	assert.Equal(t, "w1", widgets[0].ID)
	assert.Equal(t, []string{"st1"}, widgets[0].SearchTypeIDs)
	assert.Equal(t, "w2", widgets[1].ID)
	assert.Equal(t, []string{"st2", "st3"}, widgets[1].SearchTypeIDs)
	assert.Equal(t, widget.Position{Col: 6, Row: 0, Width: 6, Height: 4}, widgets[1].Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWidgetRepo_ListByQueries(t *testing.T) {
	repo, mock := newMockWidgetRepo(t)
	now := time.Now()

	widgets, err := repo.ListByQueries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, widgets)

	rows := sqlmock.NewRows(widgetColumns).
		AddRow("w1", "view-1", "q1", "chart", `["st1"]`, 0, 0, 6, 4, now, now)

	mock.ExpectQuery(`SELECT \* FROM "view_widgets" WHERE query_id IN \(\$1,\$2\)`).
		WithArgs("q1", "q2").
		WillReturnRows(rows)

	widgets, err = repo.ListByQueries(context.Background(), []string{"q1", "q2"})
	require.NoError(t, err)
	require.Len(t, widgets, 1)
	assert.Equal(t, "q1", widgets[0].QueryID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWidgetRepo_CorruptSearchTypes(t *testing.T) {
	repo, mock := newMockWidgetRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows(widgetColumns).
		AddRow("w1", "view-1", "q1", "chart", `st1,st2`, 0, 0, 6, 4, now, now)
	mock.ExpectQuery(`SELECT \* FROM "view_widgets"`).WillReturnRows(rows)

	_, err := repo.ListByView(context.Background(), "view-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "w1")
}

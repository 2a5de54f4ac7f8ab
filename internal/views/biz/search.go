package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/searchview-backend/internal/views/result"
	"github.com/lk2023060901/searchview-backend/internal/views/widget"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// lineage 单个搜索的写锁, 只在有写入进行时存在
type lineage struct {
	mu   sync.Mutex
	refs int
}

// SearchUseCase owns the result lineage of every search: the generation
// counter and the snapshot that incremental search type results are merged
// into. Updates for one search are applied one at a time, in arrival order,
// each against the snapshot as stored in the result repo.
type SearchUseCase struct {
	results   ResultRepo
	widgets   WidgetRepo
	exports   ExportStore
	publisher Publisher
	pool      *workerpool.Pool
	logger    *logger.Logger

	mu       sync.Mutex
	lineages map[string]*lineage

	now func() time.Time
}

// NewSearchUseCase creates a new search use case
func NewSearchUseCase(
	results ResultRepo,
	widgets WidgetRepo,
	exports ExportStore,
	publisher Publisher,
	pool *workerpool.Pool,
	log *logger.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		results:   results,
		widgets:   widgets,
		exports:   exports,
		publisher: publisher,
		pool:      pool,
		logger:    log.Named("views"),
		lineages:  make(map[string]*lineage),
		now:       time.Now,
	}
}

// acquire locks the lineage of searchID for writing.
func (uc *SearchUseCase) acquire(searchID string) *lineage {
	uc.mu.Lock()
	l, ok := uc.lineages[searchID]
	if !ok {
		l = &lineage{}
		uc.lineages[searchID] = l
	}
	l.refs++
	uc.mu.Unlock()

	l.mu.Lock()
	return l
}

// release unlocks l and forgets it once no writer is waiting.
func (uc *SearchUseCase) release(searchID string, l *lineage) {
	l.mu.Unlock()

	uc.mu.Lock()
	defer uc.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(uc.lineages, searchID)
	}
}

// StartSearch begins a new execution of searchID and returns its generation.
// Results delivered for any earlier generation are rejected from now on.
func (uc *SearchUseCase) StartSearch(ctx context.Context, searchID string) (int64, error) {
	if searchID == "" {
		return 0, ErrSearchIDRequired
	}

	l := uc.acquire(searchID)
	defer uc.release(searchID, l)

	generation, err := uc.results.NextGeneration(ctx, searchID)
	if err != nil {
		return 0, fmt.Errorf("failed to start search: %w", err)
	}
	if err := uc.results.DeleteSnapshot(ctx, searchID); err != nil {
		return 0, fmt.Errorf("failed to drop previous snapshot: %w", err)
	}

	uc.logger.Info("search started",
		zap.String("search_id", searchID),
		zap.Int64("generation", generation))

	uc.publish(ctx, &Event{Type: EventSearchStarted, SearchID: searchID, Generation: generation})
	return generation, nil
}

// ApplyResponse replaces the snapshot of searchID with a complete response
// document of the given generation.
func (uc *SearchUseCase) ApplyResponse(ctx context.Context, searchID string, generation int64, raw []byte) (*Snapshot, error) {
	if searchID == "" {
		return nil, ErrSearchIDRequired
	}

	sr, err := result.New(raw)
	if err != nil {
		return nil, err
	}

	l := uc.acquire(searchID)
	defer uc.release(searchID, l)

	if err := uc.checkGeneration(ctx, searchID, generation); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SearchID:   searchID,
		Generation: generation,
		Result:     sr,
		UpdatedAt:  uc.now(),
	}
	if err := uc.results.SaveSnapshot(ctx, searchID, generation, sr.Result()); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	uc.logger.Debug("search result applied",
		zap.String("search_id", searchID),
		zap.Int64("generation", generation),
		zap.Int("queries", len(sr.QueryIDs())),
		zap.Int("errors", len(sr.Errors())))

	uc.publish(ctx, &Event{
		Type:       EventSearchResult,
		SearchID:   searchID,
		Generation: generation,
		Data:       &ResultEvent{QueryIDs: sr.QueryIDs(), ErrorCount: len(sr.Errors())},
	})
	return snap, nil
}

// ApplySearchTypes merges late search type results into the current snapshot
// of the given generation. Payloads for search types no query owns are
// dropped; the event lists only the ids that were actually replaced.
func (uc *SearchUseCase) ApplySearchTypes(ctx context.Context, searchID string, generation int64, payloads []json.RawMessage) (*Snapshot, error) {
	if searchID == "" {
		return nil, ErrSearchIDRequired
	}

	l := uc.acquire(searchID)
	defer uc.release(searchID, l)

	if err := uc.checkGeneration(ctx, searchID, generation); err != nil {
		return nil, err
	}

	// 每次都从存储重新加载, 其他实例可能已经写入
	current, err := uc.load(ctx, searchID)
	if err != nil {
		return nil, err
	}
	if current.Generation != generation {
		// the generation was started but its first response has not arrived
		return nil, ErrSearchNotFound
	}

	next, err := current.Result.UpdateSearchTypes(payloads)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SearchID:   searchID,
		Generation: generation,
		Result:     next,
		UpdatedAt:  uc.now(),
	}
	if err := uc.results.SaveSnapshot(ctx, searchID, generation, next.Result()); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	updated := updatedSearchTypes(current.Result, payloads)
	widgetIDs := uc.affectedWidgets(ctx, next, updated)

	uc.logger.Debug("search types applied",
		zap.String("search_id", searchID),
		zap.Int64("generation", generation),
		zap.Strings("search_type_ids", updated),
		zap.Int("dropped", len(payloads)-len(updated)))

	uc.publish(ctx, &Event{
		Type:       EventSearchSearchTypes,
		SearchID:   searchID,
		Generation: generation,
		Data:       &SearchTypesEvent{SearchTypeIDs: updated, WidgetIDs: widgetIDs},
	})
	return snap, nil
}

// Current returns the latest stored snapshot of searchID. Reads take no
// lineage lock; the stored snapshot is always a complete document.
func (uc *SearchUseCase) Current(ctx context.Context, searchID string) (*Snapshot, error) {
	if searchID == "" {
		return nil, ErrSearchIDRequired
	}
	return uc.load(ctx, searchID)
}

// QueryResult returns the summary of one query of the current snapshot.
func (uc *SearchUseCase) QueryResult(ctx context.Context, searchID, queryID string) (*QuerySummary, error) {
	snap, err := uc.Current(ctx, searchID)
	if err != nil {
		return nil, err
	}

	qr := snap.Result.ForQuery(queryID)
	if qr == nil {
		return nil, ErrQueryNotFound
	}
	return newQuerySummary(qr), nil
}

// SearchTypes returns the current payloads of the requested search types in
// request order, leaving out ids without data.
func (uc *SearchUseCase) SearchTypes(ctx context.Context, searchID string, ids []string) ([]json.RawMessage, error) {
	snap, err := uc.Current(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return snap.Result.SearchTypesFromResponse(ids), nil
}

// WidgetResults resolves every widget of viewID against the current snapshot
// of searchID.
func (uc *SearchUseCase) WidgetResults(ctx context.Context, searchID, viewID string) ([]*widget.Result, error) {
	snap, err := uc.Current(ctx, searchID)
	if err != nil {
		return nil, err
	}

	widgets, err := uc.widgets.ListByView(ctx, viewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	return widget.ResolveMany(snap.Result, widgets), nil
}

// SaveWidget 保存组件定义
func (uc *SearchUseCase) SaveWidget(ctx context.Context, w *widget.Widget) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.UpdatedAt = uc.now()

	if err := uc.widgets.Save(ctx, w); err != nil {
		return fmt.Errorf("failed to save widget: %w", err)
	}
	return nil
}

// Export writes the current snapshot of searchID to the export store on the
// worker pool and returns the object key.
func (uc *SearchUseCase) Export(ctx context.Context, searchID string) (string, error) {
	snap, err := uc.Current(ctx, searchID)
	if err != nil {
		return "", err
	}

	raw := snap.Result.Result()
	done := uc.pool.SubmitWithResult(func() (interface{}, error) {
		return uc.exports.PutSnapshot(ctx, searchID, snap.Generation, raw)
	})

	var res workerpool.TaskResult
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-done:
	}
	if res.Error != nil {
		return "", fmt.Errorf("failed to export snapshot: %w", res.Error)
	}

	key, _ := res.Data.(string)
	uc.logger.Info("search exported",
		zap.String("search_id", searchID),
		zap.Int64("generation", snap.Generation),
		zap.String("key", key))

	uc.publish(ctx, &Event{
		Type:       EventSearchExported,
		SearchID:   searchID,
		Generation: snap.Generation,
		Data:       &ExportEvent{Key: key},
	})
	return key, nil
}

// checkGeneration must be called with the lineage lock held.
func (uc *SearchUseCase) checkGeneration(ctx context.Context, searchID string, generation int64) error {
	current, err := uc.results.Generation(ctx, searchID)
	if err != nil {
		return fmt.Errorf("failed to read generation: %w", err)
	}

	switch {
	case generation <= 0 || generation > current:
		return fmt.Errorf("%w: %d (current %d)", ErrInvalidGeneration, generation, current)
	case generation < current:
		uc.logger.Warn("stale search result rejected",
			zap.String("search_id", searchID),
			zap.Int64("generation", generation),
			zap.Int64("current", current))
		return fmt.Errorf("%w: %d (current %d)", ErrStaleGeneration, generation, current)
	}
	return nil
}

// load reads and parses the stored snapshot of searchID.
func (uc *SearchUseCase) load(ctx context.Context, searchID string) (*Snapshot, error) {
	generation, raw, err := uc.results.LoadSnapshot(ctx, searchID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, ErrSearchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	sr, err := result.New(raw)
	if err != nil {
		return nil, fmt.Errorf("stored snapshot of %s is corrupt: %w", searchID, err)
	}

	return &Snapshot{
		SearchID:   searchID,
		Generation: generation,
		Result:     sr,
		UpdatedAt:  uc.now(),
	}, nil
}

func (uc *SearchUseCase) affectedWidgets(ctx context.Context, sr *result.SearchResult, updated []string) []string {
	if len(updated) == 0 || uc.widgets == nil {
		return nil
	}

	widgets, err := uc.widgets.ListByQueries(ctx, sr.QueryIDs())
	if err != nil {
		// 只影响事件中的组件列表
		uc.logger.Warn("failed to list widgets for search types update", zap.Error(err))
		return nil
	}

	affected := widget.Affected(widgets, updated)
	ids := make([]string, 0, len(affected))
	for _, w := range affected {
		ids = append(ids, w.ID)
	}
	return ids
}

func (uc *SearchUseCase) publish(ctx context.Context, event *Event) {
	if uc.publisher == nil {
		return
	}
	uc.publisher.Publish(ctx, event)
}

// updatedSearchTypes returns, in first-seen order, the ids of payloads that
// addressed a search type known to sr.
func updatedSearchTypes(sr *result.SearchResult, payloads []json.RawMessage) []string {
	seen := make(map[string]struct{}, len(payloads))
	ids := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		id := gjson.GetBytes(payload, "id").String()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if sr.SearchType(id) == nil {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

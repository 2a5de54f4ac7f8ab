package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgredis "github.com/lk2023060901/searchview-backend/internal/pkg/redis"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
)

const (
	generationKeyFormat = "views:search:%s:generation"
	snapshotKeyFormat   = "views:search:%s:snapshot"
)

// kvStore is the subset of *pkgredis.Client the result repo needs.
type kvStore interface {
	Incr(ctx context.Context, key string, expiration time.Duration) (int64, error)
	GetInt64(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// snapshotEnvelope 快照在 Redis 中的存储格式
type snapshotEnvelope struct {
	Generation int64           `json:"generation"`
	Result     json.RawMessage `json:"result"`
}

// ResultRepo implements biz.ResultRepo on Redis
type ResultRepo struct {
	kv  kvStore
	ttl time.Duration
}

// NewResultRepo creates a result repository. ttl 为 0 时快照不过期
func NewResultRepo(client *pkgredis.Client, ttl time.Duration) *ResultRepo {
	return &ResultRepo{kv: client, ttl: ttl}
}

func generationKey(searchID string) string {
	return fmt.Sprintf(generationKeyFormat, searchID)
}

func snapshotKey(searchID string) string {
	return fmt.Sprintf(snapshotKeyFormat, searchID)
}

// NextGeneration 原子递增代数
func (r *ResultRepo) NextGeneration(ctx context.Context, searchID string) (int64, error) {
	generation, err := r.kv.Incr(ctx, generationKey(searchID), r.ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to bump generation: %w", err)
	}
	return generation, nil
}

// Generation returns 0 for a search that was never started.
func (r *ResultRepo) Generation(ctx context.Context, searchID string) (int64, error) {
	generation, err := r.kv.GetInt64(ctx, generationKey(searchID))
	if pkgredis.IsNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get generation: %w", err)
	}
	return generation, nil
}

// SaveSnapshot 保存快照
func (r *ResultRepo) SaveSnapshot(ctx context.Context, searchID string, generation int64, raw []byte) error {
	data, err := json.Marshal(&snapshotEnvelope{Generation: generation, Result: raw})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.kv.Set(ctx, snapshotKey(searchID), data, r.ttl); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot 读取快照, 不存在时返回 biz.ErrSnapshotNotFound
func (r *ResultRepo) LoadSnapshot(ctx context.Context, searchID string) (int64, []byte, error) {
	data, err := r.kv.GetBytes(ctx, snapshotKey(searchID))
	if pkgredis.IsNil(err) {
		return 0, nil, biz.ErrSnapshotNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return env.Generation, env.Result, nil
}

// DeleteSnapshot 删除快照, 代数保留
func (r *ResultRepo) DeleteSnapshot(ctx context.Context, searchID string) error {
	if _, err := r.kv.Del(ctx, snapshotKey(searchID)); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

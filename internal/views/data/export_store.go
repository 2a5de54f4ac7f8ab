package data

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pkgminio "github.com/lk2023060901/searchview-backend/internal/pkg/minio"
)

type objectPutter interface {
	PutBytes(ctx context.Context, objectName string, data []byte, contentType string) (pkgminio.UploadInfo, error)
}

// ExportStore implements biz.ExportStore on MinIO
type ExportStore struct {
	objects objectPutter
	newID   func() string
}

// NewExportStore 创建导出存储
func NewExportStore(client *pkgminio.Client) *ExportStore {
	return &ExportStore{objects: client, newID: uuid.NewString}
}

// exportKey exports/<search>/<generation>-<uuid>.json
func exportKey(searchID string, generation int64, id string) string {
	return fmt.Sprintf("exports/%s/%d-%s.json", searchID, generation, id)
}

// PutSnapshot 上传快照并返回对象 key
func (s *ExportStore) PutSnapshot(ctx context.Context, searchID string, generation int64, raw []byte) (string, error) {
	key := exportKey(searchID, generation, s.newID())
	if _, err := s.objects.PutBytes(ctx, key, raw, "application/json"); err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	return key, nil
}
